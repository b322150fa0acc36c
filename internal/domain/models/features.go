package models

import "strings"

// DangerousPermissions are the sensitive capabilities used both as model
// features and as the permission-heuristic signal. Order is the slot order.
var DangerousPermissions = []string{
	"android.permission.READ_SMS",
	"android.permission.SEND_SMS",
	"android.permission.RECEIVE_SMS",
	"android.permission.CAMERA",
	"android.permission.RECORD_AUDIO",
	"android.permission.READ_CALL_LOG",
	"android.permission.WRITE_CALL_LOG",
	"android.permission.ACCESS_FINE_LOCATION",
	"android.permission.GET_ACCOUNTS",
	"android.permission.READ_CONTACTS",
}

// SuspiciousIntents are broadcast actions whose receivers are a weak malware indicator
var SuspiciousIntents = []string{
	"android.intent.action.BOOT_COMPLETED",
	"android.provider.Telephony.SMS_RECEIVED",
}

// FeatureWidth is the fixed length of a FeatureVector
var FeatureWidth = len(DangerousPermissions) + len(SuspiciousIntents)

// FeatureVector is the 0/1 indicator encoding of one application
type FeatureVector []float64

// NewFeatureVector returns a zero vector of FeatureWidth
func NewFeatureVector() FeatureVector {
	return make(FeatureVector, FeatureWidth)
}

// IsZero reports whether no indicator is set
func (v FeatureVector) IsZero() bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// FeatureNames returns the fully-qualified slot names in vector order. A
// model artifact declaring feature names must list exactly these.
func FeatureNames() []string {
	names := make([]string, 0, FeatureWidth)
	names = append(names, DangerousPermissions...)
	return append(names, SuspiciousIntents...)
}

// DangerousPermissionIndex returns the slot of a fully-qualified permission, or -1
func DangerousPermissionIndex(permission string) int {
	for i, p := range DangerousPermissions {
		if p == permission {
			return i
		}
	}
	return -1
}

// ShortPermissionName strips the qualifying prefix ("android.permission.CAMERA" -> "CAMERA")
func ShortPermissionName(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i+1:]
	}
	return name
}
