package models

import (
	"fmt"
	"strings"
)

// ThreatType identifies which signal produced a finding
type ThreatType string

const (
	ThreatTypeRootAccess ThreatType = "root_access"
	ThreatTypeAIAnalysis ThreatType = "ai_analysis"
	ThreatTypePermission ThreatType = "permission"
)

// Label returns the human-readable threat type
func (t ThreatType) Label() string {
	switch t {
	case ThreatTypeRootAccess:
		return "Root Access"
	case ThreatTypeAIAnalysis:
		return "AI Analysis"
	case ThreatTypePermission:
		return "Permission"
	default:
		return string(t)
	}
}

// Valid reports whether t is a known threat type
func (t ThreatType) Valid() bool {
	switch t {
	case ThreatTypeRootAccess, ThreatTypeAIAnalysis, ThreatTypePermission:
		return true
	}
	return false
}

// RiskLevel is totally ordered: High > Medium > Low
type RiskLevel string

const (
	RiskLevelHigh   RiskLevel = "high"
	RiskLevelMedium RiskLevel = "medium"
	RiskLevelLow    RiskLevel = "low"
)

// Rank returns the presentation order of the level, most severe first (High=0).
// Unknown levels sort last.
func (r RiskLevel) Rank() int {
	switch r {
	case RiskLevelHigh:
		return 0
	case RiskLevelMedium:
		return 1
	case RiskLevelLow:
		return 2
	default:
		return 3
	}
}

// Severity returns a comparable severity, higher is worse
func (r RiskLevel) Severity() int {
	switch r {
	case RiskLevelHigh:
		return 3
	case RiskLevelMedium:
		return 2
	case RiskLevelLow:
		return 1
	default:
		return 0
	}
}

// Greater reports whether r is strictly more severe than other
func (r RiskLevel) Greater(other RiskLevel) bool {
	return r.Severity() > other.Severity()
}

// Valid reports whether r is a known level
func (r RiskLevel) Valid() bool {
	return r.Severity() > 0
}

// ParseRiskLevel parses a risk level case-insensitively
func ParseRiskLevel(s string) (RiskLevel, error) {
	level := RiskLevel(strings.ToLower(strings.TrimSpace(s)))
	if !level.Valid() {
		return "", fmt.Errorf("unknown risk level %q", s)
	}
	return level, nil
}

// Threat is one finding for one application in one scan cycle.
// Threats are value objects: replaced wholesale on every refresh.
type Threat struct {
	AppName     string     `json:"app_name"`
	PackageName string     `json:"package_name"`
	ThreatType  ThreatType `json:"threat_type"`
	RiskLevel   RiskLevel  `json:"risk_level"`
	Description string     `json:"description"`
	// Score is the model score that produced an AI finding; zero otherwise.
	Score float64 `json:"score,omitempty"`
}

// RootPackageName is the synthetic package used for device-level findings
const RootPackageName = "android"

// NewRootThreat returns the synthetic device-compromise finding
func NewRootThreat() Threat {
	return Threat{
		AppName:     "System",
		PackageName: RootPackageName,
		ThreatType:  ThreatTypeRootAccess,
		RiskLevel:   RiskLevelHigh,
		Description: "Device is rooted, which compromises security.",
	}
}

// WhitelistedApp is a package the user exempted from scans
type WhitelistedApp struct {
	PackageName string `json:"package_name"`
}

// WhitelistSet converts stored entries to a lookup set
func WhitelistSet(apps []WhitelistedApp) map[string]struct{} {
	set := make(map[string]struct{}, len(apps))
	for _, a := range apps {
		set[a.PackageName] = struct{}{}
	}
	return set
}
