package models

import (
	"time"

	"github.com/google/uuid"
)

// ScanReport summarizes one refresh cycle
type ScanReport struct {
	ID          uuid.UUID       `json:"id"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt time.Time       `json:"completed_at"`
	Duration    time.Duration   `json:"duration"`
	Threats     []Threat        `json:"threats"`
	Posture     SecurityPosture `json:"posture"`
	// Notified is the threat that triggered the high-risk notification, if any.
	Notified *Threat `json:"notified,omitempty"`
	// Scanned counts third-party, non-whitelisted applications evaluated.
	Scanned int `json:"scanned"`
}

// SecurityPosture is the aggregate score shown on the home screen
type SecurityPosture struct {
	Score       int    `json:"score"` // 0-100
	Label       string `json:"label"`
	HighCount   int    `json:"high_count"`
	MediumCount int    `json:"medium_count"`
	LowCount    int    `json:"low_count"`
}

// Notification is the user-facing alert for a high-risk finding
type Notification struct {
	Title       string `json:"title"`
	Text        string `json:"text"`
	Body        string `json:"body"`
	PackageName string `json:"package_name"`
}

// NewHighRiskNotification builds the alert for a High threat
func NewHighRiskNotification(t Threat) Notification {
	return Notification{
		Title:       "Critical Security Alert!",
		Text:        "High-risk threat detected: " + t.AppName,
		Body:        t.Description,
		PackageName: t.PackageName,
	}
}
