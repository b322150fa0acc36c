package streaming

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"secureguard-lab/internal/domain/models"
)

// EventType represents the type of scan event
type EventType string

const (
	EventTypeScanCompleted  EventType = "scan_completed"
	EventTypeHighRiskThreat EventType = "high_risk_threat"
	EventTypeSnapshot       EventType = "snapshot"
)

// ScanEvent is the real-time payload shared by NATS, the bus and websockets
type ScanEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	// Scan report fields (scan_completed, snapshot)
	ReportID string                  `json:"report_id,omitempty"`
	Threats  []models.Threat         `json:"threats,omitempty"`
	Posture  *models.SecurityPosture `json:"posture,omitempty"`
	Scanned  int                     `json:"scanned,omitempty"`
	Duration time.Duration           `json:"duration,omitempty"`

	// Alert fields (high_risk_threat)
	Threat       *models.Threat       `json:"threat,omitempty"`
	Notification *models.Notification `json:"notification,omitempty"`
}

// NewScanCompletedEvent creates an event from a finished report
func NewScanCompletedEvent(report *models.ScanReport) *ScanEvent {
	posture := report.Posture
	return &ScanEvent{
		ID:        uuid.New().String(),
		Type:      EventTypeScanCompleted,
		Timestamp: report.CompletedAt,
		ReportID:  report.ID.String(),
		Threats:   report.Threats,
		Posture:   &posture,
		Scanned:   report.Scanned,
		Duration:  report.Duration,
	}
}

// NewHighRiskEvent creates the alert event for a High threat
func NewHighRiskEvent(threat models.Threat) *ScanEvent {
	note := models.NewHighRiskNotification(threat)
	return &ScanEvent{
		ID:           uuid.New().String(),
		Type:         EventTypeHighRiskThreat,
		Timestamp:    time.Now(),
		Threat:       &threat,
		Notification: &note,
	}
}

// NewSnapshotEvent carries the persisted threat list to a newly connected client
func NewSnapshotEvent(threats []models.Threat, posture models.SecurityPosture) *ScanEvent {
	return &ScanEvent{
		ID:        uuid.New().String(),
		Type:      EventTypeSnapshot,
		Timestamp: time.Now(),
		Threats:   threats,
		Posture:   &posture,
	}
}

// Subscription represents a client's subscription preferences
type Subscription struct {
	// Filter by event types (empty = all)
	Types []EventType `json:"types,omitempty"`

	// Alerts below this level are dropped (empty = all)
	MinRiskLevel models.RiskLevel `json:"min_risk_level,omitempty"`

	// Alerts for other packages are dropped (empty = all)
	Packages []string `json:"packages,omitempty"`
}

// Matches checks if an event matches the subscription filters
func (s *Subscription) Matches(event *ScanEvent) bool {
	if s == nil {
		return true
	}

	if len(s.Types) > 0 && !slices.Contains(s.Types, event.Type) {
		return false
	}

	// Level and package filters only apply to single-threat alerts
	if event.Threat == nil {
		return true
	}

	if s.MinRiskLevel != "" && s.MinRiskLevel.Greater(event.Threat.RiskLevel) {
		return false
	}

	if len(s.Packages) > 0 && !slices.Contains(s.Packages, event.Threat.PackageName) {
		return false
	}

	return true
}
