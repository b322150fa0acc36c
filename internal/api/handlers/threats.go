package handlers

import (
	"net/http"
	"strings"
	"time"

	"secureguard-lab/internal/domain/models"
	"secureguard-lab/internal/domain/services"
	"secureguard-lab/pkg/logger"
)

// ThreatsHandler serves the threat collection and on-demand scans
type ThreatsHandler struct {
	service ThreatService
	logger  *logger.Logger
}

// NewThreatsHandler creates a new threats handler
func NewThreatsHandler(service ThreatService, log *logger.Logger) *ThreatsHandler {
	return &ThreatsHandler{
		service: service,
		logger:  log.WithComponent("threats-handler"),
	}
}

// ThreatListResponse is returned by GET /api/v1/threats
type ThreatListResponse struct {
	Threats []models.Threat `json:"threats"`
	Count   int             `json:"count"`
}

// List handles GET /api/v1/threats
// Query params: min_level (high|medium|low), type (root_access|ai_analysis|permission)
func (h *ThreatsHandler) List(w http.ResponseWriter, r *http.Request) {
	threats, err := h.service.Threats(r.Context())
	if err != nil {
		respondServiceError(w, h.logger, err, "failed to list threats")
		return
	}

	query := r.URL.Query()
	var minLevel models.RiskLevel
	if v := query.Get("min_level"); v != "" {
		minLevel = models.RiskLevel(strings.ToLower(v))
		if !minLevel.Valid() {
			respondError(w, http.StatusBadRequest, "invalid min_level")
			return
		}
	}
	var threatType models.ThreatType
	if v := query.Get("type"); v != "" {
		threatType = models.ThreatType(strings.ToLower(v))
		if !threatType.Valid() {
			respondError(w, http.StatusBadRequest, "invalid type")
			return
		}
	}

	filtered := make([]models.Threat, 0, len(threats))
	for _, t := range threats {
		if minLevel != "" && minLevel.Greater(t.RiskLevel) {
			continue
		}
		if threatType != "" && t.ThreatType != threatType {
			continue
		}
		filtered = append(filtered, t)
	}

	respondJSON(w, http.StatusOK, ThreatListResponse{Threats: filtered, Count: len(filtered)})
}

// PostureResponse is returned by GET /api/v1/posture
type PostureResponse struct {
	models.SecurityPosture
	LastScan *ScanSummary `json:"last_scan,omitempty"`
}

// ScanSummary describes a completed cycle without its threat list
type ScanSummary struct {
	ID          string         `json:"id"`
	CompletedAt string         `json:"completed_at"`
	Duration    string         `json:"duration"`
	Scanned     int            `json:"scanned"`
	Threats     int            `json:"threats"`
	Notified    *models.Threat `json:"notified,omitempty"`
}

func summarize(report *models.ScanReport) *ScanSummary {
	if report == nil {
		return nil
	}
	return &ScanSummary{
		ID:          report.ID.String(),
		CompletedAt: report.CompletedAt.UTC().Format(time.RFC3339),
		Duration:    report.Duration.String(),
		Scanned:     report.Scanned,
		Threats:     len(report.Threats),
		Notified:    report.Notified,
	}
}

// Posture handles GET /api/v1/posture
func (h *ThreatsHandler) Posture(w http.ResponseWriter, r *http.Request) {
	threats, err := h.service.Threats(r.Context())
	if err != nil {
		respondServiceError(w, h.logger, err, "failed to compute posture")
		return
	}

	respondJSON(w, http.StatusOK, PostureResponse{
		SecurityPosture: services.ComputePosture(threats),
		LastScan:        summarize(h.service.LastReport()),
	})
}

// Scan handles POST /api/v1/scan, running a full refresh synchronously
func (h *ThreatsHandler) Scan(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Refresh(r.Context())
	if err != nil {
		respondServiceError(w, h.logger, err, "scan failed")
		return
	}
	respondJSON(w, http.StatusOK, report)
}
