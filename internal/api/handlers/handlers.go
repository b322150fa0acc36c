package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"secureguard-lab/internal/domain/models"
	"secureguard-lab/internal/domain/services"
	"secureguard-lab/internal/infrastructure/database/repository"
	"secureguard-lab/internal/streaming"
	"secureguard-lab/pkg/logger"
)

// ThreatService is the part of services.ScanCoordinator the API drives
type ThreatService interface {
	Refresh(ctx context.Context) (*models.ScanReport, error)
	AddToWhitelist(ctx context.Context, packageName string) (*models.ScanReport, error)
	RemoveFromWhitelist(ctx context.Context, packageName string) (*models.ScanReport, error)
	Threats(ctx context.Context) ([]models.Threat, error)
	Whitelist(ctx context.Context) ([]models.WhitelistedApp, error)
	LastReport() *models.ScanReport
}

// JobSource exposes scheduler history
type JobSource interface {
	Jobs() []services.SchedulerJob
	Stats() services.SchedulerStats
}

// Handlers holds all API handlers
type Handlers struct {
	Health    *HealthHandler
	Threats   *ThreatsHandler
	Whitelist *WhitelistHandler
	Scheduler *SchedulerHandler
	Streaming *StreamingHandler
}

// Dependencies holds dependencies for handlers
type Dependencies struct {
	Service   ThreatService
	Scheduler JobSource
	Checks    map[string]HealthCheck
	Hub       *streaming.WebSocketHub
	EventBus  *streaming.EventBus
	Version   string
	Logger    *logger.Logger
}

// NewHandlers creates all handlers
func NewHandlers(deps Dependencies) *Handlers {
	return &Handlers{
		Health:    NewHealthHandler(deps.Version, deps.Checks, deps.Logger),
		Threats:   NewThreatsHandler(deps.Service, deps.Logger),
		Whitelist: NewWhitelistHandler(deps.Service, deps.Logger),
		Scheduler: NewSchedulerHandler(deps.Scheduler, deps.Logger),
		Streaming: NewStreamingHandler(deps.Hub, deps.EventBus, deps.Logger),
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrScanInProgress):
		return http.StatusConflict
	case errors.Is(err, services.ErrCoordinatorClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrInvalidPackageName):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// respondServiceError writes err with its mapped status. Internal errors are
// logged and not echoed to the client.
func respondServiceError(w http.ResponseWriter, log *logger.Logger, err error, msg string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg(msg)
		respondError(w, status, msg)
		return
	}
	respondError(w, status, err.Error())
}
