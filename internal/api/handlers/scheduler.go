package handlers

import (
	"net/http"

	"secureguard-lab/internal/domain/services"
	"secureguard-lab/pkg/logger"
)

// SchedulerHandler exposes periodic-scan history
type SchedulerHandler struct {
	jobs   JobSource
	logger *logger.Logger
}

// NewSchedulerHandler creates a new scheduler handler. jobs may be nil when
// the scheduler is disabled.
func NewSchedulerHandler(jobs JobSource, log *logger.Logger) *SchedulerHandler {
	return &SchedulerHandler{
		jobs:   jobs,
		logger: log.WithComponent("scheduler-handler"),
	}
}

// Jobs handles GET /api/v1/scheduler/jobs
func (h *SchedulerHandler) Jobs(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		respondJSON(w, http.StatusOK, map[string]any{
			"jobs":    []services.SchedulerJob{},
			"enabled": false,
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"jobs":    h.jobs.Jobs(),
		"stats":   h.jobs.Stats(),
		"enabled": true,
	})
}
