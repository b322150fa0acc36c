package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"secureguard-lab/pkg/logger"
)

// WhitelistHandler manages user-exempted packages
type WhitelistHandler struct {
	service ThreatService
	logger  *logger.Logger
}

// NewWhitelistHandler creates a new whitelist handler
func NewWhitelistHandler(service ThreatService, log *logger.Logger) *WhitelistHandler {
	return &WhitelistHandler{
		service: service,
		logger:  log.WithComponent("whitelist-handler"),
	}
}

// WhitelistRequest is the body of POST /api/v1/whitelist
type WhitelistRequest struct {
	PackageName string `json:"package_name"`
}

// List handles GET /api/v1/whitelist
func (h *WhitelistHandler) List(w http.ResponseWriter, r *http.Request) {
	apps, err := h.service.Whitelist(r.Context())
	if err != nil {
		respondServiceError(w, h.logger, err, "failed to list whitelist")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"applications": apps,
		"count":        len(apps),
	})
}

// Add handles POST /api/v1/whitelist. The response carries the report of
// the reconciliation that followed the edit.
func (h *WhitelistHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req WhitelistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.PackageName = strings.TrimSpace(req.PackageName)
	if req.PackageName == "" {
		respondError(w, http.StatusBadRequest, "package_name is required")
		return
	}

	report, err := h.service.AddToWhitelist(r.Context(), req.PackageName)
	if err != nil {
		respondServiceError(w, h.logger, err, "failed to whitelist package")
		return
	}
	respondJSON(w, http.StatusCreated, report)
}

// Remove handles DELETE /api/v1/whitelist/{package}
func (h *WhitelistHandler) Remove(w http.ResponseWriter, r *http.Request) {
	pkg := chi.URLParam(r, "package")
	if pkg == "" {
		respondError(w, http.StatusBadRequest, "package is required")
		return
	}

	report, err := h.service.RemoveFromWhitelist(r.Context(), pkg)
	if err != nil {
		respondServiceError(w, h.logger, err, "failed to remove package from whitelist")
		return
	}
	respondJSON(w, http.StatusOK, report)
}
