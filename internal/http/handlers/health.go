package handlers

import (
	"net/http"

	"go.uber.org/zap"
)

// HealthHandler answers liveness probes
type HealthHandler struct {
	log *zap.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(log *zap.Logger) *HealthHandler {
	return &HealthHandler{log: log}
}

// ServeHTTP handles GET /health
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, h.log, http.StatusOK, map[string]bool{"ok": true})
}
