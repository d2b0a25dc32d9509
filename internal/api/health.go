package api

import (
	"net/http"
	"time"

	"github.com/Thianvelaz/Cognio/internal/api/respond"
	"github.com/Thianvelaz/Cognio/internal/health"
)

// ServiceHealth is the view of service health the handlers need.
type ServiceHealth interface {
	IsHealthy() bool
	Components() []health.ComponentStatus
}

// HealthHandler serves liveness and service metadata.
type HealthHandler struct {
	health  ServiceHealth
	version string
}

func NewHealthHandler(h ServiceHealth, version string) *HealthHandler {
	return &HealthHandler{health: h, version: version}
}

// Root handles GET /
func (h *HealthHandler) Root(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSON(w, http.StatusOK, map[string]string{
		"name":        "Cognio",
		"version":     h.version,
		"description": "Personal semantic memory store",
	})
}

// CheckHealth handles GET /health. It always answers 200; the body reports
// healthy or unhealthy along with each dependency.
func (h *HealthHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	status := "unhealthy"
	if h.health.IsHealthy() {
		status = "healthy"
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":     status,
		"version":    h.version,
		"components": h.health.Components(),
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}
