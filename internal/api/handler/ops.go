// Package handler provides HTTP handlers for the RequestDesk API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/requestdesk/requestdesk/internal/api/models"
	"github.com/requestdesk/requestdesk/internal/api/response"
	"github.com/requestdesk/requestdesk/internal/resilience"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	database  Pinger
	providers *resilience.Registry
}

// NewOpsHandler creates a new OpsHandler. database may be nil when no pool
// is wired (tests); providers may be nil when no external endpoints are
// configured.
func NewOpsHandler(version, buildTime string, database Pinger, providers *resilience.Registry) *OpsHandler {
	return &OpsHandler{
		version:   version,
		buildTime: buildTime,
		database:  database,
		providers: providers,
	}
}

// HealthCheck handles GET /api/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]interface{}{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ProviderHealth handles GET /api/ops/providers - external endpoint health.
func (h *OpsHandler) ProviderHealth(w http.ResponseWriter, r *http.Request) {
	providers := []models.ProviderHealth{}
	if h.providers != nil {
		for _, ph := range h.providers.GetAllHealth() {
			providers = append(providers, models.ProviderHealth{
				Name:          ph.Name,
				State:         ph.CircuitState.String(),
				Healthy:       ph.IsHealthy(),
				LastSuccessAt: ph.LastSuccessAt,
				LastFailureAt: ph.LastFailureAt,
				LastError:     ph.LastError,
			})
		}
	}
	response.JSON(w, r, http.StatusOK, models.ProviderHealthList{Providers: providers})
}

// ReadinessCheck handles GET /api/ops/ready - readiness check.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
	}

	if h.database != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := h.database.Ping(ctx); err != nil {
			response.ServiceUnavailable(w, r, "database unreachable")
			return
		}
	}

	response.JSON(w, r, http.StatusOK, health)
}
