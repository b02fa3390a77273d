package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/driftbox/driftbox/pkg/store/metadata"
)

// HealthHandler handles health check endpoints.
//
// Health endpoints are unauthenticated and provide:
//   - Liveness probe: Is the server process running?
//   - Readiness probe: Is the server ready to accept requests?
type HealthHandler struct {
	store *metadata.Store
}

// NewHealthHandler creates a new health handler.
//
// The store parameter may be nil, in which case the readiness check
// returns unhealthy status.
func NewHealthHandler(store *metadata.Store) *HealthHandler {
	return &HealthHandler{store: store}
}

// Liveness handles GET /health - simple liveness probe.
//
// Returns 200 OK if the server process is running. This endpoint is
// designed for Kubernetes liveness probes and should always succeed as
// long as the HTTP server is responsive.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthyResponse(map[string]string{
		"service": "driftbox",
	}))
}

// Readiness handles GET /health/ready - readiness probe.
//
// Returns 200 OK if the metadata database answers a ping, 503 Service
// Unavailable otherwise.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("metadata store not initialized"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	sqlDB, err := h.store.DB().DB()
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse(err.Error()))
		return
	}

	start := time.Now()
	if err := sqlDB.PingContext(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse(err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, healthyResponse(map[string]any{
		"database_latency": time.Since(start).String(),
	}))
}
