package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/arcafs/arca/internal/cli/health"
	"github.com/arcafs/arca/pkg/engine"
)

// healthCheckTimeout bounds the dependency probes of one readiness call.
const healthCheckTimeout = 5 * time.Second

// HealthHandler handles health check endpoints.
//
// Health endpoints are unauthenticated and provide:
//   - Liveness probe: Is the server process running?
//   - Readiness probe: Can the service reach its catalog, backends and queue?
//
// Responses use the shared health types so the CLI status command decodes
// them directly.
type HealthHandler struct {
	engine    *engine.Engine
	version   string
	startedAt time.Time
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(eng *engine.Engine, version string) *HealthHandler {
	return &HealthHandler{
		engine:    eng,
		version:   version,
		startedAt: time.Now().UTC(),
	}
}

// Liveness handles GET /healthz - simple liveness probe.
//
// Returns 200 OK as long as the server process is responsive. Designed for
// Kubernetes liveness probes; no dependencies are touched.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(h.startedAt)

	resp := health.Response{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	resp.Data.Service = "arca"
	resp.Data.Version = h.version
	resp.Data.StartedAt = h.startedAt.Format(time.RFC3339)
	resp.Data.Uptime = uptime.Round(time.Second).String()
	resp.Data.UptimeSec = int64(uptime.Seconds())

	WriteJSON(w, http.StatusOK, resp)
}

// Readiness handles GET /healthz/ready - readiness probe.
//
// Probes the catalog database, every storage backend and the task queue,
// reporting them individually. Returns 503 when any dependency fails.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	checks := []health.CheckStatus{
		runCheck(ctx, "catalog", h.engine.Store().Healthcheck),
	}
	for _, name := range h.engine.Backends().Names() {
		backend, err := h.engine.Backends().Get(name)
		if err != nil {
			checks = append(checks, health.CheckStatus{
				Name:   "backend:" + name,
				Status: "unhealthy",
				Error:  err.Error(),
			})
			continue
		}
		checks = append(checks, runCheck(ctx, "backend:"+name, backend.HealthCheck))
	}
	if q := h.engine.Queue(); q != nil {
		checks = append(checks, runCheck(ctx, "queue", q.Healthcheck))
	}

	resp := health.ReadyResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}
	status := http.StatusOK
	for _, c := range checks {
		if c.Status != "healthy" {
			resp.Status = "unhealthy"
			status = http.StatusServiceUnavailable
			break
		}
	}
	WriteJSON(w, status, resp)
}

// runCheck times one dependency probe.
func runCheck(ctx context.Context, name string, probe func(context.Context) error) health.CheckStatus {
	start := time.Now()
	err := probe(ctx)
	check := health.CheckStatus{
		Name:    name,
		Status:  "healthy",
		Latency: time.Since(start).String(),
	}
	if err != nil {
		check.Status = "unhealthy"
		check.Error = err.Error()
	}
	return check
}
