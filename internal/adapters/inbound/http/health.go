// Package http provides the inbound HTTP adapter for the listing service.
package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/archon-research/stl-listing/internal/ports/inbound"
)

// Health serves the probe endpoints for ECS/Kubernetes deployments.
//
// Endpoints:
//   - /health/ready  - Returns 200 only when backing stores answer (readiness probe)
//   - /health/live   - Returns 200 when the process is healthy (liveness probe)
//   - /health        - Combined health status for monitoring
//
// On SIGTERM the binary sets shuttingDown, so every probe answers 503 while
// in-flight requests drain and the load balancer moves traffic away.
type Health struct {
	checker      inbound.HealthChecker
	shuttingDown *atomic.Bool
	logger       *slog.Logger
}

// NewHealth creates the health endpoints.
func NewHealth(checker inbound.HealthChecker, shuttingDown *atomic.Bool, logger *slog.Logger) *Health {
	if logger == nil {
		logger = slog.Default()
	}
	if shuttingDown == nil {
		shuttingDown = new(atomic.Bool)
	}
	return &Health{
		checker:      checker,
		shuttingDown: shuttingDown,
		logger:       logger.With("component", "health"),
	}
}

// RegisterRoutes registers the health routes on r.
func (hs *Health) RegisterRoutes(r chi.Router) {
	r.Get("/health/ready", hs.handleReady)
	r.Get("/health/live", hs.handleLive)
	r.Get("/health", hs.handleHealth)
}

// handleReady handles the readiness probe.
func (hs *Health) handleReady(w http.ResponseWriter, r *http.Request) {
	if hs.shuttingDown.Load() {
		hs.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "shutting_down"})
		return
	}
	if hs.checker.IsReady() {
		hs.respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	} else {
		hs.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
	}
}

// handleLive handles the liveness probe.
func (hs *Health) handleLive(w http.ResponseWriter, r *http.Request) {
	if hs.shuttingDown.Load() {
		hs.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "shutting_down"})
		return
	}
	if hs.checker.IsHealthy() {
		hs.respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	} else {
		hs.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
	}
}

// handleHealth handles the combined health check endpoint.
func (hs *Health) handleHealth(w http.ResponseWriter, r *http.Request) {
	if hs.shuttingDown.Load() {
		hs.respondJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":       "shutting_down",
			"ready":        false,
			"healthy":      false,
			"shuttingDown": true,
		})
		return
	}

	ready := hs.checker.IsReady()
	healthy := hs.checker.IsHealthy()
	status := "ok"
	statusCode := http.StatusOK

	if !ready || !healthy {
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	hs.respondJSON(w, statusCode, map[string]any{
		"status":       status,
		"ready":        ready,
		"healthy":      healthy,
		"shuttingDown": false,
	})
}

func (hs *Health) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		hs.logger.Error("failed to encode JSON response", "error", err)
	}
}

// DependencyCheck pings one backing store.
type DependencyCheck func(ctx context.Context) error

// DependencyChecker is ready when every dependency answers within the timeout.
// The process itself is always live; a stuck store is not fixed by a restart.
type DependencyChecker struct {
	checks  map[string]DependencyCheck
	timeout time.Duration
	logger  *slog.Logger
}

var _ inbound.HealthChecker = (*DependencyChecker)(nil)

// NewDependencyChecker creates a checker over the named checks.
func NewDependencyChecker(checks map[string]DependencyCheck, timeout time.Duration, logger *slog.Logger) *DependencyChecker {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DependencyChecker{
		checks:  checks,
		timeout: timeout,
		logger:  logger.With("component", "dependency-checker"),
	}
}

// IsReady runs every check.
func (c *DependencyChecker) IsReady() bool {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	ready := true
	for name, check := range c.checks {
		if err := check(ctx); err != nil {
			c.logger.Warn("dependency not ready", "dependency", name, "error", err)
			ready = false
		}
	}
	return ready
}

// IsHealthy always reports true.
func (c *DependencyChecker) IsHealthy() bool {
	return true
}
