package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/archon-research/stl-listing/internal/testutil"
)

// mockHealthChecker is a test implementation of HealthChecker
type mockHealthChecker struct {
	ready   bool
	healthy bool
}

func (m *mockHealthChecker) IsReady() bool   { return m.ready }
func (m *mockHealthChecker) IsHealthy() bool { return m.healthy }

func serveHealth(t *testing.T, checker *mockHealthChecker, shutting bool, path string) *httptest.ResponseRecorder {
	t.Helper()
	var shuttingDown atomic.Bool
	shuttingDown.Store(shutting)

	r := chi.NewRouter()
	NewHealth(checker, &shuttingDown, testutil.DiscardLogger()).RegisterRoutes(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHealth_Probes(t *testing.T) {
	tests := []struct {
		name           string
		path           string
		ready          bool
		healthy        bool
		shuttingDown   bool
		expectedStatus int
		expectedBody   string
	}{
		{"ready returns 200", "/health/ready", true, true, false, http.StatusOK, "ready"},
		{"not ready returns 503", "/health/ready", false, true, false, http.StatusServiceUnavailable, "not_ready"},
		{"ready while shutting down returns 503", "/health/ready", true, true, true, http.StatusServiceUnavailable, "shutting_down"},
		{"healthy returns 200", "/health/live", true, true, false, http.StatusOK, "healthy"},
		{"unhealthy returns 503", "/health/live", true, false, false, http.StatusServiceUnavailable, "unhealthy"},
		{"live while shutting down returns 503", "/health/live", true, true, true, http.StatusServiceUnavailable, "shutting_down"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serveHealth(t, &mockHealthChecker{ready: tt.ready, healthy: tt.healthy}, tt.shuttingDown, tt.path)

			if w.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d", tt.expectedStatus, w.Code)
			}
			var resp map[string]string
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp["status"] != tt.expectedBody {
				t.Errorf("expected status %q, got %q", tt.expectedBody, resp["status"])
			}
		})
	}
}

func TestHealth_Combined(t *testing.T) {
	tests := []struct {
		name           string
		ready          bool
		healthy        bool
		shuttingDown   bool
		expectedStatus int
		expectedBody   string
	}{
		{"all good returns ok", true, true, false, http.StatusOK, "ok"},
		{"not ready is degraded", false, true, false, http.StatusServiceUnavailable, "degraded"},
		{"unhealthy is degraded", true, false, false, http.StatusServiceUnavailable, "degraded"},
		{"shutting down", true, true, true, http.StatusServiceUnavailable, "shutting_down"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serveHealth(t, &mockHealthChecker{ready: tt.ready, healthy: tt.healthy}, tt.shuttingDown, "/health")

			if w.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d", tt.expectedStatus, w.Code)
			}
			var resp map[string]any
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp["status"] != tt.expectedBody {
				t.Errorf("expected status %q, got %v", tt.expectedBody, resp["status"])
			}
			if resp["shuttingDown"] != tt.shuttingDown {
				t.Errorf("expected shuttingDown=%v, got %v", tt.shuttingDown, resp["shuttingDown"])
			}
		})
	}
}
