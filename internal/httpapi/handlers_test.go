package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/basinforge/streambridge/internal/metrics"
)

func newTestMux(ready bool, state string) *http.ServeMux {
	registry := prometheus.NewRegistry()
	metrics.Register(registry)
	mux := http.NewServeMux()
	NewHandlerSet(Options{
		Readiness: ReadinessFunc(func() (bool, string) { return ready, state }),
		Gatherer:  registry,
	}).Register(mux)
	return mux
}

func TestHealthzAlwaysOK(t *testing.T) {
	mux := newTestMux(false, "idle")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestReadyzReflectsOrchestratorState(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestMux(false, "draining").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 while not running, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	newTestMux(true, "running").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 while running, got %d", rec.Code)
	}
}

func TestMetricsEndpointServesCollectors(t *testing.T) {
	mux := newTestMux(true, "running")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
