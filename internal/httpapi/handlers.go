// Package httpapi exposes the bridge's operational HTTP surface: liveness,
// readiness, and Prometheus metrics.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/basinforge/streambridge/internal/logging"
)

// ReadinessProvider reports whether the bridge is pumping messages.
type ReadinessProvider interface {
	Ready() bool
	StateName() string
}

// ReadinessFunc adapts a function pair into a ReadinessProvider.
type ReadinessFunc func() (ready bool, state string)

// Ready implements ReadinessProvider.
func (f ReadinessFunc) Ready() bool {
	ready, _ := f()
	return ready
}

// StateName implements ReadinessProvider.
func (f ReadinessFunc) StateName() string {
	_, state := f()
	return state
}

// Options configures the HandlerSet.
type Options struct {
	Readiness ReadinessProvider
	Gatherer  prometheus.Gatherer
}

// HandlerSet bundles the operational handlers.
type HandlerSet struct {
	readiness ReadinessProvider
	gatherer  prometheus.Gatherer
}

// NewHandlerSet constructs a HandlerSet from opts.
func NewHandlerSet(opts Options) *HandlerSet {
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &HandlerSet{readiness: opts.Readiness, gatherer: gatherer}
}

// Register attaches the handlers to mux.
func (h *HandlerSet) Register(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", h.handleHealthz)
	mux.HandleFunc("/readyz", h.handleReadyz)
	mux.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
}

func (h *HandlerSet) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HandlerSet) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	if h.readiness == nil || !h.readiness.Ready() {
		state := "unknown"
		if h.readiness != nil {
			state = h.readiness.StateName()
		}
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "state": state})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "state": h.readiness.StateName()})
}

func writeJSON(w http.ResponseWriter, status int, body map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log := logging.WithComponent("httpapi")
		log.Warn().Err(err).Msg("error writing response")
	}
}
