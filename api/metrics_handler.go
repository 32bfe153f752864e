package api

import (
	"encoding/json"
	"net/http"

	"github.com/yourusername/wrenchgate/metrics"
)

// MetricsProvider supplies snapshots for the metrics endpoint.
type MetricsProvider interface {
	GetSnapshot() *metrics.Snapshot
}

// MetricsHandler serves GET /metrics.
type MetricsHandler struct {
	provider MetricsProvider
}

// NewMetricsHandler creates a metrics handler.
func NewMetricsHandler(provider MetricsProvider) *MetricsHandler {
	return &MetricsHandler{provider: provider}
}

// ServeHTTP renders the current metrics snapshot as JSON.
func (h *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	snapshot := h.provider.GetSnapshot()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snapshot)
}
