package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter wires the handlers into the service's route tree. dashboard is
// optional; when set it is served at the root.
func NewRouter(h *Handler, mh *MetricsHandler, dashboard http.HandlerFunc) http.Handler {
	r := chi.NewRouter()

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.HandleHealth)
		r.Post("/chat", h.HandleChat)
		r.Get("/status", h.HandleStatus)
		r.Post("/admin/circuit/reset", h.HandleCircuitReset)
	})

	if mh != nil {
		r.Get("/metrics", mh.ServeHTTP)
	}

	if dashboard != nil {
		r.Get("/", dashboard)
	}

	return r
}
