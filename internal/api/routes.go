package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)

	// Orchestration
	mux.Handle("POST /api/v1/orchestrate", chain(http.HandlerFunc(h.Orchestrate)))

	// Templates
	mux.Handle("GET /api/v1/templates", chain(http.HandlerFunc(h.ListTemplates)))
	mux.Handle("POST /api/v1/templates", chain(http.HandlerFunc(h.CreateTemplate)))

	// Backends
	mux.Handle("GET /api/v1/backends", chain(http.HandlerFunc(h.ListBackends)))
	mux.Handle("GET /api/v1/backends/{id}/circuit", chain(http.HandlerFunc(h.GetCircuit)))

	// Metrics
	mux.Handle("GET /api/v1/metrics", chain(http.HandlerFunc(h.GetMetrics)))
}
