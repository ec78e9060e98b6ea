package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(withRequestID, s.accessLog, s.recoverPanics)
	r.Use(middleware.RequestSize(maxRequestBodySize))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Get("/{id}", s.handleGetDevice)
		})

		// Group addresses travel URL-encoded ("1%2F2%2F3").
		r.Route("/bus", func(r chi.Router) {
			r.Get("/", s.handleListBus)
			r.Get("/{ga}", s.handleReadBus)
			r.Put("/{ga}", s.handleWriteBus)
		})

		r.Route("/values", func(r chi.Router) {
			r.Post("/decode", s.handleDecodeValue)
			r.Post("/encode", s.handleEncodeValue)
		})

		r.Post("/runs", s.handleRun)

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"version":    s.version,
		"devices":    s.registry.Count(),
		"ws_clients": s.hub.ClientCount(),
	})
}
