package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// WebSocket auth is via ticket, validated in the handler.
		r.Get("/ws", s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/ws-ticket", s.handleWSTicket)
			r.Get("/metrics", s.handleMetrics)
			r.Get("/poller", s.handlePollerStatus)
			r.Post("/discover", s.handleDiscover)
			r.Get("/audit", s.handleListAudit)

			r.Route("/accessories", func(r chi.Router) {
				r.Get("/", s.handleListAccessories)

				r.Route("/{uuid}", func(r chi.Router) {
					r.Get("/", s.handleGetAccessory)
					r.Delete("/", s.handleRemoveAccessory)
					r.Post("/refresh", s.handleRefreshAccessory)
					r.Get("/properties/{name}", s.handleGetProperty)
					r.Put("/properties/{name}", s.handleSetProperty)
				})
			})
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
