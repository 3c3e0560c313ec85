package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Route("/users/{userID}", func(r chi.Router) {
				r.Post("/pairing-code", s.handleCreatePairingCode)

				r.Route("/device", func(r chi.Router) {
					r.Get("/", s.handleGetDevice)
					r.Delete("/", s.handleUnlinkDevice)
				})

				r.Post("/messages", s.handleSendMessage)
				r.Post("/library", s.handleRequestLibrary)
			})

			r.Get("/devices/connected", s.handleConnectedDevices)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "ok",
		"version":           s.version,
		"connected_devices": len(s.service.ConnectedDevices()),
	})
}
