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

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/categories", s.handleCategories)
		r.Get("/models", s.handleModels)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Post("/", s.handleCreateDevice)
			r.Put("/{id}", s.handleUpdateDevice)
			r.Delete("/{id}", s.handleDeleteDevice)
		})

		// Anything else under /api/v1 is forwarded to the vendor cloud API.
		r.NotFound(s.handleCloudProxy)
	})

	// API v2 routes (bulk operations used by the bundled UI)
	r.Route("/api/v2", func(r chi.Router) {
		r.Get("/devices", s.handleDumpDevices)
		r.Post("/devices", s.handleBulkUpdateDevices)
		r.Post("/command", s.handleCommand)
	})

	// Bundled web UI
	if s.cfg.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(s.cfg.StaticDir)))
	}

	return r
}

// handleStatus reports gateway health for monitoring UIs: broker
// connectivity, any startup error, and the (redacted) cloud credentials.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	startupError := s.startupError
	s.mu.RUnlock()

	online := s.mqtt != nil && s.mqtt.IsConnected()

	writeJSON(w, http.StatusOK, map[string]any{
		"online":  online,
		"version": s.version,
		"error":   startupError,
		"credentials": map[string]string{
			"username": s.cloudCfg.MQTT.Auth.Login,
			"password": "***",
			"broker":   s.cloudCfg.MQTT.Broker.Host,
		},
	})
}
