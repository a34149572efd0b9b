package server

import (
	"github.com/go-chi/chi/v5"

	"github.com/modlens/modlens/internal/server/handlers"
)

// registerRoutes registers all HTTP routes
func (s *Server) registerRoutes() {
	// Background fetch control surface. Unsupported methods answer 405
	// with an Allow header via the subrouter's MethodNotAllowed handler.
	fetch := handlers.NewBackgroundFetchHandler(s.controller)
	s.router.Route("/background-fetch", func(r chi.Router) {
		r.Get("/", fetch.Status)
		r.Post("/", fetch.Control)
		r.MethodNotAllowed(fetch.MethodNotAllowed)
	})

	// Cached mod metadata lookups
	mods := handlers.NewModsHandler(s.controller)
	s.router.Get("/mods/{key}", mods.Get)

	// Standard health endpoints
	if s.health != nil {
		s.router.Get("/health", s.health.HealthHandler)
		s.router.Get("/health/live", s.health.LivenessHandler)
		s.router.Get("/health/ready", s.health.ReadinessHandler)
		s.router.Get("/health/startup", s.health.StartupHandler)
	}

	// Version endpoint
	s.router.Get("/version", handlers.VersionHandler)

	// Metrics endpoint (in server package to access HandleError)
	s.router.Get("/metrics", MetricsHandler)
}
