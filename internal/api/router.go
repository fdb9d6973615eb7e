// Package api provides HTTP router setup.
package api

import (
	"net/http"

	"github.com/eventparse/chrono/internal/cache"
	"github.com/eventparse/chrono/internal/config"
	"github.com/eventparse/chrono/internal/database"
	"github.com/eventparse/chrono/internal/llm"
	"github.com/eventparse/chrono/internal/pipeline"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(cfg *config.Config, orch *pipeline.Orchestrator, resultCache *cache.Cache, store database.Store, provider llm.Provider) http.Handler {
	r := chi.NewRouter()

	handler := NewHandler(cfg, orch, resultCache, store, provider)

	// Global middleware
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", handler.HealthCheck)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(store))
			r.Use(AuditMiddleware(store))
			r.Use(RateLimitMiddleware(cfg.RateLimits.RequestsPerMinute))

			// Parsing endpoints
			r.Post("/parse", handler.ParseText)
			r.Post("/ics", handler.RenderICS)

			// Cache inspection
			r.Get("/cache/stats", handler.CacheStats)
			r.Post("/cache/cleanup", handler.CacheCleanup)

			// Audit logs
			r.Get("/audit", handler.GetAuditLogs)
		})

		// Admin routes (API key management)
		// In production, these should be protected differently
		r.Route("/admin", func(r chi.Router) {
			r.Post("/keys", handler.CreateAPIKey)
			r.Get("/keys", handler.ListAPIKeys)
			r.Delete("/keys/{id}", handler.DeleteAPIKey)
		})
	})

	return r
}
