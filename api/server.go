/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the review UI

ROUTE GROUPS:
  /api/scenarios/*      Stored collection
  /api/normalize        Stateless normalization
  /api/merge            Merge sources (dry_run supported)
  /api/append           Additive append (dry_run supported)
  /api/validate         Schema validation
  /api/runs, /backups   History
  /api/reset            Database reset (dev only)

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/{id}", h.GetScenario)
		})
		r.Get("/fingerprints", h.ListFingerprints)

		r.Post("/normalize", h.Normalize)
		r.Post("/merge", h.Merge)
		r.Post("/append", h.Append)
		r.Post("/validate", h.Validate)

		r.Get("/runs", h.ListRuns)
		r.Route("/backups", func(r chi.Router) {
			r.Get("/", h.ListBackups)
			r.Post("/{id}/restore", h.RestoreBackup)
		})

		r.Post("/reset", h.ResetDatabase)
	})

	return r
}
