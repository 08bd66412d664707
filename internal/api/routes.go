package api

import (
	"errors"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

var errIngestDisabled = errors.New("ingest is not configured")

// SetupRoutes builds the ops router.
func SetupRoutes(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", h.HealthCheck)

	r.Route("/batches/{batch}", func(r chi.Router) {
		r.Get("/", h.BatchStatus)
		r.Post("/process", h.ProcessBatch)
		r.Post("/lapsed", h.DetectLapsed)
		r.Post("/requeue", h.Requeue)
	})

	r.Post("/ingest", h.Ingest)

	return r
}
