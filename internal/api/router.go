package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter wires the preview routes.
func NewRouter(h *Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://localhost:*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", h.Health)

	r.Route("/listings", func(r chi.Router) {
		r.Get("/", h.ListListings)
		r.Get("/{id}", h.GetListing)
		r.Get("/{id}/html", h.GetListingHTML)
		r.Post("/{id}/render", h.RenderListing)
	})

	r.Route("/runs/{runID}", func(r chi.Router) {
		r.Get("/", h.ListRun)
		r.Get("/{id}", h.GetRunListing)
	})

	r.Post("/render", h.RenderDocument)

	return r
}
