package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/adpulse/perftracker/internal/config"
)

// SetupRoutes configures all API routes.
func SetupRoutes(h *Handlers, authCfg config.AuthConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://tracker.adpulse.io", "http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check (no auth required)
	r.Get("/health", h.HealthCheck)

	// API routes (protected by the shared token when configured)
	r.Route("/api", func(r chi.Router) {
		if authCfg.Enabled {
			r.Use(tokenAuth(authCfg.Token))
		}

		r.Route("/tracker", func(r chi.Router) {
			r.Post("/deepdive", h.DeepDive)
			r.Get("/perspectives", h.GetPerspectives)
			r.Get("/filter-operators", h.GetFilterOperators)
			r.Get("/lookup/{field}", h.GetLookupValues)

			r.Post("/snapshots", h.CreateSnapshot)
			r.Get("/snapshots/{id}", h.GetSnapshot)
		})
	})

	return r
}

// tokenAuth gates /api behind a single shared bearer token. Real user
// auth lives in the surrounding dashboard app; this exists so a
// standalone deployment is never left wide open.
func tokenAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			got := strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"unauthorized"}`))
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}
