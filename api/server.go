/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for operational tooling

ROUTE GROUPS:
  /api/charges/*   Charge lifecycle and settlement
  /api/accounts/*  Account-level charge listing
  /api/admin/*     Batch trigger

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

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
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/charges", func(r chi.Router) {
			r.Post("/", h.CreateCharge)
			r.Get("/{id}", h.GetCharge)
			r.Put("/{id}", h.UpdateCharge)
			r.Post("/{id}/pay", h.Pay)
			r.Post("/{id}/waive", h.Waive)
			r.Post("/{id}/undo-pay", h.UndoPay)
			r.Post("/{id}/undo-waive", h.UndoWaive)
			r.Post("/{id}/inactivate", h.Inactivate)
		})

		r.Route("/accounts", func(r chi.Router) {
			r.Get("/{id}/charges", h.ListAccountCharges)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/batch/run", h.RunBatch)
		})
	})

	return r
}
