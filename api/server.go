/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the admin frontend

ROUTE GROUPS:
  /api/companies/*         Company management
  /api/non-working-days/*  Calendar administration
  /api/demurrage/*         Configs, what-if calculation, run history
  /api/shipments/*         Shipments and accrued charges
  /api/admin/*             Manual demurrage check
  /api/scenarios/*         Demo scenarios
  /metrics                 Prometheus scrape endpoint
  /health                  Liveness

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultCORSOrigins is used when NewRouter gets no origins.
var DefaultCORSOrigins = []string{"http://localhost:5173", "http://localhost:3000"}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, origins ...string) *chi.Mux {
	if len(origins) == 0 {
		origins = DefaultCORSOrigins
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/companies", func(r chi.Router) {
			r.Get("/", h.ListCompanies)
			r.Post("/", h.CreateCompany)
			r.Get("/{id}", h.GetCompany)
		})

		r.Route("/non-working-days", func(r chi.Router) {
			r.Get("/", h.ListNonWorkingDays)
			r.Post("/", h.CreateNonWorkingDay)
			r.Post("/weekends", h.GenerateWeekends)
			r.Post("/{id}/activate", h.ActivateNonWorkingDay)
			r.Post("/{id}/deactivate", h.DeactivateNonWorkingDay)
		})

		r.Route("/demurrage", func(r chi.Router) {
			r.Get("/configs", h.ListConfigs)
			r.Post("/configs", h.CreateConfig)
			r.Put("/configs/{id}", h.UpdateConfig)
			r.Get("/calculate", h.CalculateStartDate)
			r.Get("/runs", h.ListRuns)
			r.Get("/schedule", h.GetSchedule)
		})

		r.Route("/shipments", func(r chi.Router) {
			r.Get("/", h.ListShipments)
			r.Post("/", h.CreateShipment)
			r.Get("/{id}", h.GetShipment)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/demurrage/run", h.TriggerCheck)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}
