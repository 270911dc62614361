/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend
  5. RateLimit:  Token bucket on mutating routes only

ROUTE GROUPS:
  /api/turn/*           Phase and turn
  /api/nations/*        Pools, categories, deposits, history
  /api/scenarios/*      Demo scenarios
  /api/rulesets         Custom rulesets
  /metrics              Prometheus (when enabled)

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

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
	"golang.org/x/time/rate"

	"github.com/warp/allocation-engine/metrics"
)

// RouterOptions configures the middleware around the handlers.
type RouterOptions struct {
	AllowedOrigins []string
	// Mutations allowed per second and burst. Zero disables the limit.
	RatePerSecond float64
	RateBurst     int
	MetricsPath   string
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	limit := rateLimit(opts.RatePerSecond, opts.RateBurst)

	r.Route("/api", func(r chi.Router) {
		// Turn routes
		r.Route("/turn", func(r chi.Router) {
			r.Get("/", h.GetTurn)
			r.With(limit).Post("/end", h.EndTurn)
			r.With(limit).Post("/advance", h.AdvancePhase)
		})

		// Nation routes
		r.Route("/nations", func(r chi.Router) {
			r.Get("/", h.ListNations)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetNation)
				r.Get("/pools", h.GetPools)
				r.Get("/categories", h.ListCategories)
				r.Get("/categories/{category}", h.GetCategory)
				r.Get("/available", h.GetAvailable)
				r.Get("/handoffs", h.GetHandoffs)
				r.Get("/journal", h.GetJournal)
				r.Post("/preview", h.Preview)
				r.With(limit).Put("/requested", h.SetRequested)
				r.With(limit).Post("/deposits", h.Deposit)
			})
		})

		r.Get("/effects", h.ListEffects)
		r.Get("/transactions", h.ListTransactions)
		r.Get("/phase-runs", h.ListPhaseRuns)
		r.With(limit).Post("/rulesets", h.LoadRulesetDocument)

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.With(limit).Post("/load", h.LoadScenario)
			r.With(limit).Post("/reset", h.ResetGame)
		})
	})

	if opts.MetricsPath != "" {
		r.Handle(opts.MetricsPath, metrics.Handler())
	}

	return r
}

// rateLimit shares one token bucket across all mutating routes.
func rateLimit(perSecond float64, burst int) func(http.Handler) http.Handler {
	if perSecond <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(perSecond), burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusTooManyRequests, "Rate limit exceeded", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
