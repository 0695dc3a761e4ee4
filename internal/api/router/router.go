package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/booking-reminders/internal/accounts"
	"github.com/wolfman30/booking-reminders/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/booking-reminders/internal/http/middleware"
	"github.com/wolfman30/booking-reminders/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Appointments       *handlers.AppointmentsHandler
	Health             *handlers.HealthHandler
	MetricsHandler     http.Handler
	RateLimiter        *httpmiddleware.RateLimiter
	JWTSecret          string
	CORSAllowedOrigins []string
}

// New creates the API router.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	mountOps(r, cfg)

	if cfg.Appointments != nil {
		h := cfg.Appointments
		r.Route("/appointments", func(r chi.Router) {
			r.Use(httpmiddleware.AccountJWT(cfg.JWTSecret))
			if cfg.RateLimiter != nil {
				r.Use(httpmiddleware.RateLimit(cfg.RateLimiter))
			}
			r.Get("/", h.List)
			r.With(httpmiddleware.RequireRole(string(accounts.RoleUser))).Post("/", h.Create)
			r.With(httpmiddleware.RequireRole(string(accounts.RoleProvider))).Patch("/accept", h.Accept)
			r.Get("/{id}", h.Get)
			r.Put("/{id}", h.Update)
			r.Delete("/{id}", h.Delete)
			r.Get("/{id}/reminders", h.Reminders)
		})
	}

	return r
}

// NewOps serves only health, metrics and reminder stats. The reminder worker
// exposes it on its own port.
func NewOps(cfg *Config) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	mountOps(r, cfg)
	return r
}

func mountOps(r chi.Router, cfg *Config) {
	health := cfg.Health
	if health == nil {
		health = handlers.NewHealthHandler(nil, nil)
	}
	r.Get("/health", health.Health)
	r.Get("/stats/reminders", health.ReminderStats)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}
}
