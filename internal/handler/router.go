package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/promptpix/promptpix/internal/middleware"
)

// RouterConfig collects everything the route table needs.
type RouterConfig struct {
	Logger        *slog.Logger
	IsDevelopment bool
	MaxBodySize   int64
	CORS          middleware.CORSConfig

	Health     *HealthHandler
	Users      *UserHandler
	Generation *GenerationHandler
	Metrics    http.Handler

	Auth      middleware.AuthConfig
	RateLimit middleware.RateLimitConfig
}

// NewRouter builds the chi router with all routes and middleware.
func NewRouter(cfg RouterConfig) *chi.Mux {
	h := New()
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recoverer(cfg.Logger, cfg.IsDevelopment))
	r.Use(middleware.Security(middleware.SecurityConfig{IsDevelopment: cfg.IsDevelopment}))
	r.Use(middleware.CORS(cfg.CORS))
	if cfg.MaxBodySize > 0 {
		r.Use(middleware.MaxBodySize(cfg.MaxBodySize))
	}

	r.Get("/", h.Hello)
	r.Get("/healthz", cfg.Health.Healthz)
	r.Get("/readyz", cfg.Health.Readyz)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	authenticated := middleware.Auth(cfg.Auth)

	r.Route("/api/user", func(r chi.Router) {
		r.Get("/plans", cfg.Users.Plans)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimitIP(cfg.RateLimit))
			r.Post("/register", cfg.Users.Register)
			r.Post("/login", cfg.Users.Login)
		})

		r.Group(func(r chi.Router) {
			r.Use(authenticated)
			r.Get("/credits", cfg.Users.Credits)
			r.Post("/logout", cfg.Users.Logout)
			r.Post("/purchase", cfg.Users.Purchase)
			r.Get("/transactions", cfg.Users.Transactions)
		})
	})

	r.Route("/api/image", func(r chi.Router) {
		r.Use(authenticated)
		r.Use(middleware.RateLimitGenerate(cfg.RateLimit))
		r.Post("/generate-image", cfg.Generation.GenerateImage)
	})

	r.NotFound(h.NotFound)
	r.MethodNotAllowed(h.MethodNotAllowed)

	return r
}
