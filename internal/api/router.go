package api

import (
	"net/http"

	"image_gen/internal/api/handler"
	"image_gen/internal/api/middleware"
	"image_gen/internal/common/security"
	"image_gen/internal/domain/repository"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type RouterConfig struct {
	Auth   *handler.AuthHandler
	Image  *handler.ImageHandler
	Admin  *handler.AdminHandler
	Health http.Handler

	Tokens *security.TokenIssuer
	Users  repository.UserRepository
	Log    zerolog.Logger

	// Optional middleware; nil skips it.
	Secure      func(http.Handler) http.Handler
	IPRateLimit func(http.Handler) http.Handler
	CORSOrigins []string
	// Metrics mounts /metrics and the request duration middleware.
	Metrics bool
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Base Middlewares
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.RequestLogger(cfg.Log))
	r.Use(chiMiddleware.Recoverer)
	if cfg.Metrics {
		r.Use(middleware.PrometheusMiddleware)
	}
	if cfg.Secure != nil {
		r.Use(cfg.Secure)
	}
	r.Use(middleware.CORS(cfg.CORSOrigins))
	if cfg.IPRateLimit != nil {
		r.Use(cfg.IPRateLimit)
	}

	if cfg.Health != nil {
		r.Method(http.MethodGet, "/health", cfg.Health)
	}
	if cfg.Metrics {
		r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	}

	// Public auth routes
	cfg.Auth.RegisterRoutes(r)

	// Bearer routes
	r.Group(func(authed chi.Router) {
		authed.Use(jwtauth.Verify(cfg.Tokens.JWTAuth(), jwtauth.TokenFromHeader))
		authed.Use(middleware.Authenticator(cfg.Users, cfg.Log))

		cfg.Image.RegisterRoutes(authed)

		authed.Route("/admin", func(admin chi.Router) {
			admin.Use(middleware.RequireAdmin)
			cfg.Admin.RegisterRoutes(admin)
		})
	})

	return r
}
