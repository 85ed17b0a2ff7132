package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/tendant/simple-onboarding/internal/config"
	"github.com/tendant/simple-onboarding/internal/http/features/register"
	"github.com/tendant/simple-onboarding/internal/http/features/tenants"
	"github.com/tendant/simple-onboarding/internal/http/middleware"
	"github.com/tendant/simple-onboarding/internal/httputil"
	"github.com/tendant/simple-onboarding/pkg/auth"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Logger          *slog.Logger
	Registrar       register.Registrar
	Tenants         tenants.Finder
	Validator       *auth.RegistrationValidator
	MetricsHandler  http.Handler // optional; serves /metrics when set
	RateLimitConfig config.RateLimitConfig
	SecurityHeaders config.SecurityHeadersConfig
	Validation      config.ValidationConfig
}

// NewRouter creates a new HTTP router with all routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.Recover(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.SecurityHeaders(cfg.SecurityHeaders))
	r.Use(middleware.RequestSizeLimit(cfg.Validation.MaxRequestBodySize))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	rateLimiters := middleware.CreateRateLimiters(cfg.RateLimitConfig, cfg.Logger)

	registerHandler := register.NewHandler(cfg.Logger, cfg.Registrar, cfg.Validator)
	r.With(rateLimiters[middleware.LimiterRegister]).Post("/v1/auth/register", registerHandler.Register)

	tenantsHandler := tenants.NewHandler(cfg.Logger, cfg.Tenants)
	r.Group(func(r chi.Router) {
		r.Use(rateLimiters[middleware.LimiterLookup])
		tenantsHandler.Routes(r)
	})

	return r
}
