// Package onboard provides a self-service tenant onboarding library: one
// registration call reserves an alias, provisions the organization and its
// administrator in the identity provider, and records the tenant locally,
// rolling everything back when a step fails.
//
// Setup:
//
//  1. Apply repository.Schema (pkg/repository/schema.sql) with your migration tool
//  2. Create an Onboard instance and mount its routes
//
// Basic usage:
//
//	db, _ := sql.Open("postgres", "postgres://localhost/myapp?sslmode=disable")
//
//	ob, err := onboard.New(onboard.Config{
//	    DB:         db,
//	    Gateway:    idp.NewKeycloakClient(kcConfig, logger),
//	    RootDomain: "crm.com",
//	})
//	if err != nil {
//	    log.Fatal(err) // Will fail if the schema hasn't been applied
//	}
//
//	r := chi.NewRouter()
//	r.Mount("/", ob.Router())
//	go ob.RunSweeper(ctx)
//	http.ListenAndServe(":8080", r)
//
// Without DB the stores are kept in memory, which is only suitable for
// local development and tests.
package onboard

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/tendant/simple-onboarding/internal/config"
	onboardhttp "github.com/tendant/simple-onboarding/internal/http"
	"github.com/tendant/simple-onboarding/internal/httputil"
	"github.com/tendant/simple-onboarding/internal/metrics"
	"github.com/tendant/simple-onboarding/pkg/auth"
	"github.com/tendant/simple-onboarding/pkg/domain"
	"github.com/tendant/simple-onboarding/pkg/idp"
	"github.com/tendant/simple-onboarding/pkg/onboarding"
	"github.com/tendant/simple-onboarding/pkg/repository"
)

// Config holds the configuration for the onboarding library.
type Config struct {
	// DB is the database connection. When nil, in-memory stores are used.
	DB *sql.DB

	// Gateway is the identity provider (required).
	Gateway idp.Gateway

	// RootDomain is the domain login URLs are built under (default: "crm.com").
	RootDomain string

	// AliasReservationTTL is how long an unconfirmed alias stays held (default: 30 minutes).
	AliasReservationTTL time.Duration

	// AliasSweepInterval is how often expired reservations are removed (default: 1 minute).
	AliasSweepInterval time.Duration

	// CompensationTimeout bounds rollback of a failed registration (default: 30 seconds).
	CompensationTimeout time.Duration

	// Events receives a TenantProvisioned event per successful registration (optional).
	Events onboarding.EventEmitter

	// Registry receives the onboarding metrics (default: a private registry).
	Registry *prometheus.Registry

	// PasswordPolicy is enforced on registration (default: min 8, upper, lower, digit, special).
	PasswordPolicy *config.PasswordPolicyConfig

	// StrictEmailValidation requires a dotted email domain.
	StrictEmailValidation bool

	// BlockDisposableEmail rejects known disposable mailbox providers.
	BlockDisposableEmail bool

	// Logger is the structured logger (default: JSON on stdout).
	Logger *slog.Logger
}

type aliasStore interface {
	onboarding.AliasReservationStore
	repository.ExpiredAliasDeleter
}

// Onboard is the main onboarding instance.
type Onboard struct {
	config    Config
	aliases   aliasStore
	service   *onboarding.Service
	validator *auth.RegistrationValidator
	metrics   *metrics.Metrics
}

// New creates a new Onboard instance with the given configuration.
// Returns an error if required database tables don't exist.
func New(cfg Config) (*Onboard, error) {
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	var (
		aliases aliasStore
		tenants onboarding.TenantStore
		users   onboarding.UserDirectory
	)
	if cfg.DB != nil {
		if err := validateSchema(cfg.DB); err != nil {
			return nil, err
		}
		aliases = repository.NewAliasReservationsRepository(cfg.DB, cfg.AliasReservationTTL)
		tenants = repository.NewTenantsRepository(cfg.DB)
		users = repository.NewUsersRepository(cfg.DB)
	} else {
		cfg.Logger.Warn("onboard: no database configured, using in-memory stores")
		aliases = repository.NewMemoryAliasReservations(cfg.AliasReservationTTL, nil)
		tenants = repository.NewMemoryTenants()
		users = repository.NewMemoryUsers()
	}

	m := metrics.New(cfg.Registry)
	service := onboarding.NewService(onboarding.Config{
		RootDomain:          cfg.RootDomain,
		CompensationTimeout: cfg.CompensationTimeout,
		Logger:              cfg.Logger,
		Metrics:             m,
	}, aliases, tenants, users, cfg.Gateway, cfg.Events)

	validator := auth.NewRegistrationValidator(
		auth.NewPasswordPolicy(*cfg.PasswordPolicy),
		cfg.StrictEmailValidation,
		cfg.BlockDisposableEmail,
	)

	return &Onboard{
		config:    cfg,
		aliases:   aliases,
		service:   service,
		validator: validator,
		metrics:   m,
	}, nil
}

// Router returns a chi router with all onboarding routes.
//
// Routes:
//
//	POST /v1/auth/register                       - Register a tenant
//	GET  /v1/tenants/{id}                        - Get a tenant
//	GET  /v1/tenants/alias/{alias}               - Get a tenant by alias
//	GET  /v1/tenants/alias/{alias}/availability  - Check alias availability
//	GET  /health                                 - Health check
//	GET  /metrics                                - Prometheus metrics
func (o *Onboard) Router() chi.Router {
	r := chi.NewRouter()
	r.Mount("/", onboardhttp.NewRouter(onboardhttp.RouterConfig{
		Logger:         o.config.Logger,
		Registrar:      o.service,
		Tenants:        o.service,
		Validator:      o.validator,
		MetricsHandler: o.metrics.Handler(),
	}))
	return r
}

// Handler returns an http.Handler for mounting with http.StripPrefix.
func (o *Onboard) Handler() http.Handler {
	return o.Router()
}

// Routes registers all onboarding routes on an http.ServeMux with the given prefix:
//
//	mux := http.NewServeMux()
//	ob.Routes(mux, "/api")
func (o *Onboard) Routes(mux *http.ServeMux, prefix string) {
	mux.Handle(prefix+"/", http.StripPrefix(prefix, o.Router()))
}

// HealthHandler returns a simple health check handler.
func (o *Onboard) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// Service returns the onboarding service for direct use.
func (o *Onboard) Service() *onboarding.Service {
	return o.service
}

// Register provisions a tenant without going through HTTP. Input is validated
// the same way the registration endpoint validates it.
func (o *Onboard) Register(ctx context.Context, req onboarding.RegisterRequest) (*onboarding.RegisterResult, error) {
	reg, err := o.validator.Validate(auth.Registration{
		Email:            req.Email,
		Password:         req.Password,
		FullName:         req.FullName,
		OrganizationName: req.OrganizationName,
		Alias:            req.Alias,
	})
	if err != nil {
		return nil, err
	}
	return o.service.Register(ctx, onboarding.RegisterRequest{
		Email:            reg.Email,
		Password:         reg.Password,
		FullName:         reg.FullName,
		OrganizationName: reg.OrganizationName,
		Alias:            reg.Alias,
	})
}

// RunSweeper removes expired alias reservations until ctx is cancelled.
func (o *Onboard) RunSweeper(ctx context.Context) {
	sweeper := repository.NewAliasSweeper(o.aliases, o.config.AliasSweepInterval, o.config.Logger)
	sweeper.OnSwept = o.metrics.AliasReservationsExpired
	sweeper.Run(ctx)
}

func validateConfig(cfg *Config) error {
	if cfg.Gateway == nil {
		return errors.New("onboard: Gateway is required")
	}
	if cfg.AliasReservationTTL < 0 {
		return errors.New("onboard: AliasReservationTTL must not be negative")
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.RootDomain == "" {
		cfg.RootDomain = "crm.com"
	}
	if cfg.AliasReservationTTL == 0 {
		cfg.AliasReservationTTL = domain.AliasReservationTTL
	}
	if cfg.AliasSweepInterval <= 0 {
		cfg.AliasSweepInterval = time.Minute
	}
	if cfg.CompensationTimeout <= 0 {
		cfg.CompensationTimeout = onboarding.DefaultCompensationTimeout
	}
	if cfg.PasswordPolicy == nil {
		cfg.PasswordPolicy = &config.PasswordPolicyConfig{
			MinLength:        8,
			RequireUppercase: true,
			RequireLowercase: true,
			RequireNumber:    true,
			RequireSpecial:   true,
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
}

// validateSchema checks that required database tables exist.
func validateSchema(db *sql.DB) error {
	requiredTables := []string{"tenant_alias_reservations", "tenants", "users", "user_tenant_memberships"}

	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'public' AND table_name = $1
	`

	for _, table := range requiredTables {
		var name string
		err := db.QueryRow(query, table).Scan(&name)
		if err == sql.ErrNoRows {
			return fmt.Errorf("onboard: missing table '%s' - apply repository.Schema first", table)
		}
		if err != nil {
			return fmt.Errorf("onboard: failed to check schema: %w", err)
		}
	}

	return nil
}
