package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/tendant/simple-onboarding/internal/config"
	"github.com/tendant/simple-onboarding/internal/events"
	httpserver "github.com/tendant/simple-onboarding/internal/http"
	"github.com/tendant/simple-onboarding/internal/metrics"
	"github.com/tendant/simple-onboarding/pkg/auth"
	"github.com/tendant/simple-onboarding/pkg/idp"
	"github.com/tendant/simple-onboarding/pkg/onboarding"
	"github.com/tendant/simple-onboarding/pkg/repository"
)

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	// Connect to database
	db, err := repository.NewDB(repository.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		DBName:   cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	logger.Info("connected to database")

	if cfg.DBApplySchema {
		if _, err := db.Exec(repository.Schema); err != nil {
			logger.Error("failed to apply schema", "error", err)
			os.Exit(1)
		}
		logger.Info("schema applied")
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// Event publisher
	publisher, closePublisher, err := newPublisher(cfg.Events, logger)
	if err != nil {
		logger.Error("failed to initialize event publisher", "backend", cfg.Events.Backend, "error", err)
		os.Exit(1)
	}
	defer closePublisher()
	emitter := events.NewAsyncEmitter(publisher, logger, m)
	logger.Info("event publisher enabled", "backend", cfg.Events.Backend)

	// Initialize repositories
	aliasesRepo := repository.NewAliasReservationsRepository(db, cfg.AliasReservationTTL)
	tenantsRepo := repository.NewTenantsRepository(db)
	usersRepo := repository.NewUsersRepository(db)

	// Identity provider
	keycloak := idp.NewKeycloakClient(idp.KeycloakConfig{
		AuthServerURL: cfg.Keycloak.AuthServerURL,
		Realm:         cfg.Keycloak.Realm,
		ClientID:      cfg.Keycloak.ClientID,
		ClientSecret:  cfg.Keycloak.ClientSecret,
		Timeout:       cfg.Keycloak.Timeout,
		RetryCount:    cfg.Keycloak.RetryCount,
	}, logger)

	// Initialize services
	service := onboarding.NewService(onboarding.Config{
		RootDomain:          cfg.RootDomain,
		CompensationTimeout: cfg.CompensationTimeout,
		Logger:              logger,
		Metrics:             m,
	}, aliasesRepo, tenantsRepo, usersRepo, keycloak, emitter)

	validator := auth.NewRegistrationValidator(
		auth.NewPasswordPolicy(cfg.PasswordPolicy),
		cfg.Validation.StrictEmailValidation,
		cfg.Validation.BlockDisposableEmail,
	)

	// Background sweeper for abandoned alias reservations
	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	sweeper := repository.NewAliasSweeper(aliasesRepo, cfg.AliasSweepInterval, logger)
	sweeper.OnSwept = m.AliasReservationsExpired
	var sweeperWG sync.WaitGroup
	sweeperWG.Add(1)
	go func() {
		defer sweeperWG.Done()
		sweeper.Run(sweepCtx)
	}()

	// Create router
	router := httpserver.NewRouter(httpserver.RouterConfig{
		Logger:          logger,
		Registrar:       service,
		Tenants:         service,
		Validator:       validator,
		MetricsHandler:  m.Handler(),
		RateLimitConfig: cfg.RateLimit,
		SecurityHeaders: cfg.SecurityHeaders,
		Validation:      cfg.Validation,
	})

	// Create HTTP server. WriteTimeout leaves room for a registration that
	// has to run compensation.
	addr := fmt.Sprintf("%s:%d", cfg.ServerAddr, cfg.ServerPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30*time.Second + cfg.CompensationTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting server", "addr", addr, "root_domain", cfg.RootDomain)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	stopSweeper()
	sweeperWG.Wait()
	emitter.Close()

	logger.Info("server stopped")
}

// newPublisher builds the configured event publisher and its cleanup func.
func newPublisher(cfg config.EventsConfig, logger *slog.Logger) (events.Publisher, func(), error) {
	switch cfg.Backend {
	case config.EventsBackendAMQP:
		p, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return nil, nil, err
		}
		return p, func() {
			if err := p.Close(); err != nil {
				logger.Warn("failed to close AMQP publisher", "error", err)
			}
		}, nil

	case config.EventsBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return events.NewRedisStreamPublisher(client, cfg.RedisStream), func() { client.Close() }, nil

	default:
		return events.NewLogPublisher(logger), func() {}, nil
	}
}
