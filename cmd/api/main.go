// Package main is the entrypoint for the promptpix API server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/promptpix/promptpix/internal/auth"
	"github.com/promptpix/promptpix/internal/cache"
	"github.com/promptpix/promptpix/internal/config"
	"github.com/promptpix/promptpix/internal/events"
	"github.com/promptpix/promptpix/internal/handler"
	"github.com/promptpix/promptpix/internal/metrics"
	"github.com/promptpix/promptpix/internal/middleware"
	"github.com/promptpix/promptpix/internal/provider"
	"github.com/promptpix/promptpix/internal/relay"
	"github.com/promptpix/promptpix/internal/repository"
	"github.com/promptpix/promptpix/internal/server"
	"github.com/promptpix/promptpix/internal/service"
)

func main() {
	ctx := context.Background()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)

	// Initialize database
	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	logger.Info("connected to database")

	// Initialize cache
	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		repo.Close()
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		os.Exit(1)
	}
	logger.Info("connected to Redis")

	tokens, err := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL)
	if err != nil {
		logger.Error("failed to initialize token issuer", "error", err)
		os.Exit(1)
	}

	images, err := newImageProvider(cfg)
	if err != nil {
		logger.Error("failed to initialize image provider", "error", err)
		os.Exit(1)
	}

	// Initialize services
	metricsRecorder := metrics.NewPrometheus()
	publisher := events.NewPublisher(cacheClient.Client(), logger, metricsRecorder)

	generator := relay.New(repo, images, relay.Options{
		ProviderName: cfg.Provider,
		Events:       publisher,
		Metrics:      metricsRecorder,
		Logger:       logger,
	})
	accounts := service.NewAccountService(service.AccountConfig{
		Store:          repo,
		Tokens:         tokens,
		Revoker:        cacheClient,
		InitialCredits: cfg.InitialCredits,
		Metrics:        metricsRecorder,
		Logger:         logger,
	})

	router := handler.NewRouter(handler.RouterConfig{
		Logger:        logger,
		IsDevelopment: cfg.IsDevelopment(),
		MaxBodySize:   cfg.MaxRequestBodySize,
		CORS:          middleware.DefaultCORSConfig(cfg.AllowedOrigins()),
		Health:        handler.NewHealthHandler(repo, cacheClient, logger),
		Users:         handler.NewUserHandler(accounts, logger),
		Generation:    handler.NewGenerationHandler(generator, logger),
		Metrics:       metricsRecorder.Handler(),
		Auth: middleware.AuthConfig{
			Logger:     logger,
			Tokens:     tokens,
			Revocation: cacheClient,
		},
		RateLimit: middleware.RateLimitConfig{
			Logger:            logger,
			Limiter:           cacheClient,
			Enabled:           cfg.RateLimitEnabled,
			GeneratePerMinute: cfg.RateLimitGeneratePerMinute,
			GenerateBurst:     cfg.RateLimitGenerateBurst,
			AuthRPS:           cfg.RateLimitAuthRPS,
			AuthBurst:         cfg.RateLimitAuthBurst,
		},
	})

	srv := server.New(router, server.Options{
		Port:            cfg.AppPort,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, logger)

	// Hooks run in reverse order: the worker drains, then Redis closes, then Postgres.
	srv.OnShutdown("postgres", func(context.Context) error {
		repo.Close()
		return nil
	})
	srv.OnShutdown("redis", func(context.Context) error {
		return cacheClient.Close()
	})

	if cfg.EventsWorkerEnabled {
		worker := events.NewWorker(
			cacheClient.Client(),
			events.NewReconciler(repo, cacheClient.Client(), logger, metricsRecorder),
			logger,
			events.NewConsumerID(),
			metricsRecorder,
		)
		worker.SetBatchSize(cfg.EventsBatchSize)
		worker.SetClaimIdle(cfg.EventsClaimIdle)
		go func() {
			if err := worker.Run(ctx); err != nil {
				logger.Error("event worker stopped", "error", err)
			}
		}()
		srv.OnShutdown("events-worker", worker.Shutdown)
	}

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
		"provider", cfg.Provider,
	)

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// newImageProvider builds the client selected by PROVIDER.
func newImageProvider(cfg *config.Config) (provider.Client, error) {
	opts := provider.Options{
		Timeout:           cfg.ProviderTimeout,
		RequestsPerSecond: cfg.ProviderRPS,
		Burst:             cfg.ProviderBurst,
	}

	switch cfg.Provider {
	case config.ProviderClipDrop:
		return provider.NewClipDrop(cfg.ClipDropAPIKey, cfg.ClipDropBaseURL, opts), nil
	case config.ProviderOpenAI:
		return provider.NewOpenAI(provider.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIImageModel,
		}, opts), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	level := parseLogLevel(cfg.LogLevel)

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
