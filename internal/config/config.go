// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Supported image providers.
const (
	ProviderClipDrop = "clipdrop"
	ProviderOpenAI   = "openai"
)

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisURL    string `env:"REDIS_URL,required"`

	// Session tokens
	JWTSecret string        `env:"JWT_SECRET,required"`
	JWTTTL    time.Duration `env:"JWT_TTL" envDefault:"168h"`

	// Credits granted on registration
	InitialCredits int64 `env:"INITIAL_CREDITS" envDefault:"5"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts. WriteTimeout must outlast a provider call.
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"90s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Image provider
	Provider         string        `env:"PROVIDER" envDefault:"clipdrop"`
	ClipDropAPIKey   string        `env:"CLIPDROP_API_KEY"`
	ClipDropBaseURL  string        `env:"CLIPDROP_BASE_URL" envDefault:"https://clipdrop-api.co"`
	OpenAIAPIKey     string        `env:"OPENAI_API_KEY"`
	OpenAIBaseURL    string        `env:"OPENAI_BASE_URL"`
	OpenAIImageModel string        `env:"OPENAI_IMAGE_MODEL" envDefault:"dall-e-3"`
	ProviderTimeout  time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"60s"`
	ProviderRPS      float64       `env:"PROVIDER_RPS" envDefault:"5"`
	ProviderBurst    int           `env:"PROVIDER_BURST" envDefault:"10"`

	// Rate limiting
	RateLimitEnabled           bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitGeneratePerMinute int  `env:"RATE_LIMIT_GENERATE_PER_MINUTE" envDefault:"10"`
	RateLimitGenerateBurst     int  `env:"RATE_LIMIT_GENERATE_BURST" envDefault:"3"`
	RateLimitAuthRPS           int  `env:"RATE_LIMIT_AUTH_RPS" envDefault:"2"`
	RateLimitAuthBurst         int  `env:"RATE_LIMIT_AUTH_BURST" envDefault:"10"`

	// Background consumer that applies debits which failed inline
	EventsWorkerEnabled bool          `env:"EVENTS_WORKER_ENABLED" envDefault:"true"`
	EventsBatchSize     int           `env:"EVENTS_BATCH_SIZE" envDefault:"100"`
	EventsClaimIdle     time.Duration `env:"EVENTS_CLAIM_IDLE" envDefault:"30s"`

	// Comma-separated list of allowed origins for the browser client.
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`

	// Request body size limit in bytes (default 64KB; prompts are short)
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"65536"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// AllowedOrigins returns the configured CORS origins with blanks removed.
func (c *Config) AllowedOrigins() []string {
	out := make([]string, 0, len(c.CORSAllowedOrigins))
	for _, o := range c.CORSAllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// Validate checks cross-field constraints that struct tags cannot express.
func (c *Config) Validate() error {
	var errs []error

	switch c.Provider {
	case ProviderClipDrop:
		if c.ClipDropAPIKey == "" {
			errs = append(errs, errors.New("CLIPDROP_API_KEY is required when PROVIDER=clipdrop"))
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required when PROVIDER=openai"))
		}
	default:
		errs = append(errs, fmt.Errorf("PROVIDER must be %q or %q, got %q", ProviderClipDrop, ProviderOpenAI, c.Provider))
	}

	if len(c.JWTSecret) < 16 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 16 characters"))
	}
	if c.InitialCredits < 0 {
		errs = append(errs, errors.New("INITIAL_CREDITS must not be negative"))
	}
	if c.ProviderTimeout <= 0 {
		errs = append(errs, errors.New("PROVIDER_TIMEOUT must be positive"))
	}
	if c.WriteTimeout <= c.ProviderTimeout {
		errs = append(errs, fmt.Errorf("WRITE_TIMEOUT (%s) must exceed PROVIDER_TIMEOUT (%s)", c.WriteTimeout, c.ProviderTimeout))
	}

	return errors.Join(errs...)
}

// Load parses environment variables and returns a validated Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
