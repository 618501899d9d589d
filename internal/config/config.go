package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	// HTTP Server
	Port            int           `env:"PORT" envDefault:"8080" validate:"min=1,max=65535"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s" validate:"min=1s,max=5m"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`

	// Chart rendering
	ChartWidth        int           `env:"CHART_WIDTH" envDefault:"960" validate:"min=320,max=4096"`
	ChartHeight       int           `env:"CHART_HEIGHT" envDefault:"480" validate:"min=200,max=4096"`
	ChartCacheTTL     time.Duration `env:"CHART_CACHE_TTL" envDefault:"5m" validate:"min=0s,max=24h"`
	ChartCacheEntries int           `env:"CHART_CACHE_ENTRIES" envDefault:"128" validate:"min=1,max=10000"`

	// Protection
	RateLimitPerMinute int `env:"RATE_LIMIT_PER_MINUTE" envDefault:"60" validate:"min=0,max=100000"`

	// Observability
	MetricsEnabled bool `env:"METRICS_ENABLED" envDefault:"true"`
}

var loadEnvFile sync.Once

// Load reads configuration from the environment, after loading a .env file
// for local development if one exists.
func Load() (*Config, error) {
	loadEnvFile.Do(func() {
		_ = godotenv.Load()
	})

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

var validate = validator.New()

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var problems []string

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("configuration validation failed: %w", err)
		}
		for _, fe := range verrs {
			problems = append(problems, describe(fe))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(problems, "\n- "))
	}
	return nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "min":
		return fmt.Sprintf("invalid %s %v: must be at least %s", fieldName(fe), fe.Value(), fe.Param())
	case "max":
		return fmt.Sprintf("invalid %s %v: must be at most %s", fieldName(fe), fe.Value(), fe.Param())
	case "oneof":
		return fmt.Sprintf("invalid %s '%v': must be one of %s", fieldName(fe), fe.Value(), fe.Param())
	default:
		return fmt.Sprintf("invalid %s %v: failed %s", fieldName(fe), fe.Value(), fe.Tag())
	}
}

var fieldNames = map[string]string{
	"Port":               "port",
	"ShutdownTimeout":    "shutdown timeout",
	"LogLevel":           "log level",
	"ChartWidth":         "chart width",
	"ChartHeight":        "chart height",
	"ChartCacheTTL":      "chart cache TTL",
	"ChartCacheEntries":  "chart cache entries",
	"RateLimitPerMinute": "rate limit",
}

func fieldName(fe validator.FieldError) string {
	if n, ok := fieldNames[fe.Field()]; ok {
		return n
	}
	return fe.Field()
}

// SlogLevel maps LogLevel onto slog. Unknown values fall back to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
