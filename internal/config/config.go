// Package config defines client configuration structures and loading hooks.
//
// Conventions:
// - New() returns a Config populated with defaults.
// - Load(ctx) layers a YAML file and BLOONS_* environment variables on top.
// - Validate() checks validator tags; failures wrap ErrInvalidConfig.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/okian/bloons/pkg/logger"
)

// Backoff policies.
const (
	BackoffGlobal = "global"
	BackoffLocal  = "local"
)

// Scheduling modes.
const (
	ModeBlocking = "blocking"
	ModeDeferred = "deferred"
)

// Config contains client configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// BaseURL is the API origin every path is resolved against.
	BaseURL string `koanf:"base_url" validate:"required,url"`

	// UserAgent is sent on every request.
	UserAgent string `koanf:"user_agent" validate:"required"`

	// MaxConcurrency bounds in-flight requests across the process.
	MaxConcurrency int `koanf:"max_concurrency" validate:"min=1"`

	// MaxAttempts caps attempts on rate-limited requests.
	MaxAttempts int `koanf:"max_attempts" validate:"min=1"`

	// MaxJitter is the upper bound of the random delay added to Retry-After.
	MaxJitter time.Duration `koanf:"max_jitter" validate:"min=0"`

	// PageWorkers sizes the pagination worker pool in blocking mode.
	PageWorkers int `koanf:"page_workers" validate:"min=1"`

	// RequestTimeout bounds a single HTTP round trip. Zero disables it.
	RequestTimeout time.Duration `koanf:"request_timeout" validate:"min=0"`

	// BackoffPolicy is "global" (every request waits out a rate-limit
	// backoff) or "local" (only the rate-limited request waits).
	BackoffPolicy string `koanf:"backoff_policy" validate:"oneof=global local"`

	// Mode is "blocking" (reads load on demand) or "deferred" (reads of
	// unloaded resources fail until Load is called).
	Mode string `koanf:"mode" validate:"oneof=blocking deferred"`

	// RateLimit paces requests per second on the client side. Zero
	// disables pacing and leaves only the admission limit.
	RateLimit float64 `koanf:"rate_limit" validate:"min=0"`
	RateBurst int     `koanf:"rate_burst" validate:"min=1"`

	// MetricsEnabled toggles Prometheus recording.
	MetricsEnabled bool `koanf:"metrics_enabled"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:       "info",
		BaseURL:        "https://data.ninjakiwi.com",
		UserAgent:      "bloons-go (+https://github.com/okian/bloons)",
		MaxConcurrency: 20,
		MaxAttempts:    3,
		MaxJitter:      3 * time.Second,
		PageWorkers:    10,
		RequestTimeout: 30 * time.Second,
		BackoffPolicy:  BackoffGlobal,
		Mode:           ModeBlocking,
		RateBurst:      1,
		MetricsEnabled: true,
	}
}

// Validate checks struct constraints first and then the log level, which
// accepts the aliases understood by the logger.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, e := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", koanfName(e.StructField()), e.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

var validate = validator.New() //nolint:gochecknoglobals // validator caches struct metadata

// koanfName maps a struct field to its configuration key for error messages.
func koanfName(field string) string {
	f, ok := reflect.TypeOf(Config{}).FieldByName(field)
	if !ok {
		return field
	}
	if tag := f.Tag.Get("koanf"); tag != "" {
		return tag
	}
	return field
}
