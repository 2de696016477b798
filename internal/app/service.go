// Package service wires configuration, the fetch layer and the BTD6 catalog
// into one client.
package service

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/okian/bloons/internal/adapters/ninjakiwi"
	"github.com/okian/bloons/internal/config"
	"github.com/okian/bloons/internal/domain/btd6"
	"github.com/okian/bloons/internal/domain/resource"
	"github.com/okian/bloons/pkg/logger"
	"github.com/okian/bloons/pkg/metrics"
)

// Service is a configured BTD6 client. The embedded Catalog builds users,
// maps, races and bosses; every request they make shares one Gate.
type Service struct {
	*btd6.Catalog

	cfg    *config.Config
	gate   *ninjakiwi.Gate
	client *ninjakiwi.Client
	id     string

	doer       ninjakiwi.HTTPDoer
	gateOpts   []ninjakiwi.GateOption
	clientOpts []ninjakiwi.Option
	logger     logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithHTTPDoer replaces the HTTP client built from the config.
func WithHTTPDoer(d ninjakiwi.HTTPDoer) Option {
	return func(s *Service) {
		if d != nil {
			s.doer = d
		}
	}
}

// WithGateOptions adds options to the shared admission gate.
func WithGateOptions(opts ...ninjakiwi.GateOption) Option {
	return func(s *Service) {
		s.gateOpts = append(s.gateOpts, opts...)
	}
}

// WithClientOptions adds options to the fetch client. They are applied after
// the ones derived from the config.
func WithClientOptions(opts ...ninjakiwi.Option) Option {
	return func(s *Service) {
		s.clientOpts = append(s.clientOpts, opts...)
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New validates cfg and builds a Service. A nil cfg means defaults.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Service, error) {
	if cfg == nil {
		cfg = config.New()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	mode, err := resource.ParseMode(cfg.Mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}

	s := &Service{
		cfg:    cfg,
		id:     uuid.NewString(),
		logger: logger.Get(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.doer == nil {
		s.doer = &http.Client{Timeout: cfg.RequestTimeout}
	}

	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}
	metrics.SetEnabled(cfg.MetricsEnabled)

	policy := ninjakiwi.BackoffGlobal
	if cfg.BackoffPolicy == config.BackoffLocal {
		policy = ninjakiwi.BackoffLocal
	}
	s.gate = ninjakiwi.NewGate(cfg.MaxConcurrency,
		append([]ninjakiwi.GateOption{
			ninjakiwi.WithBackoffPolicy(policy),
			ninjakiwi.WithRateLimit(cfg.RateLimit, cfg.RateBurst),
		}, s.gateOpts...)...)

	s.client = ninjakiwi.New(append([]ninjakiwi.Option{
		ninjakiwi.WithBaseURL(cfg.BaseURL),
		ninjakiwi.WithUserAgent(cfg.UserAgent),
		ninjakiwi.WithHTTPDoer(s.doer),
		ninjakiwi.WithGate(s.gate),
		ninjakiwi.WithMaxAttempts(cfg.MaxAttempts),
		ninjakiwi.WithMaxJitter(cfg.MaxJitter),
		ninjakiwi.WithLogger(s.logger.Named("ninjakiwi")),
	}, s.clientOpts...)...)

	s.Catalog = btd6.NewCatalog(s.client,
		btd6.WithMode(mode),
		btd6.WithPageWorkers(cfg.PageWorkers),
		btd6.WithLogger(s.logger),
	)

	s.logger.Info(ctx, "bloons client ready",
		logger.String("instance", s.id),
		logger.String("base_url", cfg.BaseURL),
		logger.String("mode", mode.String()),
		logger.String("backoff", policy.String()),
		logger.Int("max_concurrency", cfg.MaxConcurrency),
		logger.Int("page_workers", cfg.PageWorkers),
	)
	return s, nil
}

// NewFromEnv loads the config from BLOONS_* variables (and the file named by
// BLOONS_CONFIG) and builds a Service.
func NewFromEnv(ctx context.Context, opts ...Option) (*Service, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, err
	}
	return New(ctx, cfg, opts...)
}

// ID identifies this client instance in logs.
func (s *Service) ID() string { return s.id }

// Config returns the configuration the service was built from.
func (s *Service) Config() *config.Config { return s.cfg }

// Client returns the fetch client.
func (s *Service) Client() *ninjakiwi.Client { return s.client }

// Gate returns the admission gate shared by every request.
func (s *Service) Gate() *ninjakiwi.Gate { return s.gate }

// Registry returns the Prometheus registry holding the client metrics, for
// callers that expose a scrape endpoint.
func (s *Service) Registry() *prometheus.Registry { return metrics.GetRegistry() }

// GetStats returns runtime information about the client.
func (s *Service) GetStats() map[string]any {
	return map[string]any{
		"instance":        s.id,
		"mode":            s.Mode().String(),
		"backoff_policy":  s.gate.Policy().String(),
		"max_concurrency": s.gate.Capacity(),
		"rate_limit":      s.gate.RateLimit(),
		"paused_for":      s.gate.PausedFor().String(),
		"metrics_enabled": metrics.IsEnabled(),
	}
}
