package btd6

import (
	"github.com/okian/bloons/internal/domain/resource"
	"github.com/okian/bloons/pkg/logger"
)

// Option applies a configuration option to the Catalog.
type Option func(*Catalog)

// WithMode sets the access mode of built resources.
func WithMode(m resource.Mode) Option {
	return func(c *Catalog) {
		c.mode = m
	}
}

// WithPageWorkers sets the pool size for blocking leaderboard fetches.
func WithPageWorkers(n int) Option {
	return func(c *Catalog) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithLogger sets a custom logger for the catalog and its resources.
func WithLogger(l logger.Logger) Option {
	return func(c *Catalog) {
		if l != nil {
			c.logger = l
		}
	}
}
