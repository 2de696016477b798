package ninjakiwi

import (
	"time"

	"github.com/okian/bloons/pkg/logger"
)

// Option applies a configuration option to the Client.
type Option func(*Client)

// WithBaseURL sets the origin every path is resolved against.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		if base != "" {
			c.baseURL = base
		}
	}
}

// WithUserAgent sets the User-Agent header sent on every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithHTTPDoer replaces the HTTP client.
func WithHTTPDoer(d HTTPDoer) Option {
	return func(c *Client) {
		if d != nil {
			c.doer = d
		}
	}
}

// WithGate shares an admission gate between clients.
func WithGate(g *Gate) Option {
	return func(c *Client) {
		if g != nil {
			c.gate = g
		}
	}
}

// WithMaxAttempts caps attempts for rate-limited requests.
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithMaxJitter sets the upper bound of the random delay added to Retry-After.
func WithMaxJitter(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.maxJitter = d
		}
	}
}

// WithJitter replaces the jitter source. It receives the configured maximum.
func WithJitter(fn func(limit time.Duration) time.Duration) Option {
	return func(c *Client) {
		if fn != nil {
			c.jitter = fn
		}
	}
}

// WithLogger sets a custom logger for the client.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}
