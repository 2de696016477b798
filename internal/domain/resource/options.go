package resource

import (
	"encoding/json"

	"github.com/okian/bloons/pkg/logger"
)

type options struct {
	fragment json.RawMessage
	eager    bool
	mode     Mode
	logger   logger.Logger
}

// Option configures a Loader.
type Option func(*options)

// WithFragment pre-seeds the loader from a JSON object, typically one element
// of a list endpoint.
func WithFragment(raw json.RawMessage) Option {
	return func(o *options) {
		o.fragment = raw
	}
}

// WithEager loads the resource during construction. Deferred loaders ignore
// it; they are loaded through Start.
func WithEager() Option {
	return func(o *options) {
		o.eager = true
	}
}

// WithMode sets the access mode. The default is Blocking.
func WithMode(m Mode) Option {
	return func(o *options) {
		o.mode = m
	}
}

// WithLogger sets a custom logger for the loader.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
