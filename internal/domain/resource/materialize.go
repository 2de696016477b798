package resource

import (
	"context"
	"fmt"
)

type getOptions struct {
	shouldLoad func(*Loader) bool
}

// GetOption configures a field read.
type GetOption func(*getOptions)

// ShouldLoad replaces the predicate deciding whether a read must load first.
// The default is: not loaded and the key is absent.
func ShouldLoad(fn func(*Loader) bool) GetOption {
	return func(o *getOptions) {
		o.shouldLoad = fn
	}
}

// Lookup reads key, loading the resource first when needed. Blocking loaders
// load in place. Deferred loaders return ErrNotLoaded instead; callers must
// wait for Start (or call Load) before reading.
func Lookup(ctx context.Context, l *Loader, key string, opts ...GetOption) (any, error) {
	var o getOptions
	for _, opt := range opts {
		opt(&o)
	}

	var need bool
	if o.shouldLoad != nil {
		need = o.shouldLoad(l)
	} else {
		need = !l.Loaded() && !l.Has(key)
	}

	if need && !l.Loaded() {
		if l.mode == Deferred {
			return nil, &Error{Kind: ErrNotLoaded, Resource: l.kind, ID: l.id, Field: key}
		}
		if err := l.Load(ctx, false); err != nil {
			return nil, err
		}
	}

	v, ok := l.field(key)
	if !ok {
		return nil, &Error{Kind: ErrFieldMissing, Resource: l.kind, ID: l.id, Field: key}
	}
	return v, nil
}

// Get is Lookup with a typed result.
func Get[T any](ctx context.Context, l *Loader, key string, opts ...GetOption) (T, error) {
	var zero T
	v, err := Lookup(ctx, l, key, opts...)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, &Error{Kind: ErrFieldType, Resource: l.kind, ID: l.id, Field: key, Err: fmt.Errorf("have %T, want %T", v, zero)}
	}
	return t, nil
}
