// Package resource implements lazily loaded API resources.
//
// A Loader holds an ID, a field bag and a loaded flag. Concrete types supply
// a Definition (endpoint, required keys, parser, error translation) and
// compose a Loader instead of reimplementing the load state machine. Events,
// which the API only exposes through list endpoints, use the same Loader with
// a scanning source.
package resource

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"sync"

	"github.com/okian/bloons/internal/adapters/ninjakiwi"
	"github.com/okian/bloons/pkg/logger"
	"github.com/okian/bloons/pkg/metrics"
)

// IDPlaceholder is replaced by the resource ID in endpoint templates.
const IDPlaceholder = "{id}"

// Fields is the parsed attribute bag of a resource.
type Fields map[string]any

// Fetcher performs a GET and returns the envelope body.
type Fetcher interface {
	Get(ctx context.Context, path string, query url.Values) (json.RawMessage, error)
}

// Definition describes a resource addressable by ID.
type Definition interface {
	// Kind names the resource, e.g. "user". Two loaders are equal only if
	// their kinds match.
	Kind() string
	// Endpoint is the path template containing IDPlaceholder.
	Endpoint() string
	// RequiredKeys are the JSON keys a fragment must carry to be parsed
	// without a fetch.
	RequiredKeys() []string
	// Parse maps a raw object to a complete field bag.
	Parse(raw json.RawMessage) (Fields, error)
	// TranslateError may remap a load error into a domain kind. Unknown
	// errors must be returned unchanged.
	TranslateError(err error) error
}

// Seeder is implemented by definitions that can build a partial field bag
// from list fragments that do not carry every required key. Seeded loaders
// stay unloaded.
type Seeder interface {
	Seed(raw json.RawMessage) (Fields, error)
}

// source returns the raw object for one load.
type source func(ctx context.Context) (json.RawMessage, error)

// Loader is the load state machine shared by every resource type.
type Loader struct {
	kind      string
	id        string
	required  []string
	parse     func(json.RawMessage) (Fields, error)
	translate func(error) error
	seeder    Seeder
	source    source
	mode      Mode
	logger    logger.Logger

	// loadMu serializes loads of one instance.
	loadMu sync.Mutex

	mu     sync.RWMutex
	fields Fields
	loaded bool
}

// New creates a loader for a resource fetched from def.Endpoint(). With
// WithEager in Blocking mode the resource is loaded before New returns and
// the load error, if any, is returned alongside the loader.
func New(ctx context.Context, def Definition, id string, f Fetcher, opts ...Option) (*Loader, error) {
	if def == nil || f == nil {
		return nil, &Error{Kind: ErrInvalidDefinition, ID: id}
	}
	endpoint := def.Endpoint()
	if !strings.Contains(endpoint, IDPlaceholder) {
		return nil, &Error{Kind: ErrInvalidDefinition, Resource: def.Kind(), ID: id, Message: "endpoint " + endpoint + " has no " + IDPlaceholder}
	}
	path := strings.ReplaceAll(endpoint, IDPlaceholder, url.PathEscape(id))
	src := func(ctx context.Context) (json.RawMessage, error) {
		return f.Get(ctx, path, nil)
	}
	return build(ctx, def.Kind(), id, def.RequiredKeys(), def.Parse, def.TranslateError, seederOf(def), src, opts)
}

func build(
	ctx context.Context,
	kind, id string,
	required []string,
	parse func(json.RawMessage) (Fields, error),
	translate func(error) error,
	seeder Seeder,
	src source,
	opts []Option,
) (*Loader, error) {
	if id == "" {
		return nil, &Error{Kind: ErrInvalidDefinition, Resource: kind, Message: "empty id"}
	}
	o := options{mode: Blocking, logger: logger.Get()}
	for _, opt := range opts {
		opt(&o)
	}

	l := &Loader{
		kind:      kind,
		id:        id,
		required:  required,
		parse:     parse,
		translate: translate,
		seeder:    seeder,
		source:    src,
		mode:      o.mode,
		logger:    o.logger.Named("resource"),
		fields:    Fields{},
	}
	if len(o.fragment) > 0 {
		l.seed(ctx, o.fragment)
	}
	if o.eager && l.mode == Blocking && !l.Loaded() {
		if err := l.Load(ctx, false); err != nil {
			return l, err
		}
	}
	return l, nil
}

func seederOf(v any) Seeder {
	if s, ok := v.(Seeder); ok {
		return s
	}
	return nil
}

// seed applies a fragment from a list endpoint. A fragment carrying every
// required key loads the resource; anything else falls back to lazy loading.
func (l *Loader) seed(ctx context.Context, raw json.RawMessage) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		l.logger.Debug(ctx, "ignoring fragment",
			logger.String("kind", l.kind),
			logger.String("id", l.id),
			logger.Error(err),
		)
		return
	}

	if missing := MissingKeys(obj, l.required); len(missing) > 0 {
		l.logger.Debug(ctx, "fragment incomplete, loading lazily",
			logger.String("kind", l.kind),
			logger.String("id", l.id),
			logger.Any("missing", missing),
		)
	} else if fields, err := l.parse(raw); err == nil {
		l.mu.Lock()
		l.fields = fields
		l.loaded = true
		l.mu.Unlock()
		metrics.RecordResourceLoad(l.kind, "seeded")
		return
	} else {
		l.logger.Debug(ctx, "fragment did not parse, loading lazily",
			logger.String("kind", l.kind),
			logger.String("id", l.id),
			logger.Error(err),
		)
	}

	if l.seeder == nil {
		return
	}
	fields, err := l.seeder.Seed(raw)
	if err != nil {
		l.logger.Debug(ctx, "partial seed failed",
			logger.String("kind", l.kind),
			logger.String("id", l.id),
			logger.Error(err),
		)
		return
	}
	l.mu.Lock()
	l.fields = fields
	l.mu.Unlock()
}

// Load fetches and parses the resource. It is a no-op when the resource is
// loaded and force is false. On failure the loader is left unloaded with an
// empty field bag and the error is passed through the definition's
// translation hook once.
func (l *Loader) Load(ctx context.Context, force bool) error {
	l.loadMu.Lock()
	defer l.loadMu.Unlock()

	if l.Loaded() && !force {
		return nil
	}

	l.mu.Lock()
	l.loaded = false
	l.mu.Unlock()

	fields, err := l.fetch(ctx)
	if err != nil {
		l.mu.Lock()
		l.fields = Fields{}
		l.mu.Unlock()
		metrics.RecordResourceLoad(l.kind, "failed")
		if translated := l.translate(err); translated != nil {
			err = translated
		}
		err = l.annotate(err)
		l.logger.Debug(ctx, "load failed",
			logger.String("kind", l.kind),
			logger.String("id", l.id),
			logger.Error(err),
		)
		return err
	}

	l.mu.Lock()
	l.fields = fields
	l.loaded = true
	l.mu.Unlock()
	metrics.RecordResourceLoad(l.kind, "loaded")
	return nil
}

func (l *Loader) fetch(ctx context.Context) (Fields, error) {
	raw, err := l.source(ctx)
	if err != nil {
		return nil, err
	}
	fields, err := l.parse(raw)
	if err != nil {
		return nil, &Error{Kind: ninjakiwi.ErrMalformedResponse, Err: err}
	}
	if fields == nil {
		fields = Fields{}
	}
	return fields, nil
}

// annotate fills in the identity of translated errors.
func (l *Loader) annotate(err error) error {
	var re *Error
	if errors.As(err, &re) && re.ID == "" {
		re.Resource = l.kind
		re.ID = l.id
	}
	return err
}

// Start begins a load in a new goroutine and returns a handle any number of
// goroutines can wait on. Each call issues its own fetch.
func (l *Loader) Start(ctx context.Context, force bool) *Pending {
	p := &Pending{done: make(chan struct{})}
	go func() {
		defer close(p.done)
		p.err = l.Load(ctx, force)
	}()
	return p
}

// ID returns the resource ID.
func (l *Loader) ID() string { return l.id }

// Kind returns the definition kind.
func (l *Loader) Kind() string { return l.kind }

// Mode returns the access mode.
func (l *Loader) Mode() Mode { return l.mode }

// Loaded reports whether the last load succeeded.
func (l *Loader) Loaded() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.loaded
}

// Has reports whether key is present in the field bag.
func (l *Loader) Has(key string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.fields[key]
	return ok
}

// Equal reports whether both loaders refer to the same resource. Field
// contents and load state are ignored.
func (l *Loader) Equal(other *Loader) bool {
	if l == nil || other == nil {
		return l == other
	}
	return l.kind == other.kind && l.id == other.id
}

func (l *Loader) field(key string) (any, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	v, ok := l.fields[key]
	return v, ok
}

// Pending is an in-flight load started by Loader.Start.
type Pending struct {
	done chan struct{}
	err  error
}

// Done is closed when the load finishes.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Wait blocks until the load finishes or ctx is done.
func (p *Pending) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
