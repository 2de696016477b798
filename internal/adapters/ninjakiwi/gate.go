package ninjakiwi

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/okian/bloons/pkg/metrics"
)

// DefaultConcurrency is the default admission capacity.
const DefaultConcurrency = 20

// BackoffPolicy selects who waits when a request is rate limited.
type BackoffPolicy int

const (
	// BackoffGlobal pauses every request admitted through the same Gate
	// until the backoff deadline passes.
	BackoffGlobal BackoffPolicy = iota
	// BackoffLocal only delays the request that was rate limited.
	BackoffLocal
)

func (p BackoffPolicy) String() string {
	if p == BackoffLocal {
		return "local"
	}
	return "global"
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Gate is the state shared by every request of a process: a counting
// admission semaphore and the rate-limit backoff deadline. Share one Gate
// between clients that talk to the same upstream.
type Gate struct {
	capacity int64
	sem      *semaphore.Weighted
	policy   BackoffPolicy
	sleep    Sleeper
	now      func() time.Time
	// limiter paces admissions; nil means unpaced.
	limiter *rate.Limiter

	mu          sync.Mutex
	pausedUntil time.Time
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithBackoffPolicy sets the backoff policy.
func WithBackoffPolicy(p BackoffPolicy) GateOption {
	return func(g *Gate) {
		g.policy = p
	}
}

// WithSleeper replaces the context-aware sleep used for backoff waits.
func WithSleeper(s Sleeper) GateOption {
	return func(g *Gate) {
		if s != nil {
			g.sleep = s
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) GateOption {
	return func(g *Gate) {
		if now != nil {
			g.now = now
		}
	}
}

// WithRateLimit paces admissions to rps requests per second with the given
// burst. A non-positive rps leaves the gate unpaced.
func WithRateLimit(rps float64, burst int) GateOption {
	return func(g *Gate) {
		if rps <= 0 {
			g.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewGate creates a Gate admitting at most capacity concurrent requests.
func NewGate(capacity int, opts ...GateOption) *Gate {
	if capacity < 1 {
		capacity = DefaultConcurrency
	}
	g := &Gate{
		capacity: int64(capacity),
		sem:      semaphore.NewWeighted(int64(capacity)),
		policy:   BackoffGlobal,
		sleep:    sleepContext,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Capacity returns the admission limit.
func (g *Gate) Capacity() int { return int(g.capacity) }

// Policy returns the backoff policy.
func (g *Gate) Policy() BackoffPolicy { return g.policy }

// RateLimit returns the configured pace in requests per second, 0 if unpaced.
func (g *Gate) RateLimit() float64 {
	if g.limiter == nil {
		return 0
	}
	return float64(g.limiter.Limit())
}

// Acquire waits for the pacer, then out any shared backoff, then for a free
// slot. A backoff that starts while the caller is queued for a slot is
// waited out too. The returned release func is idempotent.
func (g *Gate) Acquire(ctx context.Context) (func(), error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	for {
		if err := g.waitBackoff(ctx); err != nil {
			return nil, err
		}
		if err := g.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		if g.policy != BackoffGlobal || g.PausedFor() <= 0 {
			break
		}
		g.sem.Release(1)
	}
	metrics.RecordGateWait(time.Since(start))
	metrics.UpdateGateInFlight(1)

	var once sync.Once
	return func() {
		once.Do(func() {
			g.sem.Release(1)
			metrics.UpdateGateInFlight(-1)
		})
	}, nil
}

// Pause pushes the shared deadline d into the future under BackoffGlobal.
// It does not block. Under BackoffLocal it does nothing.
func (g *Gate) Pause(d time.Duration) {
	if d <= 0 || g.policy != BackoffGlobal {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if until := g.now().Add(d); until.After(g.pausedUntil) {
		g.pausedUntil = until
	}
}

// Backoff blocks the caller for d. Under BackoffGlobal it also pushes the
// shared deadline so that requests arriving meanwhile wait too.
func (g *Gate) Backoff(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	g.Pause(d)
	return g.sleep(ctx, d)
}

// PausedFor reports the remaining shared backoff.
func (g *Gate) PausedFor() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	if wait := g.pausedUntil.Sub(g.now()); wait > 0 {
		return wait
	}
	return 0
}

func (g *Gate) waitBackoff(ctx context.Context) error {
	if g.policy != BackoffGlobal {
		return nil
	}
	wait := g.PausedFor()
	if wait <= 0 {
		return nil
	}
	metrics.RecordBackoffWait()
	return g.sleep(ctx, wait)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
