// Package worker runs indexed jobs concurrently. Two strategies share the
// Strategy contract: Pool, a fixed set of workers pulling job indices off a
// channel, and Gather, one goroutine per job under an errgroup.
package worker

import (
	"context"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/okian/bloons/pkg/logger"
	"github.com/okian/bloons/pkg/metrics"
)

// DefaultPoolSize is the default number of pool workers.
const DefaultPoolSize = 10

// Job runs the i-th unit of work. Jobs must honour ctx: it is canceled as
// soon as any job fails.
type Job func(ctx context.Context, i int) error

// Strategy fans n jobs out and waits for all of them. It returns the first
// job error, or the context error if ctx ended first.
type Strategy interface {
	Run(ctx context.Context, n int, job Job) error
	Name() string
}

// Pool is a bounded worker pool.
type Pool struct {
	size   int
	name   string
	logger logger.Logger
}

// NewPool creates a pool of size workers.
func NewPool(size int, opts ...Option) *Pool {
	if size < 1 {
		size = DefaultPoolSize
	}
	p := &Pool{
		size:   size,
		name:   "worker-pool",
		logger: logger.Get(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.Named(p.name)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return p.size }

// Name implements Strategy.
func (p *Pool) Name() string { return "pool" }

// Run implements Strategy. At most Size jobs run at once.
func (p *Pool) Run(ctx context.Context, n int, job Job) error {
	if n <= 0 {
		return ctx.Err()
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		once     sync.Once
		firstErr error
	)
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < min(p.size, n); w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.work(runCtx, id, jobs, job, fail)
		}(w)
	}

feed:
	for i := 0; i < n; i++ {
		select {
		case jobs <- i:
		case <-runCtx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}

// work processes job indices until the channel is closed.
func (p *Pool) work(ctx context.Context, id int, jobs <-chan int, job Job, fail func(error)) {
	for i := range jobs {
		if ctx.Err() != nil {
			continue
		}
		metrics.UpdateWorkerBusy(1)
		err := job(ctx, i)
		metrics.UpdateWorkerBusy(-1)
		if err != nil {
			p.logger.Debug(ctx, "job failed",
				logger.String("worker", "worker-"+strconv.Itoa(id)),
				logger.Int("job", i),
				logger.Error(err),
			)
			metrics.RecordErrorByComponent(p.name, "job_failed")
			fail(err)
		}
	}
}

// Gather runs every job in its own goroutine. A positive Limit caps how many
// run at once.
type Gather struct {
	Limit int
}

// Name implements Strategy.
func (Gather) Name() string { return "gather" }

// Run implements Strategy.
func (g Gather) Run(ctx context.Context, n int, job Job) error {
	eg, egCtx := errgroup.WithContext(ctx)
	if g.Limit > 0 {
		eg.SetLimit(g.Limit)
	}
	for i := 0; i < n; i++ {
		eg.Go(func() error {
			return job(egCtx, i)
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
