package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	worker "github.com/okian/bloons/internal/adapters/worker"
	logging "github.com/okian/bloons/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logging.Init()
}

// concurrencyTracker records the peak number of jobs running at once.
type concurrencyTracker struct {
	running atomic.Int32
	peak    atomic.Int32
}

func (c *concurrencyTracker) enter() {
	n := c.running.Add(1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			return
		}
	}
}

func (c *concurrencyTracker) leave() { c.running.Add(-1) }

func strategies() []worker.Strategy {
	return []worker.Strategy{worker.NewPool(3), worker.Gather{}, worker.Gather{Limit: 2}}
}

func TestStrategiesRunEveryJob(t *testing.T) {
	convey.Convey("Given each strategy", t, func() {
		for idx, s := range strategies() {
			convey.Convey(fmt.Sprintf("When %s (#%d) runs 25 jobs", s.Name(), idx), func() {
				var mu sync.Mutex
				seen := make(map[int]bool)
				err := s.Run(context.Background(), 25, func(_ context.Context, i int) error {
					mu.Lock()
					seen[i] = true
					mu.Unlock()
					return nil
				})

				convey.Convey("Then every index runs exactly once", func() {
					convey.So(err, convey.ShouldBeNil)
					convey.So(len(seen), convey.ShouldEqual, 25)
					for i := 0; i < 25; i++ {
						convey.So(seen[i], convey.ShouldBeTrue)
					}
				})
			})
		}
	})
}

func TestPoolBound(t *testing.T) {
	convey.Convey("Given a pool of three workers", t, func() {
		pool := worker.NewPool(3, worker.WithName("bounded"))
		tracker := &concurrencyTracker{}

		convey.Convey("When more jobs than workers are submitted", func() {
			err := pool.Run(context.Background(), 12, func(_ context.Context, _ int) error {
				tracker.enter()
				defer tracker.leave()
				time.Sleep(5 * time.Millisecond)
				return nil
			})

			convey.Convey("Then no more than three run at once", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(tracker.peak.Load(), convey.ShouldBeLessThanOrEqualTo, 3)
				convey.So(tracker.peak.Load(), convey.ShouldBeGreaterThan, 0)
			})
		})

		convey.Convey("When the size is not positive", func() {
			convey.So(worker.NewPool(0).Size(), convey.ShouldEqual, worker.DefaultPoolSize)
		})
	})
}

func TestGatherLimit(t *testing.T) {
	convey.Convey("Given a gather limited to two", t, func() {
		tracker := &concurrencyTracker{}
		err := worker.Gather{Limit: 2}.Run(context.Background(), 10, func(_ context.Context, _ int) error {
			tracker.enter()
			defer tracker.leave()
			time.Sleep(5 * time.Millisecond)
			return nil
		})

		convey.Convey("Then at most two jobs overlap", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(tracker.peak.Load(), convey.ShouldBeLessThanOrEqualTo, 2)
		})
	})
}

func TestStrategiesFailFast(t *testing.T) {
	boom := errors.New("boom")

	convey.Convey("Given each strategy", t, func() {
		for idx, s := range strategies() {
			convey.Convey(fmt.Sprintf("When %s (#%d) has a failing job", s.Name(), idx), func() {
				start := time.Now()
				err := s.Run(context.Background(), 20, func(ctx context.Context, i int) error {
					if i == 0 {
						return boom
					}
					select {
					case <-ctx.Done():
						return ctx.Err()
					case <-time.After(2 * time.Second):
						return nil
					}
				})

				convey.Convey("Then the job error is returned and the rest are canceled", func() {
					convey.So(errors.Is(err, boom), convey.ShouldBeTrue)
					convey.So(time.Since(start), convey.ShouldBeLessThan, time.Second)
				})
			})
		}
	})
}

func TestStrategiesHonourContext(t *testing.T) {
	convey.Convey("Given a canceled context", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		for idx, s := range strategies() {
			convey.Convey(fmt.Sprintf("When %s (#%d) runs", s.Name(), idx), func() {
				err := s.Run(ctx, 5, func(ctx context.Context, _ int) error {
					return ctx.Err()
				})

				convey.Convey("Then it reports the cancellation", func() {
					convey.So(errors.Is(err, context.Canceled), convey.ShouldBeTrue)
				})
			})
		}

		convey.Convey("When zero jobs run on the pool", func() {
			err := worker.NewPool(2).Run(ctx, 0, nil)
			convey.So(errors.Is(err, context.Canceled), convey.ShouldBeTrue)
		})
	})
}
