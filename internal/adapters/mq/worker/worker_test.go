package worker_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	queue "github.com/okian/lakeline/internal/adapters/mq/queue"
	worker "github.com/okian/lakeline/internal/adapters/mq/worker"
	"github.com/okian/lakeline/internal/domain/cache"
	logging "github.com/okian/lakeline/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

type mockQueue struct {
	jobs chan queue.Job
	once sync.Once
}

func newMockQueue() *mockQueue {
	return &mockQueue{jobs: make(chan queue.Job, 10)}
}

func (mq *mockQueue) Dequeue(context.Context) <-chan queue.Job { return mq.jobs }

func (mq *mockQueue) Close() error {
	mq.once.Do(func() { close(mq.jobs) })
	return nil
}

func (mq *mockQueue) add(run func(context.Context)) {
	mq.jobs <- queue.Job{ID: "job", Key: cache.Key{"lakes", "L1"}, Ctx: context.Background(), Run: run}
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a running InMemoryWorker", t, func() {
		_ = logging.Init()

		q := newMockQueue()
		w := worker.NewInMemoryWorker(q, worker.WithName("test-worker"))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		convey.Convey("When a job is queued", func() {
			var ran atomic.Bool
			q.add(func(context.Context) { ran.Store(true) })

			convey.Convey("Then it runs", func() {
				convey.So(waitFor(ran.Load), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When a job panics", func() {
			var after atomic.Bool
			q.add(func(context.Context) { panic("boom") })
			q.add(func(context.Context) { after.Store(true) })

			convey.Convey("Then the worker survives and runs the next job", func() {
				convey.So(waitFor(after.Load), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When shutting down", func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer shutdownCancel()

			err := w.Shutdown(shutdownCtx)

			convey.Convey("Then it should shutdown gracefully", func() {
				convey.So(err, convey.ShouldBeNil)
			})
		})
	})
}

func TestWorkerPool(t *testing.T) {
	convey.Convey("Given a worker pool over an in-memory queue", t, func() {
		_ = logging.Init()

		q := queue.NewInMemoryQueue(queue.WithCapacity(16))
		pool := worker.NewPool(3, q)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		pool.Start(ctx)

		convey.Convey("When created with a non-positive count", func() {
			convey.Convey("Then it defaults to a multiple of the CPU count", func() {
				convey.So(worker.NewPool(0, newMockQueue()).Size(), convey.ShouldBeGreaterThan, 0)
				convey.So(pool.Size(), convey.ShouldEqual, 3)
			})
		})

		convey.Convey("When several jobs are queued", func() {
			var n atomic.Int32
			for range 10 {
				convey.So(q.Enqueue(ctx, queue.Job{ID: "j", Ctx: ctx, Run: func(context.Context) { n.Add(1) }}), convey.ShouldBeTrue)
			}

			convey.Convey("Then all of them run", func() {
				convey.So(waitFor(func() bool { return n.Load() == 10 }), convey.ShouldBeTrue)
			})

			convey.Convey("Then shutdown drains and closes the queue", func() {
				convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
				convey.So(n.Load(), convey.ShouldEqual, 10)
			})
		})

		convey.Convey("When jobs are still waiting behind busy workers at shutdown", func() {
			gate := make(chan struct{})
			var n atomic.Int32
			for range 12 {
				convey.So(q.Enqueue(ctx, queue.Job{ID: "j", Ctx: ctx, Run: func(context.Context) {
					<-gate
					n.Add(1)
				}}), convey.ShouldBeTrue)
			}

			convey.Convey("Then shutting down before cancelling runs every one of them", func() {
				done := make(chan error, 1)
				go func() { done <- pool.Shutdown(context.Background()) }()
				close(gate)
				convey.So(<-done, convey.ShouldBeNil)
				cancel()
				convey.So(n.Load(), convey.ShouldEqual, 12)
			})
		})
	})
}

type okGetter struct{}

func (okGetter) GetJSON(_ context.Context, url string, _ http.Header, out any) error {
	*(out.(*string)) = url
	return nil
}

func TestDispatcher(t *testing.T) {
	convey.Convey("Given a cache whose fetches run on a worker pool", t, func() {
		_ = logging.Init()

		q := queue.NewInMemoryQueue(queue.WithCapacity(8))
		pool := worker.NewPool(2, q)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		pool.Start(ctx)

		c := cache.New[string](okGetter{}, cache.WithDispatcher(worker.NewDispatcher(q)))
		defer c.Close()

		convey.Convey("When a key is fetched", func() {
			c.Fetch(ctx, cache.Key{"lakes", "L1", "2024-03-01"}, "scene-url")

			convey.Convey("Then the pool resolves it", func() {
				convey.So(waitFor(func() bool {
					got := c.Get(cache.Key{"lakes", "L1"})
					return len(got) == 1 && got[0].Status == cache.StatusSuccess
				}), convey.ShouldBeTrue)
				got := c.Get(cache.Key{"lakes"})
				convey.So(*got[0].Data, convey.ShouldEqual, "scene-url")
			})
		})

		convey.Convey("When the queue is closed", func() {
			convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)
			c.Fetch(ctx, cache.Key{"lakes", "L1", "2024-03-02"}, "scene-url")

			convey.Convey("Then the fetch settles as a dispatch error", func() {
				got := c.Get(cache.Key{"lakes"})
				convey.So(len(got), convey.ShouldEqual, 1)
				convey.So(got[0].Status, convey.ShouldEqual, cache.StatusError)
				convey.So(errors.Is(got[0].Err, cache.ErrDispatch), convey.ShouldBeTrue)
				convey.So(errors.Is(got[0].Err, cache.ErrClosed), convey.ShouldBeTrue)
			})
		})
	})

	convey.Convey("Given a full queue without workers", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(1))
		d := worker.NewDispatcher(q)
		noop := func(context.Context) {}

		convey.Convey("Then the second dispatch is refused", func() {
			convey.So(d.Dispatch(context.Background(), cache.Key{"a"}, noop), convey.ShouldBeNil)
			convey.So(errors.Is(d.Dispatch(context.Background(), cache.Key{"b"}, noop), queue.ErrFull), convey.ShouldBeTrue)
		})
	})
}
