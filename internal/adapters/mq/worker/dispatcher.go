package worker

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/okian/lakeline/internal/adapters/mq/queue"
	"github.com/okian/lakeline/internal/domain/cache"
)

// Enqueuer is the producing side of a queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, j queue.Job) bool
	IsClosed() bool
}

// Dispatcher hands cache fetches to a queue served by a Pool. It
// satisfies cache.Dispatcher.
type Dispatcher struct {
	queue Enqueuer
}

// NewDispatcher creates a dispatcher feeding q.
func NewDispatcher(q Enqueuer) *Dispatcher {
	return &Dispatcher{queue: q}
}

// Dispatch enqueues run as a job. A closed or full queue refuses it.
func (d *Dispatcher) Dispatch(ctx context.Context, key cache.Key, run func(context.Context)) error {
	if d.queue.IsClosed() {
		return cache.ErrClosed
	}
	j := queue.Job{ID: uuid.NewString(), Key: key.Clone(), Ctx: ctx, Run: run}
	if !d.queue.Enqueue(ctx, j) {
		return fmt.Errorf("%s: %w", key, queue.ErrFull)
	}
	return nil
}
