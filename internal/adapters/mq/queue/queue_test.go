package queue

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/okian/lakeline/internal/domain/cache"
)

func job(id string) Job {
	return Job{ID: id, Key: cache.Key{"lakes", id}, Ctx: context.Background(), Run: func(context.Context) {}}
}

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}

	if !q.Enqueue(ctx, job("job1")) {
		t.Error("expected enqueue to succeed")
	}
	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	j := <-q.Dequeue(ctx)
	if j.ID != "job1" {
		t.Errorf("expected job1, got %v", j.ID)
	}
	if j.Key.String() != "lakes/job1" {
		t.Errorf("expected key lakes/job1, got %s", j.Key)
	}
	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2), WithBufferSize(1))
	ctx := context.Background()

	if !q.Enqueue(ctx, job("job1")) || !q.Enqueue(ctx, job("job2")) {
		t.Fatal("expected enqueue to succeed")
	}
	if q.Enqueue(ctx, job("job3")) {
		t.Error("expected enqueue to fail when full")
	}
	if l := q.Len(ctx); l != 2 {
		t.Errorf("expected length 2, got %d", l)
	}
}

func TestInMemoryQueue_ConcurrentAccess(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(100))
	ctx := context.Background()
	producers := 10
	perProducer := 100

	done := make(chan bool, producers)
	for i := 0; i < producers; i++ {
		go func(id int) {
			for n := 0; n < perProducer; n++ {
				for !q.Enqueue(ctx, job(fmt.Sprintf("job%d_%d", id, n))) {
					time.Sleep(time.Millisecond)
				}
			}
			done <- true
		}(i)
	}

	consumed := make(chan string, producers*perProducer)
	for i := 0; i < producers; i++ {
		go func() {
			for j := range q.Dequeue(ctx) {
				consumed <- j.ID
			}
		}()
	}

	for i := 0; i < producers; i++ {
		<-done
	}

	deadline := time.After(2 * time.Second)
	for n := 0; n < producers*perProducer; n++ {
		select {
		case <-consumed:
		case <-deadline:
			t.Fatalf("consumed %d of %d jobs", n, producers*perProducer)
		}
	}
	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected final length 0, got %d", l)
	}
}

func TestInMemoryQueue_GracefulShutdown(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(10))
	ctx := context.Background()

	if !q.Enqueue(ctx, job("job1")) || !q.Enqueue(ctx, job("job2")) {
		t.Fatal("expected enqueue to succeed")
	}
	if q.IsClosed() {
		t.Error("expected queue to be open initially")
	}
	if err := q.Close(); err != nil {
		t.Errorf("expected close to succeed, got error: %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected queue to be closed after Close()")
	}
	if q.Enqueue(ctx, job("job3")) {
		t.Error("expected enqueue to fail after closing")
	}

	// Waiting jobs drain before the channel closes.
	var ids []string
	timeout := time.After(time.Second)
	ch := q.Dequeue(ctx)
	for {
		select {
		case j, ok := <-ch:
			if !ok {
				if len(ids) != 2 {
					t.Errorf("expected 2 drained jobs, got %v", ids)
				}
				if err := q.Close(); err != nil {
					t.Errorf("expected second close to succeed, got error: %v", err)
				}
				return
			}
			ids = append(ids, j.ID)
		case <-timeout:
			t.Fatal("expected dequeue channel to be closed within timeout")
		}
	}
}
