package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"civic_reports/internal/logger"
)

func TestQueueProcessesJob(t *testing.T) {
	q := New(10, 1, time.Second, logger.New())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	var processed int32
	done := make(chan struct{})
	ok := q.Enqueue(Job{
		ID:     "CA100",
		Source: "webhook",
		Work: func(ctx context.Context) error {
			atomic.AddInt32(&processed, 1)
			close(done)
			return nil
		},
	})
	if !ok {
		t.Fatalf("expected enqueue to succeed")
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("job did not complete")
	}
	if atomic.LoadInt32(&processed) != 1 {
		t.Fatalf("job not processed")
	}
}

func TestQueueBounded(t *testing.T) {
	q := New(1, 0, time.Second, logger.New())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	ok := q.Enqueue(Job{ID: "CA101", Source: "webhook", Work: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	if !ok {
		t.Fatalf("expected first enqueue to succeed")
	}

	if ok := q.Enqueue(Job{ID: "CA102", Source: "webhook", Work: func(ctx context.Context) error { return nil }}); ok {
		t.Fatalf("expected enqueue to be rejected when queue is full")
	}
}

func TestQueueOnFinishSeesError(t *testing.T) {
	q := New(4, 1, time.Second, logger.New())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	wantErr := errors.New("transcription failed")
	got := make(chan error, 1)
	q.Enqueue(Job{
		ID:       "CA103",
		Source:   "watcher",
		Work:     func(ctx context.Context) error { return wantErr },
		OnFinish: func(err error) { got <- err },
	})

	select {
	case err := <-got:
		if !errors.Is(err, wantErr) {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("OnFinish not called")
	}

	stats := q.Stats()
	if stats.Failed != 1 {
		t.Fatalf("expected 1 failed job, got %d", stats.Failed)
	}
}

func TestQueueEnqueueBeforeStart(t *testing.T) {
	q := New(1, 1, time.Second, logger.New())
	if ok := q.Enqueue(Job{ID: "CA104", Source: "webhook", Work: func(ctx context.Context) error { return nil }}); ok {
		t.Fatalf("expected enqueue to fail before Start")
	}
}
