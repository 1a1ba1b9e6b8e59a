package async

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolRunsQueuedTasksBeforeShutdown(t *testing.T) {
	pool, err := NewPool(2, 8)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	var ran atomic.Int32
	for i := 0; i < 8; i++ {
		if err := pool.Submit(context.Background(), func(context.Context) error {
			ran.Add(1)
			return nil
		}); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := pool.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if got := ran.Load(); got != 8 {
		t.Fatalf("expected 8 tasks to run, got %d", got)
	}
	if err := pool.Submit(context.Background(), func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected submit after shutdown to fail")
	}
}

func TestPoolRejectsWhenSaturated(t *testing.T) {
	pool, err := NewPool(1, 0)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	block := make(chan struct{})
	started := make(chan struct{})
	if err := submitUntilAccepted(pool, func(context.Context) error {
		close(started)
		<-block
		return nil
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	<-started
	if err := pool.Submit(context.Background(), func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected saturated pool to reject the task")
	}
	close(block)
	_ = pool.Shutdown(context.Background())
}

func TestPoolReportsErrorsAndPanics(t *testing.T) {
	var (
		mu       sync.Mutex
		reported []error
	)
	pool, err := NewPool(1, 4, WithErrorHandler(func(err error) {
		mu.Lock()
		reported = append(reported, err)
		mu.Unlock()
	}))
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	_ = pool.Submit(context.Background(), func(context.Context) error { return errBoom })
	_ = pool.Submit(context.Background(), func(context.Context) error { panic("boom") })
	if err := pool.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(reported) != 2 {
		t.Fatalf("expected 2 reported errors, got %d", len(reported))
	}
}

func TestPoolShutdownCancelsStuckTasks(t *testing.T) {
	pool, err := NewPool(1, 1)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	cancelled := make(chan struct{})
	_ = pool.Submit(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		close(cancelled)
		return ctx.Err()
	})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := pool.Shutdown(ctx); err == nil {
		t.Fatal("expected shutdown to report the expired context")
	}
	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("stuck task was not cancelled")
	}
}

func TestNewPoolValidatesWorkers(t *testing.T) {
	if _, err := NewPool(0, 1); err == nil {
		t.Fatal("expected error for zero workers")
	}
}

var errBoom = errors.New("boom")

// submitUntilAccepted retries while the worker has not yet started receiving.
func submitUntilAccepted(pool *Pool, fn Task) error {
	deadline := time.Now().Add(time.Second)
	for {
		err := pool.Submit(context.Background(), fn)
		if err == nil || time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Millisecond)
	}
}
