package workerpool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolRetriesFailedTasks(t *testing.T) {
	var attempts int32
	done := make(chan struct{})
	fn := func(_ context.Context, task *Task) *Result {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return &Result{TaskID: task.ID, Success: false, Error: errors.New("transient")}
		}
		close(done)
		return &Result{TaskID: task.ID, Success: true}
	}

	pool, err := New(Config{
		Workers:                 1,
		QueueSize:               4,
		MaxRetries:              3,
		RetryDelay:              time.Millisecond,
		GracefulShutdownTimeout: time.Second,
	}, fn, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	pool.Start()
	defer pool.Stop()

	if err := pool.Submit(&Task{ID: "t1"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task was not retried to success")
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestSubmitRejectsWhenQueueFull(t *testing.T) {
	fn := func(_ context.Context, task *Task) *Result {
		return &Result{TaskID: task.ID, Success: true}
	}
	// Not started, so queued tasks are never drained.
	pool, err := New(Config{Workers: 1, QueueSize: 1}, fn, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := pool.Submit(&Task{ID: "a"}); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if err := pool.Submit(&Task{ID: "b"}); err == nil {
		t.Error("submit into a full queue should fail")
	}
}

func TestSubmitRejectsAfterStop(t *testing.T) {
	fn := func(_ context.Context, task *Task) *Result {
		return &Result{TaskID: task.ID, Success: true}
	}
	pool, err := New(Config{Workers: 1, QueueSize: 1, GracefulShutdownTimeout: time.Second}, fn, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	pool.Start()
	pool.Stop()
	if err := pool.Submit(&Task{ID: "x"}); err == nil {
		t.Error("submit after stop should fail")
	}
}
