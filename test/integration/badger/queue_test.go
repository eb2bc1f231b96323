//go:build integration

package badger_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/arcafs/arca/pkg/tasks"
)

// TestQueue_Durability runs the on-disk task queue through close/reopen
// cycles: enqueued work must survive a restart, claims must be settled or
// recovered.
func TestQueue_Durability(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "queue")

	cfg := tasks.QueueConfig{
		Path:         dir,
		MaxAttempts:  3,
		RetryBackoff: 50 * time.Millisecond,
		MaxBackoff:   200 * time.Millisecond,
		ClaimTimeout: time.Second,
	}

	open := func() *tasks.Queue {
		q, err := tasks.OpenQueue(cfg)
		if err != nil {
			t.Fatalf("OpenQueue: %v", err)
		}
		return q
	}

	t.Run("PendingSurvivesReopen", func(t *testing.T) {
		q := open()

		first, err := tasks.NewTask("first", map[string]string{"n": "1"})
		if err != nil {
			t.Fatalf("NewTask: %v", err)
		}
		second, err := tasks.NewTask("second", nil)
		if err != nil {
			t.Fatalf("NewTask: %v", err)
		}
		if err := q.EnqueueAt(ctx, first, time.Now().Add(-2*time.Second)); err != nil {
			t.Fatalf("Enqueue first: %v", err)
		}
		if err := q.EnqueueAt(ctx, second, time.Now().Add(-time.Second)); err != nil {
			t.Fatalf("Enqueue second: %v", err)
		}
		if err := q.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}

		q = open()
		defer q.Close()

		n, err := q.PendingCount(ctx)
		if err != nil {
			t.Fatalf("PendingCount: %v", err)
		}
		if n != 2 {
			t.Fatalf("pending after reopen = %d, want 2", n)
		}

		// Due order is enqueue-time order.
		got, err := q.Claim(ctx, time.Now())
		if err != nil {
			t.Fatalf("Claim: %v", err)
		}
		if got == nil || got.Kind != "first" {
			t.Fatalf("claimed %+v, want kind first", got)
		}
		if got.Attempts != 1 {
			t.Errorf("attempts = %d, want 1", got.Attempts)
		}
		if err := q.Ack(ctx, got.ID); err != nil {
			t.Fatalf("Ack: %v", err)
		}

		got, err = q.Claim(ctx, time.Now())
		if err != nil {
			t.Fatalf("Claim: %v", err)
		}
		if got == nil || got.Kind != "second" {
			t.Fatalf("claimed %+v, want kind second", got)
		}
		if err := q.Ack(ctx, got.ID); err != nil {
			t.Fatalf("Ack: %v", err)
		}

		got, err = q.Claim(ctx, time.Now())
		if err != nil {
			t.Fatalf("Claim on empty queue: %v", err)
		}
		if got != nil {
			t.Fatalf("claimed %+v from empty queue", got)
		}
	})

	t.Run("FailedTaskRetriesWithBackoff", func(t *testing.T) {
		q := open()
		defer q.Close()

		task, err := tasks.NewTask("flaky", nil)
		if err != nil {
			t.Fatalf("NewTask: %v", err)
		}
		if err := q.Enqueue(ctx, task); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}

		claimed, err := q.Claim(ctx, time.Now())
		if err != nil || claimed == nil {
			t.Fatalf("Claim = %+v, %v", claimed, err)
		}
		if err := q.Fail(ctx, claimed, errors.New("transient")); err != nil {
			t.Fatalf("Fail: %v", err)
		}

		// Not due again until the backoff elapses.
		got, err := q.Claim(ctx, time.Now())
		if err != nil {
			t.Fatalf("Claim: %v", err)
		}
		if got != nil {
			t.Fatalf("claimed %+v before backoff elapsed", got)
		}

		got, err = q.Claim(ctx, time.Now().Add(time.Second))
		if err != nil {
			t.Fatalf("Claim after backoff: %v", err)
		}
		if got == nil || got.ID != claimed.ID {
			t.Fatalf("claimed %+v, want retried task %s", got, claimed.ID)
		}
		if got.Attempts != 2 {
			t.Errorf("attempts = %d, want 2", got.Attempts)
		}
		if err := q.Ack(ctx, got.ID); err != nil {
			t.Fatalf("Ack: %v", err)
		}
	})

	t.Run("ExhaustedTaskIsDropped", func(t *testing.T) {
		q := open()
		defer q.Close()

		task, err := tasks.NewTask("doomed", nil)
		if err != nil {
			t.Fatalf("NewTask: %v", err)
		}
		if err := q.Enqueue(ctx, task); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}

		// Burn through the attempt budget.
		deadline := time.Now()
		for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
			deadline = deadline.Add(time.Minute)
			claimed, err := q.Claim(ctx, deadline)
			if err != nil || claimed == nil {
				t.Fatalf("Claim attempt %d = %+v, %v", attempt, claimed, err)
			}
			if claimed.Attempts != attempt {
				t.Errorf("attempt %d recorded as %d", attempt, claimed.Attempts)
			}
			if err := q.Fail(ctx, claimed, errors.New("permanent")); err != nil {
				t.Fatalf("Fail: %v", err)
			}
		}

		got, err := q.Claim(ctx, deadline.Add(time.Hour))
		if err != nil {
			t.Fatalf("Claim: %v", err)
		}
		if got != nil {
			t.Fatalf("exhausted task claimed again: %+v", got)
		}
		n, err := q.PendingCount(ctx)
		if err != nil {
			t.Fatalf("PendingCount: %v", err)
		}
		if n != 0 {
			t.Errorf("pending = %d after drop, want 0", n)
		}
	})

	t.Run("StaleClaimSurvivesCrash", func(t *testing.T) {
		q := open()

		task, err := tasks.NewTask("orphaned", nil)
		if err != nil {
			t.Fatalf("NewTask: %v", err)
		}
		if err := q.Enqueue(ctx, task); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		claimed, err := q.Claim(ctx, time.Now())
		if err != nil || claimed == nil {
			t.Fatalf("Claim = %+v, %v", claimed, err)
		}

		// Simulated crash: close with the claim outstanding.
		if err := q.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}

		q = open()
		defer q.Close()

		active, err := q.ActiveCount(ctx)
		if err != nil {
			t.Fatalf("ActiveCount: %v", err)
		}
		if active != 1 {
			t.Fatalf("active after reopen = %d, want 1", active)
		}

		// The sweeper returns timed-out claims to pending, attempts kept.
		requeued, err := q.RequeueStale(ctx, time.Now().Add(2*cfg.ClaimTimeout))
		if err != nil {
			t.Fatalf("RequeueStale: %v", err)
		}
		if requeued != 1 {
			t.Fatalf("requeued = %d, want 1", requeued)
		}

		got, err := q.Claim(ctx, time.Now().Add(time.Hour))
		if err != nil || got == nil {
			t.Fatalf("Claim after requeue = %+v, %v", got, err)
		}
		if got.ID != task.ID {
			t.Errorf("claimed %s, want %s", got.ID, task.ID)
		}
		if got.Attempts != 2 {
			t.Errorf("attempts = %d, want 2 (stale requeue keeps the count)", got.Attempts)
		}
		if err := q.Ack(ctx, got.ID); err != nil {
			t.Fatalf("Ack: %v", err)
		}
	})
}
