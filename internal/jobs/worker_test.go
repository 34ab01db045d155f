package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/onnwee/reclaim/internal/item"
	"github.com/onnwee/reclaim/internal/match"
	"github.com/onnwee/reclaim/internal/matching"
)

// stubPipeline records calls and returns canned results.
type stubPipeline struct {
	mu          sync.Mutex
	findCalls   []string
	reprocessed int
	cleanups    []time.Duration
	findErr     error
}

func (s *stubPipeline) FindMatches(ctx context.Context, itemID string) ([]*match.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findCalls = append(s.findCalls, itemID)
	return nil, s.findErr
}

func (s *stubPipeline) ReprocessAll(ctx context.Context) (*matching.ReprocessStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reprocessed++
	return &matching.ReprocessStats{}, nil
}

func (s *stubPipeline) CleanupOldMatches(ctx context.Context, maxAge time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanups = append(s.cleanups, maxAge)
	return 0, nil
}

func (s *stubPipeline) findCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.findCalls)
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

// TestWorkerProcessesJobs verifies each job type is dispatched to the
// matching pipeline.
func TestWorkerProcessesJobs(t *testing.T) {
	q := NewInMemoryQueue(8, time.Second)
	pipeline := &stubPipeline{}
	w := NewWorker(WorkerConfig{}, q, pipeline)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := q.EnqueueMatchJob(ctx, "item-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := q.Enqueue(ctx, &Job{ID: "r1", Type: JobTypeReprocess}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := q.Enqueue(ctx, &Job{ID: "c1", Type: JobTypeCleanup, MaxAgeDays: 30}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := w.Start(ctx); err != nil {
		t.Fatalf("failed to start worker: %v", err)
	}
	defer func() {
		cancel()
		w.Stop()
	}()

	waitFor(t, func() bool {
		pipeline.mu.Lock()
		defer pipeline.mu.Unlock()
		return len(pipeline.findCalls) == 1 && pipeline.reprocessed == 1 && len(pipeline.cleanups) == 1
	}, "expected all three jobs processed")

	pipeline.mu.Lock()
	defer pipeline.mu.Unlock()
	if pipeline.findCalls[0] != "item-1" {
		t.Errorf("expected match job for item-1, got %s", pipeline.findCalls[0])
	}
	if pipeline.cleanups[0] != 30*24*time.Hour {
		t.Errorf("expected 30 day cleanup age, got %v", pipeline.cleanups[0])
	}
}

// TestWorkerRetriesBoundedly verifies a failing job is retried up to the
// attempt cap and then dropped.
func TestWorkerRetriesBoundedly(t *testing.T) {
	q := NewInMemoryQueue(8, time.Second)
	pipeline := &stubPipeline{findErr: errors.New("scoring broke")}
	w := NewWorker(WorkerConfig{MaxAttempts: 3}, q, pipeline)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := q.EnqueueMatchJob(ctx, "item-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := w.Start(ctx); err != nil {
		t.Fatalf("failed to start worker: %v", err)
	}
	defer func() {
		cancel()
		w.Stop()
	}()

	waitFor(t, func() bool { return pipeline.findCount() == 3 }, "expected 3 attempts")

	// Give the worker a beat to requeue if it (incorrectly) would.
	time.Sleep(50 * time.Millisecond)
	if n := pipeline.findCount(); n != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", n)
	}
	if depth, _ := q.Depth(ctx); depth != 0 {
		t.Errorf("expected empty queue after giving up, got depth %d", depth)
	}
}

// TestWorkerItemNotFoundNotRetried verifies a job for a missing item fails
// permanently on the first attempt instead of burning the retry budget.
func TestWorkerItemNotFoundNotRetried(t *testing.T) {
	q := NewInMemoryQueue(8, time.Second)
	pipeline := &stubPipeline{findErr: item.ErrItemNotFound}
	w := NewWorker(WorkerConfig{MaxAttempts: 3}, q, pipeline)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := q.EnqueueMatchJob(ctx, "item-gone"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := w.Start(ctx); err != nil {
		t.Fatalf("failed to start worker: %v", err)
	}
	defer func() {
		cancel()
		w.Stop()
	}()

	waitFor(t, func() bool { return pipeline.findCount() == 1 }, "expected 1 attempt")

	// Give the worker a beat to requeue if it (incorrectly) would.
	time.Sleep(50 * time.Millisecond)
	if n := pipeline.findCount(); n != 1 {
		t.Errorf("expected exactly 1 attempt, got %d", n)
	}
	if depth, _ := q.Depth(ctx); depth != 0 {
		t.Errorf("expected empty queue, got depth %d", depth)
	}
	if got := w.Stats().Failed(); got != 1 {
		t.Errorf("expected 1 permanent failure, got %d", got)
	}
	if got := w.Stats().Retried(); got != 0 {
		t.Errorf("expected 0 retries, got %d", got)
	}
}

// TestWorkerStartStop verifies lifecycle management is idempotent.
func TestWorkerStartStop(t *testing.T) {
	q := NewInMemoryQueue(8, time.Second)
	w := NewWorker(WorkerConfig{}, q, &stubPipeline{})

	ctx, cancel := context.WithCancel(context.Background())

	if err := w.Start(ctx); err != nil {
		t.Fatalf("failed to start worker: %v", err)
	}
	if err := w.Start(ctx); err != nil {
		t.Fatalf("second start should be a no-op: %v", err)
	}
	if !w.IsRunning() {
		t.Error("expected worker running")
	}

	cancel()
	w.Stop()
	w.Stop()
	if w.IsRunning() {
		t.Error("expected worker stopped")
	}
}
