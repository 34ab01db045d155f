package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryQueue is a channel-backed Queue for tests and single-process
// development runs. Delivery and debounce semantics mirror RedisQueue.
type InMemoryQueue struct {
	mu       sync.Mutex
	jobs     chan *Job
	debounce time.Duration
	lastSeen map[string]time.Time
	closed   bool
	nowFunc  func() time.Time
}

// NewInMemoryQueue creates an in-memory queue with the given capacity.
// Zero debounce uses the default window.
func NewInMemoryQueue(capacity int, debounce time.Duration) *InMemoryQueue {
	if capacity <= 0 {
		capacity = 128
	}
	if debounce <= 0 {
		debounce = DefaultDebounceWindow
	}
	return &InMemoryQueue{
		jobs:     make(chan *Job, capacity),
		debounce: debounce,
		lastSeen: make(map[string]time.Time),
		nowFunc:  time.Now,
	}
}

// SetNowFunc overrides the clock. Test helper.
func (q *InMemoryQueue) SetNowFunc(f func() time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.nowFunc = f
}

// Enqueue pushes a job, honoring the per-item debounce for fresh
// match_compute jobs.
func (q *InMemoryQueue) Enqueue(ctx context.Context, job *Job) (bool, error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false, ErrQueueClosed
	}
	now := q.nowFunc()
	if job.Type == JobTypeMatchCompute && job.ItemID != "" && job.Attempts == 0 {
		if last, ok := q.lastSeen[job.ItemID]; ok && now.Sub(last) < q.debounce {
			q.mu.Unlock()
			return false, nil
		}
		q.lastSeen[job.ItemID] = now
	}
	q.mu.Unlock()

	select {
	case q.jobs <- job:
		return true, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Dequeue returns the oldest job, blocking briefly like the Redis queue.
func (q *InMemoryQueue) Dequeue(ctx context.Context) (*Job, error) {
	select {
	case job, ok := <-q.jobs:
		if !ok {
			return nil, ErrQueueClosed
		}
		return job, nil
	case <-time.After(dequeueBlock):
		return nil, ErrNoJob
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Depth returns the current number of queued jobs.
func (q *InMemoryQueue) Depth(ctx context.Context) (int64, error) {
	return int64(len(q.jobs)), nil
}

// Close shuts the queue down. Subsequent Enqueue calls fail and Dequeue
// drains the remaining jobs before returning ErrQueueClosed.
func (q *InMemoryQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
}

// EnqueueMatchJob queues a match_compute job for the item. Implements the
// orchestrator's Enqueuer contract.
func (q *InMemoryQueue) EnqueueMatchJob(ctx context.Context, itemID string) (bool, error) {
	return q.Enqueue(ctx, &Job{
		ID:         uuid.New().String(),
		Type:       JobTypeMatchCompute,
		ItemID:     itemID,
		EnqueuedAt: q.nowFunc(),
	})
}
