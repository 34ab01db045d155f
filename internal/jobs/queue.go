package jobs

import (
	"context"
	"errors"
	"time"
)

// Queue errors.
var (
	// ErrQueueClosed is returned by Dequeue after the queue is closed.
	ErrQueueClosed = errors.New("job queue closed")

	// ErrNoJob is returned by Dequeue when no job arrived within the
	// blocking window. Callers loop on it.
	ErrNoJob = errors.New("no job available")
)

// DefaultDebounceWindow bounds how often a matching job for the same item
// can be queued. Rapid create/update bursts on one item collapse into a
// single pending job.
const DefaultDebounceWindow = 30 * time.Second

// Job is a unit of asynchronous matching work. The payload travels the
// queue CBOR-encoded.
type Job struct {
	// ID uniquely identifies this job instance.
	ID string `cbor:"id"`

	// Type selects the worker action: JobTypeMatchCompute, JobTypeReprocess
	// or JobTypeCleanup.
	Type string `cbor:"type"`

	// ItemID is the subject item for match_compute jobs.
	ItemID string `cbor:"item_id,omitempty"`

	// MaxAgeDays is the retention override for cleanup jobs. Zero uses the
	// configured default.
	MaxAgeDays int `cbor:"max_age_days,omitempty"`

	// Attempts counts prior executions of this job.
	Attempts int `cbor:"attempts"`

	// EnqueuedAt is when the job was first queued.
	EnqueuedAt time.Time `cbor:"enqueued_at"`
}

// Queue is an at-least-once job queue. Enqueue reports false without error
// when the job was suppressed by the per-item debounce window; retries
// (Attempts > 0) bypass the debounce.
type Queue interface {
	Enqueue(ctx context.Context, job *Job) (bool, error)

	// Dequeue blocks for a bounded window and returns the oldest job, or
	// ErrNoJob when the window elapses empty.
	Dequeue(ctx context.Context) (*Job, error)
}
