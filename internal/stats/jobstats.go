// Package stats provides utilities for tracking job processing statistics.
package stats

import (
	"fmt"
	"log/slog"
	"sync/atomic"
)

// JobStats tracks cumulative statistics for processed matching jobs.
// All operations are thread-safe using atomic counters.
type JobStats struct {
	succeeded int64 // Total jobs completed successfully
	failed    int64 // Total jobs that exhausted their attempts
	retried   int64 // Total requeued attempts
}

// NewJobStats creates a new JobStats instance.
func NewJobStats() *JobStats {
	return &JobStats{}
}

// RecordSuccess increments the succeeded counter.
func (s *JobStats) RecordSuccess() {
	atomic.AddInt64(&s.succeeded, 1)
}

// RecordFailure increments the failed counter.
func (s *JobStats) RecordFailure() {
	atomic.AddInt64(&s.failed, 1)
}

// RecordRetry increments the retried counter.
func (s *JobStats) RecordRetry() {
	atomic.AddInt64(&s.retried, 1)
}

// Succeeded returns the total number of successful jobs.
func (s *JobStats) Succeeded() int64 {
	return atomic.LoadInt64(&s.succeeded)
}

// Failed returns the total number of permanently failed jobs.
func (s *JobStats) Failed() int64 {
	return atomic.LoadInt64(&s.failed)
}

// Retried returns the total number of requeued attempts.
func (s *JobStats) Retried() int64 {
	return atomic.LoadInt64(&s.retried)
}

// Total returns the total number of finished jobs (succeeded + failed).
func (s *JobStats) Total() int64 {
	return s.Succeeded() + s.Failed()
}

// Reset resets all counters to zero.
func (s *JobStats) Reset() {
	atomic.StoreInt64(&s.succeeded, 0)
	atomic.StoreInt64(&s.failed, 0)
	atomic.StoreInt64(&s.retried, 0)
}

// String returns a human-readable summary of the statistics.
func (s *JobStats) String() string {
	return fmt.Sprintf("succeeded=%d failed=%d retried=%d total=%d", s.Succeeded(), s.Failed(), s.Retried(), s.Total())
}

// LogSummary logs a summary of job statistics at INFO level.
// Useful when a worker shuts down.
func (s *JobStats) LogSummary(logger *slog.Logger) {
	logger.Info("job statistics",
		"succeeded", s.Succeeded(),
		"failed", s.Failed(),
		"retried", s.Retried(),
		"total", s.Total(),
	)
}
