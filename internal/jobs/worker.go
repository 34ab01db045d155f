package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/reclaim/internal/item"
	"github.com/onnwee/reclaim/internal/match"
	"github.com/onnwee/reclaim/internal/matching"
	"github.com/onnwee/reclaim/internal/stats"
)

// DefaultJobTimeout bounds a single job execution.
const DefaultJobTimeout = 5 * time.Minute

// DefaultMaxAttempts bounds how many times a failing job is retried.
const DefaultMaxAttempts = 3

// Pipeline is the subset of the matching orchestrator the worker drives.
type Pipeline interface {
	FindMatches(ctx context.Context, itemID string) ([]*match.Match, error)
	ReprocessAll(ctx context.Context) (*matching.ReprocessStats, error)
	CleanupOldMatches(ctx context.Context, maxAge time.Duration) (int64, error)
}

// WorkerConfig configures the matching job worker.
type WorkerConfig struct {
	// JobTimeout bounds a single job execution. Zero uses the default.
	JobTimeout time.Duration

	// MaxAttempts bounds retries per job. Zero uses the default.
	MaxAttempts int

	// Logger for worker activity.
	Logger *slog.Logger

	// Metrics for centralized background job tracking.
	Metrics *Metrics
}

// Worker consumes the matching job queue and drives the pipeline.
type Worker struct {
	config   WorkerConfig
	queue    Queue
	pipeline Pipeline
	stats    *stats.JobStats

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewWorker creates a matching job worker.
func NewWorker(config WorkerConfig, queue Queue, pipeline Pipeline) *Worker {
	if config.JobTimeout == 0 {
		config.JobTimeout = DefaultJobTimeout
	}
	if config.MaxAttempts == 0 {
		config.MaxAttempts = DefaultMaxAttempts
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Worker{
		config:   config,
		queue:    queue,
		pipeline: pipeline,
		stats:    stats.NewJobStats(),
	}
}

// Stats returns the worker's cumulative job counters.
func (w *Worker) Stats() *stats.JobStats {
	return w.stats
}

// Start begins consuming jobs.
// Returns immediately; the worker runs in a background goroutine.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	go w.run(ctx)
	return nil
}

// Stop signals the worker to stop and waits for it to finish.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	stopCh := w.stopCh
	doneCh := w.doneCh
	w.mu.Unlock()

	close(stopCh)
	<-doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.stats.LogSummary(w.config.Logger)
}

// IsRunning returns whether the worker is currently running.
func (w *Worker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// run is the main consume loop.
func (w *Worker) run(ctx context.Context) {
	defer close(w.doneCh)

	for {
		select {
		case <-ctx.Done():
			w.config.Logger.Info("matching worker stopping due to context cancellation")
			return
		case <-w.stopCh:
			w.config.Logger.Info("matching worker stopping due to stop signal")
			return
		default:
		}

		job, err := w.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, ErrNoJob) {
				continue
			}
			if errors.Is(err, ErrQueueClosed) || errors.Is(err, context.Canceled) {
				w.config.Logger.Info("matching worker stopping, queue unavailable")
				return
			}
			w.config.Logger.Error("failed to dequeue job", "error", err)
			continue
		}

		w.process(ctx, job)
	}
}

// process executes one job under the job timeout and handles retry
// bookkeeping.
func (w *Worker) process(parentCtx context.Context, job *Job) {
	ctx, cancel := context.WithTimeout(parentCtx, w.config.JobTimeout)
	defer cancel()

	start := time.Now()
	err := w.execute(ctx, job)
	duration := time.Since(start).Seconds()

	if w.config.Metrics != nil {
		w.config.Metrics.ObserveJobDuration(job.Type, duration)
	}

	if err == nil {
		w.stats.RecordSuccess()
		if w.config.Metrics != nil {
			w.config.Metrics.IncJobsTotal(job.Type, StatusSuccess)
		}
		w.config.Logger.Info("job completed",
			"job_id", job.ID,
			"job_type", job.Type,
			"duration_seconds", duration)
		return
	}

	errorType := "execution_error"
	if errors.Is(err, context.DeadlineExceeded) {
		errorType = "timeout"
	}
	if errors.Is(err, item.ErrItemNotFound) {
		errorType = "item_not_found"
	}
	if w.config.Metrics != nil {
		w.config.Metrics.IncJobsTotal(job.Type, StatusFailure)
		w.config.Metrics.IncJobErrors(job.Type, errorType)
	}

	// A missing item cannot become findable by retrying; fail immediately.
	if errors.Is(err, item.ErrItemNotFound) {
		w.stats.RecordFailure()
		w.config.Logger.Error("job failed permanently, item not found",
			"job_id", job.ID,
			"job_type", job.Type,
			"item_id", job.ItemID,
			"error", err)
		return
	}

	job.Attempts++
	if job.Attempts >= w.config.MaxAttempts {
		w.stats.RecordFailure()
		w.config.Logger.Error("job failed permanently",
			"job_id", job.ID,
			"job_type", job.Type,
			"attempts", job.Attempts,
			"error", err)
		return
	}

	w.stats.RecordRetry()
	w.config.Logger.Warn("job failed, requeueing",
		"job_id", job.ID,
		"job_type", job.Type,
		"attempt", job.Attempts,
		"error", err)
	if _, reqErr := w.queue.Enqueue(parentCtx, job); reqErr != nil {
		w.config.Logger.Error("failed to requeue job",
			"job_id", job.ID,
			"error", reqErr)
	}
}

// execute dispatches on the job type.
func (w *Worker) execute(ctx context.Context, job *Job) error {
	switch job.Type {
	case JobTypeMatchCompute:
		_, err := w.pipeline.FindMatches(ctx, job.ItemID)
		return err
	case JobTypeReprocess:
		_, err := w.pipeline.ReprocessAll(ctx)
		return err
	case JobTypeCleanup:
		maxAge := time.Duration(job.MaxAgeDays) * 24 * time.Hour
		_, err := w.pipeline.CleanupOldMatches(ctx, maxAge)
		return err
	default:
		w.config.Logger.Warn("skipping job of unknown type",
			"job_id", job.ID,
			"job_type", job.Type)
		return nil
	}
}
