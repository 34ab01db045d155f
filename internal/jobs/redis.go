package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Redis key layout.
const (
	queueKey          = "matching:jobs"
	debounceKeyPrefix = "matching:debounce:"
)

// dequeueBlock is how long a single BRPOP blocks before returning ErrNoJob.
// Short enough that worker shutdown stays responsive.
const dequeueBlock = 2 * time.Second

// RedisQueue is a Redis-backed Queue using a list for FIFO delivery and
// SET NX for the per-item debounce.
type RedisQueue struct {
	rdb      *redis.Client
	debounce time.Duration
	logger   *slog.Logger
}

// NewRedisQueue creates a queue over an established Redis client.
// Zero debounce uses the default window.
func NewRedisQueue(rdb *redis.Client, debounce time.Duration, logger *slog.Logger) *RedisQueue {
	if debounce <= 0 {
		debounce = DefaultDebounceWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisQueue{
		rdb:      rdb,
		debounce: debounce,
		logger:   logger,
	}
}

// Enqueue pushes a job onto the queue. A match_compute job for an item that
// was queued within the debounce window is suppressed and reported as not
// queued; retries bypass the debounce.
func (q *RedisQueue) Enqueue(ctx context.Context, job *Job) (bool, error) {
	if job.Type == JobTypeMatchCompute && job.ItemID != "" && job.Attempts == 0 {
		ok, err := q.rdb.SetNX(ctx, debounceKeyPrefix+job.ItemID, "1", q.debounce).Result()
		if err != nil {
			return false, fmt.Errorf("failed to check debounce for item %s: %w", job.ItemID, err)
		}
		if !ok {
			q.logger.Debug("matching job debounced",
				slog.String("item_id", job.ItemID))
			return false, nil
		}
	}

	payload, err := cbor.Marshal(job)
	if err != nil {
		return false, fmt.Errorf("failed to encode job %s: %w", job.ID, err)
	}
	if err := q.rdb.LPush(ctx, queueKey, payload).Err(); err != nil {
		return false, fmt.Errorf("failed to enqueue job %s: %w", job.ID, err)
	}
	return true, nil
}

// Dequeue pops the oldest job, blocking up to the dequeue window.
func (q *RedisQueue) Dequeue(ctx context.Context) (*Job, error) {
	result, err := q.rdb.BRPop(ctx, dequeueBlock, queueKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoJob
		}
		return nil, fmt.Errorf("failed to dequeue job: %w", err)
	}

	// BRPOP returns [key, value].
	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected BRPOP reply of %d elements", len(result))
	}

	var job Job
	if err := cbor.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("failed to decode job payload: %w", err)
	}
	return &job, nil
}

// Depth returns the current number of queued jobs.
func (q *RedisQueue) Depth(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, queueKey).Result()
}

// EnqueueMatchJob queues a match_compute job for the item. Implements the
// orchestrator's Enqueuer contract.
func (q *RedisQueue) EnqueueMatchJob(ctx context.Context, itemID string) (bool, error) {
	return q.Enqueue(ctx, &Job{
		ID:         uuid.New().String(),
		Type:       JobTypeMatchCompute,
		ItemID:     itemID,
		EnqueuedAt: time.Now(),
	})
}
