// Package health provides reachability checks for the stores the matching
// service depends on, consumed by the readiness endpoint.
package health

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisChecker reports whether the job queue's Redis backend is reachable.
// The queue is optional, so a nil checker simply never runs.
type RedisChecker struct {
	client *redis.Client
}

// NewRedisChecker wraps a connected client.
func NewRedisChecker(client *redis.Client) *RedisChecker {
	return &RedisChecker{client: client}
}

// HealthCheck sends a PING.
func (r *RedisChecker) HealthCheck(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
