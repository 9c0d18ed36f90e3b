package dedup

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "reconcile:event:"

// RedisTracker remembers provider event ids with a TTL so duplicate
// webhook deliveries can be flagged in the audit trail. It is a
// best-effort annotation aid, not an idempotency mechanism.
type RedisTracker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisTracker(client *redis.Client, ttl time.Duration) *RedisTracker {
	return &RedisTracker{client: client, ttl: ttl}
}

// MarkSeen records key and reports whether it had been seen before.
func (t *RedisTracker) MarkSeen(ctx context.Context, key string) (bool, error) {
	stored, err := t.client.SetNX(ctx, keyPrefix+key, 1, t.ttl).Result()
	if err != nil {
		return false, err
	}
	return !stored, nil
}
