package shared

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// AttemptLimiter counts attempts per key inside a fixed window backed by Redis.
type AttemptLimiter struct {
	client *redis.Client
	prefix string
	limit  int64
	window time.Duration
}

// NewAttemptLimiter constructs an AttemptLimiter. A nil client or non-positive
// limit disables limiting.
func NewAttemptLimiter(client *redis.Client, prefix string, limit int, window time.Duration) *AttemptLimiter {
	return &AttemptLimiter{client: client, prefix: prefix, limit: int64(limit), window: window}
}

// Hit records one attempt for key and fails with TOO_MANY_ATTEMPTS once the
// window budget is exhausted.
func (l *AttemptLimiter) Hit(ctx context.Context, key string) error {
	if l == nil || l.client == nil || l.limit <= 0 {
		return nil
	}
	redisKey := l.redisKey(key)
	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return fmt.Errorf("shared: attempt limiter: %w", err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, redisKey, l.window).Err(); err != nil {
			return fmt.Errorf("shared: attempt limiter expire: %w", err)
		}
	}
	if count > l.limit {
		return NewError(CodeTooManyAttempts)
	}
	return nil
}

// Reset clears the counter for key.
func (l *AttemptLimiter) Reset(ctx context.Context, key string) error {
	if l == nil || l.client == nil {
		return nil
	}
	return l.client.Del(ctx, l.redisKey(key)).Err()
}

func (l *AttemptLimiter) redisKey(key string) string {
	return "attempts:" + l.prefix + ":" + key
}
