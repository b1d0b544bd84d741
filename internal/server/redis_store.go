package server

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultLoginKeyPrefix = "vivpro:login:"

// redisThrottle counts login attempts per client in fixed windows shared by
// every replica.
type redisThrottle struct {
	client redis.UniversalClient
	prefix string
	limit  int64
	window time.Duration
}

func newRedisThrottle(client redis.UniversalClient, prefix string, limit int, window time.Duration) *redisThrottle {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = defaultLoginKeyPrefix
	}
	return &redisThrottle{client: client, prefix: prefix, limit: int64(limit), window: window}
}

func (t *redisThrottle) allow(ctx context.Context, client string) (bool, time.Duration, error) {
	key := t.prefix + client
	var (
		attempts *redis.IntCmd
		ttl      *redis.DurationCmd
	)
	if _, err := t.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		attempts = pipe.Incr(ctx, key)
		ttl = pipe.PTTL(ctx, key)
		return nil
	}); err != nil {
		return false, 0, fmt.Errorf("count login attempt: %w", err)
	}

	remaining := ttl.Val()
	if remaining < 0 {
		// A new window, or a counter that lost its expiry.
		if err := t.client.PExpire(ctx, key, t.window).Err(); err != nil {
			return false, 0, fmt.Errorf("start login window: %w", err)
		}
		remaining = t.window
	}
	if attempts.Val() > t.limit {
		return false, remaining, nil
	}
	return true, 0, nil
}
