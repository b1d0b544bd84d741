package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const defaultRedisDeletionKey = "vivpro:session-deletions"

// RedisDeletionQueue stores pending session deletions in a Redis list so the
// retry survives a restart and is shared between replicas.
type RedisDeletionQueue struct {
	client       redis.UniversalClient
	key          string
	blockTimeout time.Duration
}

// NewRedisDeletionQueue wraps an existing client. The caller owns client.
func NewRedisDeletionQueue(client redis.UniversalClient, key string, blockTimeout time.Duration) (*RedisDeletionQueue, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client required")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = defaultRedisDeletionKey
	}
	if blockTimeout < time.Second {
		blockTimeout = 2 * time.Second
	}
	return &RedisDeletionQueue{client: client, key: key, blockTimeout: blockTimeout}, nil
}

// Enqueue pushes id onto the list.
func (q *RedisDeletionQueue) Enqueue(ctx context.Context, id string) error {
	return q.client.LPush(ctx, q.key, id).Err()
}

// Dequeue pops the oldest id, polling in blockTimeout slices so cancellation
// is observed promptly.
func (q *RedisDeletionQueue) Dequeue(ctx context.Context) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		values, err := q.client.BRPop(ctx, q.blockTimeout, q.key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return "", err
		}
		if len(values) == 2 {
			return values[1], nil
		}
	}
}
