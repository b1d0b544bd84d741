package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"vivpro-songs/internal/models"
)

const (
	defaultRedisSessionPrefix = "vivpro:session:"
	// Keys outlive the session so Validate can still report Expired and
	// delete the row instead of the key silently vanishing.
	defaultRedisSessionGrace = 24 * time.Hour
)

// RedisSessionStore keeps sessions as JSON values with a TTL slightly longer
// than the session itself.
type RedisSessionStore struct {
	client redis.UniversalClient
	prefix string
	grace  time.Duration
	now    func() time.Time
}

type redisSessionValue struct {
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewRedisSessionStore wraps an existing client. The caller owns client.
func NewRedisSessionStore(client redis.UniversalClient, prefix string) (*RedisSessionStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client required")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = defaultRedisSessionPrefix
	}
	return &RedisSessionStore{client: client, prefix: prefix, grace: defaultRedisSessionGrace, now: time.Now}, nil
}

func (s *RedisSessionStore) key(id string) string {
	return s.prefix + id
}

// Save stores the session with a TTL of its remaining lifetime plus grace.
func (s *RedisSessionStore) Save(ctx context.Context, session models.Session) error {
	payload, err := json.Marshal(redisSessionValue{UserID: session.UserID, ExpiresAt: session.ExpiresAt.UTC()})
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	ttl := session.ExpiresAt.Sub(s.now()) + s.grace
	if ttl <= 0 {
		ttl = s.grace
	}
	return s.client.Set(ctx, s.key(session.ID), payload, ttl).Err()
}

// Get fetches the session for the provided id.
func (s *RedisSessionStore) Get(ctx context.Context, id string) (models.Session, bool, error) {
	payload, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.Session{}, false, nil
		}
		return models.Session{}, false, err
	}
	var value redisSessionValue
	if err := json.Unmarshal(payload, &value); err != nil {
		return models.Session{}, false, fmt.Errorf("decode session: %w", err)
	}
	return models.Session{ID: id, UserID: value.UserID, ExpiresAt: value.ExpiresAt.UTC()}, true, nil
}

// Delete removes the session key.
func (s *RedisSessionStore) Delete(ctx context.Context, id string) (bool, error) {
	removed, err := s.client.Del(ctx, s.key(id)).Result()
	if err != nil {
		return false, err
	}
	return removed > 0, nil
}

// PurgeExpired is a no-op; Redis evicts keys once their TTL lapses.
func (s *RedisSessionStore) PurgeExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

// Ping checks the Redis connection.
func (s *RedisSessionStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
