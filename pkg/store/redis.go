package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RedisStore is a Redis-backed Store. It makes routing state visible to
// every process sharing the Redis instance, which is what allows the gateway
// switch and circuit breaker states to survive restarts.
type RedisStore struct {
	client    goredis.Cmdable
	keyPrefix string
}

var _ Store = (*RedisStore)(nil)

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix sets the Redis key prefix (default "llmrouter:").
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) { s.keyPrefix = prefix }
}

// NewRedisStore creates a Store backed by the given Redis client.
// The client must be a connected *goredis.Client or *goredis.ClusterClient.
func NewRedisStore(client goredis.Cmdable, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client:    client,
		keyPrefix: "llmrouter:",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) key(k string) string {
	return s.keyPrefix + k
}

// Get returns the value for key, or ErrNotFound.
func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis get %q: %w", key, err)
	}
	return val, nil
}

// Set stores value under key with the given ttl.
func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del %q: %w", key, err)
	}
	return nil
}

// Increment atomically increments the integer at key.
func (s *RedisStore) Increment(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Incr(ctx, s.key(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr %q: %w", key, err)
	}
	return n, nil
}

// Expire sets the remaining ttl of an existing key.
func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.client.Expire(ctx, s.key(key), ttl).Err(); err != nil {
		return fmt.Errorf("redis expire %q: %w", key, err)
	}
	return nil
}

// PushHistory prepends value to the list at key and trims it to maxLen.
func (s *RedisStore) PushHistory(ctx context.Context, key, value string, maxLen int64) error {
	k := s.key(key)
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, k, value)
	pipe.LTrim(ctx, k, 0, maxLen-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis push history %q: %w", key, err)
	}
	return nil
}

// History returns up to limit entries, most recent first.
func (s *RedisStore) History(ctx context.Context, key string, limit int64) ([]string, error) {
	vals, err := s.client.LRange(ctx, s.key(key), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange %q: %w", key, err)
	}
	return vals, nil
}
