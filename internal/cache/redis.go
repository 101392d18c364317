package cache

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisStore is the optional shared backend for CI fleets, so a compile
// cache warmed by one runner is visible to the next. miniredis backs this
// same code path in tests (see redis_test.go).
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an already-configured client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Get returns the cached Lua source for key, if present.
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	source, err := s.client.Get(ctx, redisKey(key)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return source, true, nil
}

// Put stores (or replaces) the cached entry for key with no expiry —
// invalidation is by content hash, not time.
func (s *RedisStore) Put(ctx context.Context, key, source string) error {
	return s.client.Set(ctx, redisKey(key), source, 0).Err()
}

// Close releases the underlying client's connections.
func (s *RedisStore) Close() error { return s.client.Close() }

func redisKey(key string) string { return "pmmlc:compile:" + key }
