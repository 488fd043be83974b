package actionq

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var _ Storage = (*RedisStorage)(nil)

// RedisStorage keeps queue snapshots as plain Redis keys. A non-zero TTL makes
// snapshots expire like a browser session would.
type RedisStorage struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisStorageOption configures a RedisStorage.
type RedisStorageOption func(*RedisStorage)

// WithKeyPrefix prepends prefix to every key.
func WithKeyPrefix(prefix string) RedisStorageOption {
	return func(s *RedisStorage) {
		s.prefix = prefix
	}
}

// WithTTL expires snapshots ttl after their last write.
func WithTTL(ttl time.Duration) RedisStorageOption {
	return func(s *RedisStorage) {
		s.ttl = ttl
	}
}

func NewRedisStorage(client *redis.Client, opts ...RedisStorageOption) *RedisStorage {
	s := &RedisStorage{client: client}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStorage) key(key string) string {
	return s.prefix + key
}

func (s *RedisStorage) GetItem(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrItemNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis storage: failed to load %s: %w", key, err)
	}
	return value, nil
}

func (s *RedisStorage) SetItem(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.key(key), value, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis storage: failed to save %s: %w", key, err)
	}
	return nil
}

func (s *RedisStorage) RemoveItem(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis storage: failed to remove %s: %w", key, err)
	}
	return nil
}

func (s *RedisStorage) Close() error {
	return s.client.Close()
}
