package actionq

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func newTestRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("ACTIONQ_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(t.Context()).Err(); err != nil {
		_ = client.Close()
		t.Skipf("redis not available at %s: %v", addr, err)
	}
	return client
}

func TestRedisStorage(t *testing.T) {
	store := NewRedisStorage(newTestRedisClient(t), WithKeyPrefix("actionq-test:"))
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("failed to close store: %v", err)
		}
	})
	testStorageBackend(t, store)
}

func TestRedisStorage_PrefixAndTTL(t *testing.T) {
	client := newTestRedisClient(t)
	store := NewRedisStorage(client, WithKeyPrefix("actionq-test:"), WithTTL(time.Minute))
	t.Cleanup(func() {
		_ = store.RemoveItem(context.Background(), "ttl")
		_ = store.Close()
	})

	if err := store.SetItem(t.Context(), "ttl", "[]"); err != nil {
		t.Fatalf("failed to set item: %v", err)
	}
	ttl, err := client.TTL(t.Context(), "actionq-test:ttl").Result()
	if err != nil {
		t.Fatalf("failed to read ttl: %v", err)
	}
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("expected ttl within a minute, got %v", ttl)
	}
}
