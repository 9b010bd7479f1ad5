//go:build integration

package middleware

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func redisClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available at %s: %v", addr, err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisRateLimitStore_Allow(t *testing.T) {
	client := redisClient(t)
	store := NewRedisRateLimitStore(client, nil)
	cfg := RateLimitConfig{RequestsPerWindow: 3, WindowDuration: time.Minute}
	key := "test-" + strconv.FormatInt(time.Now().UnixNano(), 10)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if ok, _ := store.Allow(ctx, key, cfg); !ok {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	ok, retry := store.Allow(ctx, key, cfg)
	if ok {
		t.Fatal("fourth request should be limited")
	}
	if retry < 1 || retry > 60 {
		t.Errorf("retryAfter = %d, want 1..60", retry)
	}
	if ok, _ := store.Allow(ctx, key+"-other", cfg); !ok {
		t.Error("keys must be independent")
	}
}

func TestRedisRateLimitStore_FailOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()
	m := NewMetrics()
	store := NewRedisRateLimitStore(client, m)

	ok, _ := store.Allow(context.Background(), "k", RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute})
	if !ok {
		t.Error("store should fail open when redis is unreachable")
	}
}
