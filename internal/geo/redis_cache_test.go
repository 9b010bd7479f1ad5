package geo

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/onnwee/swipestack/internal/profile"
)

// TestRedisCache_RoundTrip requires Redis on localhost:6379 and is skipped
// otherwise.
func TestRedisCache_RoundTrip(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("Redis not available, skipping integration test")
	}
	defer client.Close()

	prefix := "test:geo:" + strconv.FormatInt(time.Now().UnixNano(), 10) + ":"
	writer := NewRedisCache(client, prefix, quietLogger())
	want := profile.Coordinates{Lat: 52.52, Lng: 13.405, Confidence: 0.75}

	writer.Set(ctx, "berlin, germany", want)
	defer client.Del(context.Background(), prefix+"berlin, germany")

	// A second instance has an empty local cache and must read from Redis.
	reader := NewRedisCache(client, prefix, quietLogger())
	got, ok := reader.Get(ctx, "berlin, germany")
	if !ok {
		t.Fatal("expected cache hit from redis")
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
	if reader.local.Len() != 1 {
		t.Error("redis hit should populate the local cache")
	}

	if _, ok := reader.Get(ctx, "missing"); ok {
		t.Error("unexpected hit for missing key")
	}
}

func TestRedisCache_UnreachableIsMiss(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer client.Close()

	c := NewRedisCache(client, "", quietLogger())
	ctx := context.Background()
	if _, ok := c.Get(ctx, "x"); ok {
		t.Fatal("expected miss when redis is unreachable")
	}

	want := profile.Coordinates{Lat: 1, Lng: 1, Confidence: 1}
	c.Set(ctx, "x", want)
	if got, ok := c.Get(ctx, "x"); !ok || got != want {
		t.Errorf("local layer should still serve writes, got %+v %v", got, ok)
	}
}
