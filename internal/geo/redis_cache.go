package geo

import (
	"context"
	"errors"
	"log/slog"

	"github.com/fxamacker/cbor/v2"
	"github.com/redis/go-redis/v9"

	"github.com/onnwee/swipestack/internal/profile"
)

// DefaultRedisKeyPrefix namespaces coordinate entries in a shared Redis.
const DefaultRedisKeyPrefix = "geo:coords:"

// cachedCoordinates is the CBOR payload stored per location.
type cachedCoordinates struct {
	Lat        float64 `cbor:"1,keyasint"`
	Lng        float64 `cbor:"2,keyasint"`
	Confidence float64 `cbor:"3,keyasint"`
}

// RedisCache is a two-level CoordinateCache: an in-process MemoryCache in
// front of Redis, so instances share geocoder results. Redis failures are
// logged and treated as misses.
type RedisCache struct {
	client *redis.Client
	local  *MemoryCache
	prefix string
	logger *slog.Logger
}

// NewRedisCache creates a cache backed by client. An empty prefix uses
// DefaultRedisKeyPrefix.
func NewRedisCache(client *redis.Client, prefix string, logger *slog.Logger) *RedisCache {
	if prefix == "" {
		prefix = DefaultRedisKeyPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisCache{
		client: client,
		local:  NewMemoryCache(),
		prefix: prefix,
		logger: logger,
	}
}

// Warm preloads the local level. Redis is left untouched.
func (c *RedisCache) Warm(entries map[string]profile.Coordinates) {
	c.local.Warm(entries)
}

// Get checks the local cache, then Redis. Redis hits are copied locally.
func (c *RedisCache) Get(ctx context.Context, key string) (profile.Coordinates, bool) {
	if v, ok := c.local.Get(ctx, key); ok {
		return v, true
	}

	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("redis coordinate lookup failed", "error", err)
		}
		return profile.Coordinates{}, false
	}

	var cc cachedCoordinates
	if err := cbor.Unmarshal(data, &cc); err != nil {
		c.logger.Warn("discarding undecodable cached coordinates", "error", err)
		return profile.Coordinates{}, false
	}
	v := profile.Coordinates{Lat: cc.Lat, Lng: cc.Lng, Confidence: cc.Confidence}
	c.local.Set(ctx, key, v)
	return v, true
}

// Set stores the coordinates locally and in Redis without expiry.
func (c *RedisCache) Set(ctx context.Context, key string, v profile.Coordinates) {
	c.local.Set(ctx, key, v)

	data, err := cbor.Marshal(cachedCoordinates{Lat: v.Lat, Lng: v.Lng, Confidence: v.Confidence})
	if err != nil {
		c.logger.Error("failed to encode coordinates", "error", err)
		return
	}
	if err := c.client.Set(ctx, c.prefix+key, data, 0).Err(); err != nil {
		c.logger.Warn("redis coordinate write failed", "error", err)
	}
}
