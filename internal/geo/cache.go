package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/onnwee/swipestack/internal/profile"
)

// CoordinateCache stores resolved coordinates keyed by normalized location
// text. Implementations must be safe for concurrent use. Entries are never
// invalidated.
type CoordinateCache interface {
	Get(ctx context.Context, key string) (profile.Coordinates, bool)
	Set(ctx context.Context, key string, c profile.Coordinates)
}

// MemoryCache is an in-process CoordinateCache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]profile.Coordinates
}

// NewMemoryCache creates an empty cache. Call Warm at startup to preload
// known locations.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]profile.Coordinates)}
}

// Warm preloads entries, normalizing their keys.
func (c *MemoryCache) Warm(entries map[string]profile.Coordinates) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range entries {
		c.entries[NormalizeLocation(k)] = v
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) (profile.Coordinates, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[key]
	return v, ok
}

func (c *MemoryCache) Set(_ context.Context, key string, v profile.Coordinates) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = v
}

// LoadSeed reads a JSON object mapping location text to coordinates, the
// format Warm accepts. Entries without a confidence get 1.
func LoadSeed(path string) (map[string]profile.Coordinates, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read geocode seed: %w", err)
	}
	var entries map[string]profile.Coordinates
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse geocode seed %s: %w", path, err)
	}
	for k, v := range entries {
		if v.Confidence == 0 {
			v.Confidence = 1
			entries[k] = v
		}
	}
	return entries, nil
}

// Len returns the number of cached locations.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
