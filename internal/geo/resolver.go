package geo

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/onnwee/swipestack/internal/profile"
)

// DefaultLookupTimeout bounds a single geocoder call.
const DefaultLookupTimeout = 2 * time.Second

// ResolverConfig configures a Resolver.
type ResolverConfig struct {
	// Timeout bounds each geocoder lookup.
	Timeout time.Duration
	Logger  *slog.Logger
	Metrics *Metrics
}

// Resolver resolves location text to coordinates through a cache and a
// geocoder, falling back to country centroids when the geocoder fails.
// Concurrent lookups of the same location share one geocoder call.
type Resolver struct {
	geocoder Geocoder
	cache    CoordinateCache
	config   ResolverConfig
	group    singleflight.Group
}

// NewResolver creates a resolver. A nil geocoder resolves from cache and
// centroids only.
func NewResolver(geocoder Geocoder, cache CoordinateCache, config ResolverConfig) *Resolver {
	if cache == nil {
		cache = NewMemoryCache()
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultLookupTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Resolver{geocoder: geocoder, cache: cache, config: config}
}

// NormalizeLocation produces the cache key for location text: lowercase,
// trimmed, inner whitespace collapsed.
func NormalizeLocation(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// ResolveCoordinates returns coordinates for the location text. It never
// fails: geocoder errors fall back to the country centroid, and text with
// no recognizable country yields unknown coordinates (Confidence 0).
func (r *Resolver) ResolveCoordinates(ctx context.Context, locationText string) profile.Coordinates {
	key := NormalizeLocation(locationText)
	if key == "" {
		return profile.Coordinates{}
	}

	if c, ok := r.cache.Get(ctx, key); ok {
		r.observe(resultCacheHit, 0)
		return c
	}

	// The shared lookup outlives any single caller; Timeout bounds it.
	shared := context.WithoutCancel(ctx)
	v, _, _ := r.group.Do(key, func() (any, error) {
		return r.lookup(shared, key), nil
	})
	return v.(profile.Coordinates)
}

// ResolveProfile returns the profile's stored coordinates when known, and
// otherwise resolves its location text or country.
func (r *Resolver) ResolveProfile(ctx context.Context, p *profile.UserProfile) profile.Coordinates {
	if p.Coordinates.Known() {
		return p.Coordinates
	}
	if p.LocationText != "" {
		if c := r.ResolveCoordinates(ctx, p.LocationText); c.Known() {
			return c
		}
	}
	if c, ok := CountryCentroid(p.Country); ok {
		return c
	}
	return profile.Coordinates{}
}

func (r *Resolver) lookup(ctx context.Context, key string) profile.Coordinates {
	if r.geocoder == nil {
		return r.fallback(key, ErrGeocodeUnavailable)
	}

	lookupCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	start := time.Now()
	c, err := r.geocoder.Geocode(lookupCtx, key)
	elapsed := time.Since(start)
	if err != nil {
		if !errors.Is(err, ErrNoResults) && !errors.Is(err, ErrGeocodeUnavailable) {
			err = errors.Join(ErrGeocodeUnavailable, err)
		}
		return r.fallback(key, err)
	}

	c.Confidence = clampConfidence(c.Confidence)
	r.cache.Set(ctx, key, c)
	r.observe(resultGeocoded, elapsed)
	r.config.Logger.Debug("geocoded location",
		"cell", Cell(c),
		"duration_ms", elapsed.Milliseconds())
	return c
}

// fallback is not cached so a later lookup can still reach the geocoder.
func (r *Resolver) fallback(key string, cause error) profile.Coordinates {
	if c, ok := CountryCentroid(countryOf(key)); ok {
		r.observe(resultFallback, 0)
		r.config.Logger.Warn("geocode failed, using country centroid",
			"error", cause,
			"cell", Cell(c))
		return c
	}
	r.observe(resultUnresolved, 0)
	r.config.Logger.Warn("geocode failed and no country fallback matched", "error", cause)
	return profile.Coordinates{}
}

func (r *Resolver) observe(result string, d time.Duration) {
	if r.config.Metrics == nil {
		return
	}
	r.config.Metrics.IncLookups(result)
	if d > 0 {
		r.config.Metrics.ObserveLookupDuration(d.Seconds())
	}
}

func clampConfidence(c float64) float64 {
	if c <= 0 || c > 1 {
		return 1
	}
	return c
}
