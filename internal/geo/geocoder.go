package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/onnwee/swipestack/internal/profile"
)

// Geocoding errors.
var (
	// ErrGeocodeUnavailable is returned when the geocoder cannot be reached
	// or fails. The Resolver recovers from it with a fallback.
	ErrGeocodeUnavailable = errors.New("geocode unavailable")
	// ErrNoResults is returned when the geocoder has no match for the query.
	ErrNoResults = errors.New("geocode returned no results")
)

// Geocoder turns free-form location text into coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (profile.Coordinates, error)
}

// GeocoderFunc adapts a function to the Geocoder interface.
type GeocoderFunc func(ctx context.Context, query string) (profile.Coordinates, error)

func (f GeocoderFunc) Geocode(ctx context.Context, query string) (profile.Coordinates, error) {
	return f(ctx, query)
}

// NominatimGeocoder queries a Nominatim-compatible search endpoint.
type NominatimGeocoder struct {
	baseURL   string
	userAgent string
	client    *http.Client
}

// NewNominatimGeocoder creates a geocoder for the given base URL, for
// example https://nominatim.openstreetmap.org. Outgoing requests are traced.
func NewNominatimGeocoder(baseURL, userAgent string) *NominatimGeocoder {
	return &NominatimGeocoder{
		baseURL:   baseURL,
		userAgent: userAgent,
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   10 * time.Second,
		},
	}
}

type nominatimResult struct {
	Lat        string  `json:"lat"`
	Lon        string  `json:"lon"`
	Importance float64 `json:"importance"`
}

// Geocode performs a single search request. Transport and decoding errors
// wrap ErrGeocodeUnavailable.
func (g *NominatimGeocoder) Geocode(ctx context.Context, query string) (profile.Coordinates, error) {
	u := g.baseURL + "/search?" + url.Values{
		"q":      {query},
		"format": {"json"},
		"limit":  {"1"},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return profile.Coordinates{}, fmt.Errorf("%w: %v", ErrGeocodeUnavailable, err)
	}
	if g.userAgent != "" {
		req.Header.Set("User-Agent", g.userAgent)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return profile.Coordinates{}, fmt.Errorf("%w: %v", ErrGeocodeUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return profile.Coordinates{}, fmt.Errorf("%w: status %d", ErrGeocodeUnavailable, resp.StatusCode)
	}

	var results []nominatimResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return profile.Coordinates{}, fmt.Errorf("%w: decode: %v", ErrGeocodeUnavailable, err)
	}
	if len(results) == 0 {
		return profile.Coordinates{}, ErrNoResults
	}

	lat, errLat := strconv.ParseFloat(results[0].Lat, 64)
	lng, errLng := strconv.ParseFloat(results[0].Lon, 64)
	if errLat != nil || errLng != nil {
		return profile.Coordinates{}, fmt.Errorf("%w: bad coordinates %q,%q", ErrGeocodeUnavailable, results[0].Lat, results[0].Lon)
	}
	confidence := results[0].Importance
	if confidence <= 0 || confidence > 1 {
		confidence = 1
	}
	return profile.Coordinates{Lat: lat, Lng: lng, Confidence: confidence}, nil
}
