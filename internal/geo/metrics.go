package geo

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics names as constants for consistency.
const (
	MetricGeocodeLookups        = "geocode_lookups_total"
	MetricGeocodeLookupDuration = "geocode_lookup_duration_seconds"
)

// Lookup result labels.
const (
	resultCacheHit   = "cache_hit"
	resultGeocoded   = "geocoded"
	resultFallback   = "fallback"
	resultUnresolved = "unresolved"
)

// Metrics contains Prometheus metrics for coordinate resolution.
type Metrics struct {
	lookups        *prometheus.CounterVec
	lookupDuration prometheus.Histogram
}

// NewMetrics creates unregistered geocoding metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		lookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricGeocodeLookups,
				Help: "Coordinate resolutions by result (cache_hit, geocoded, fallback, unresolved)",
			},
			[]string{"result"},
		),
		lookupDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricGeocodeLookupDuration,
			Help:    "Duration of successful geocoder calls in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.lookups, m.lookupDuration} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncLookups increments the lookup counter for a result.
func (m *Metrics) IncLookups(result string) {
	m.lookups.WithLabelValues(result).Inc()
}

// ObserveLookupDuration records a geocoder call duration.
func (m *Metrics) ObserveLookupDuration(seconds float64) {
	m.lookupDuration.Observe(seconds)
}
