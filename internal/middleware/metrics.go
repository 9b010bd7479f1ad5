package middleware

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metric names exported by the HTTP edge.
const (
	MetricHTTPRequestsTotal     = "http_requests_total"
	MetricHTTPRequestDuration   = "http_request_duration_seconds"
	MetricHTTPResponseSizeBytes = "http_response_size_bytes"
	MetricRateLimitRequests     = "rate_limit_requests_total"
	MetricRateLimitBlocked      = "rate_limit_blocked_total"
	MetricRateLimitRedisErrors  = "rate_limit_redis_errors_total"
	MetricIdempotencyOutcomes   = "idempotency_outcomes_total"
)

// Idempotency outcomes, used as the "outcome" label.
const (
	IdempotencyStored     = "stored"
	IdempotencyReplayed   = "replayed"
	IdempotencyRejected   = "rejected"
	IdempotencyStoreError = "store_error"
)

var routeLabels = []string{"method", "path", "status"}

// Metrics holds the collectors for the middleware in this package. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	requests     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	responseSize *prometheus.HistogramVec

	limitChecks  *prometheus.CounterVec
	limitBlocked *prometheus.CounterVec
	limitErrors  prometheus.Counter

	idempotency *prometheus.CounterVec
}

// NewMetrics creates unregistered collectors; call Register to expose them.
func NewMetrics() *Metrics {
	return &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricHTTPRequestsTotal,
			Help: "HTTP requests served, by route and status",
		}, routeLabels),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricHTTPRequestDuration,
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
		}, routeLabels),
		responseSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricHTTPResponseSizeBytes,
			Help:    "HTTP response body size in bytes",
			Buckets: prometheus.ExponentialBuckets(64, 4, 8),
		}, routeLabels),
		limitChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricRateLimitRequests,
			Help: "Rate limit checks by endpoint and key type",
		}, []string{"endpoint", "key_type"}),
		limitBlocked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricRateLimitBlocked,
			Help: "Requests rejected by the rate limiter",
		}, []string{"endpoint", "key_type"}),
		limitErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricRateLimitRedisErrors,
			Help: "Redis errors during rate limiting; each one let a request through",
		}),
		idempotency: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricIdempotencyOutcomes,
			Help: "Requests carrying an Idempotency-Key, by route and outcome",
		}, []string{"route", "outcome"}),
	}
}

// Register registers all collectors with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.requests, m.duration, m.responseSize,
		m.limitChecks, m.limitBlocked, m.limitErrors,
		m.idempotency,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ObserveHTTPRequest records one served request. path must already be
// normalized.
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, elapsed time.Duration, responseSize int64) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{"method": method, "path": path, "status": strconv.Itoa(status)}
	m.requests.With(labels).Inc()
	m.duration.With(labels).Observe(elapsed.Seconds())
	m.responseSize.With(labels).Observe(float64(responseSize))
}

// IncRateLimitRequests counts a rate limit check. keyType is "user" or
// "ip".
func (m *Metrics) IncRateLimitRequests(endpoint, keyType string) {
	if m != nil {
		m.limitChecks.WithLabelValues(endpoint, keyType).Inc()
	}
}

// IncRateLimitBlocked counts a request rejected by the rate limiter.
func (m *Metrics) IncRateLimitBlocked(endpoint, keyType string) {
	if m != nil {
		m.limitBlocked.WithLabelValues(endpoint, keyType).Inc()
	}
}

// IncRateLimitRedisErrors counts fail-open events.
func (m *Metrics) IncRateLimitRedisErrors() {
	if m != nil {
		m.limitErrors.Inc()
	}
}

// IncIdempotency counts an Idempotency-Key request by outcome.
func (m *Metrics) IncIdempotency(route, outcome string) {
	if m != nil {
		m.idempotency.WithLabelValues(route, outcome).Inc()
	}
}
