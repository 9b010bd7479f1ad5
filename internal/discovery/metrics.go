package discovery

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/onnwee/swipestack/internal/filter"
)

// Metrics names as constants for consistency.
const (
	MetricRankingDuration   = "discovery_ranking_duration_seconds"
	MetricFilterRejections  = "discovery_filter_rejections_total"
	MetricCandidatesRanked  = "discovery_candidates_ranked"
	MetricScoringFailures   = "discovery_scoring_failures_total"
	MetricDiversityOutcomes = "discovery_diversity_outcomes_total"
)

// Metrics contains Prometheus metrics for the ranking pipeline.
type Metrics struct {
	duration   *prometheus.HistogramVec
	rejections *prometheus.CounterVec
	ranked     prometheus.Histogram
	failures   prometheus.Counter
	diversity  *prometheus.CounterVec
}

// NewMetrics creates unregistered discovery metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricRankingDuration,
				Help:    "Duration of a ranking pass in seconds",
				Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"mode"},
		),
		rejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricFilterRejections,
				Help: "Candidates removed by each hard filter gate",
			},
			[]string{"gate"},
		),
		ranked: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricCandidatesRanked,
			Help:    "Number of candidates returned per ranking pass",
			Buckets: []float64{0, 1, 5, 10, 20, 50, 100},
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricScoringFailures,
			Help: "Candidates excluded because their data failed to load or scoring produced an invalid value",
		}),
		diversity: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricDiversityOutcomes,
				Help: "Diversity injection outcomes (applied or skip reason)",
			},
			[]string{"outcome"},
		),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.duration, m.rejections, m.ranked, m.failures, m.diversity} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) observeDuration(mode string, seconds float64) {
	if m != nil {
		m.duration.WithLabelValues(mode).Observe(seconds)
	}
}

func (m *Metrics) addRejections(stats filter.Stats) {
	if m == nil {
		return
	}
	for _, g := range filter.Gates {
		if n := stats.Rejected[g]; n > 0 {
			m.rejections.WithLabelValues(string(g)).Add(float64(n))
		}
	}
}

func (m *Metrics) observeRanked(n int) {
	if m != nil {
		m.ranked.Observe(float64(n))
	}
}

func (m *Metrics) incScoringFailures(n int) {
	if m != nil && n > 0 {
		m.failures.Add(float64(n))
	}
}

func (m *Metrics) incDiversity(outcome string) {
	if m != nil {
		m.diversity.WithLabelValues(outcome).Inc()
	}
}
