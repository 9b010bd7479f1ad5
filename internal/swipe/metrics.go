package swipe

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics names as constants for consistency.
const (
	MetricSwipesRecorded = "swipes_recorded_total"
	MetricSwipeUndos     = "swipe_undos_total"
	MetricMatches        = "swipe_matches_total"
)

// Undo result labels.
const (
	undoResultUndone = "undone"
	undoResultEmpty  = "empty"
	undoResultError  = "error"
)

// Match event labels.
const (
	matchCreated   = "created"
	matchRetracted = "retracted"
)

// Metrics contains Prometheus metrics for swipe history.
type Metrics struct {
	recorded *prometheus.CounterVec
	undos    *prometheus.CounterVec
	matches  *prometheus.CounterVec
}

// NewMetrics creates unregistered swipe metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		recorded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricSwipesRecorded,
				Help: "Swipes recorded by mode and action",
			},
			[]string{"mode", "action"},
		),
		undos: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricSwipeUndos,
				Help: "Undo attempts by mode and result (undone, empty, error)",
			},
			[]string{"mode", "result"},
		),
		matches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricMatches,
				Help: "Matches created or retracted by swipes",
			},
			[]string{"mode", "event"},
		),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.recorded, m.undos, m.matches} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) incRecorded(mode Mode, action Action) {
	if m != nil {
		m.recorded.WithLabelValues(string(mode), string(action)).Inc()
	}
}

func (m *Metrics) incUndo(mode Mode, result string) {
	if m != nil {
		m.undos.WithLabelValues(string(mode), result).Inc()
	}
}

func (m *Metrics) incMatch(mode Mode, event string) {
	if m != nil {
		m.matches.WithLabelValues(string(mode), event).Inc()
	}
}
