package events

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics names as constants for consistency.
const (
	MetricEventsPublished  = "events_published_total"
	MetricEventsDropped    = "events_dropped_total"
	MetricEventsDelivered  = "events_delivered_total"
	MetricEventConnections = "events_websocket_connections"
)

// Metrics contains Prometheus metrics for event delivery.
type Metrics struct {
	published   *prometheus.CounterVec
	dropped     *prometheus.CounterVec
	delivered   *prometheus.CounterVec
	connections prometheus.Gauge
}

// NewMetrics creates unregistered event metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		published: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: MetricEventsPublished, Help: "Events accepted into the delivery queue"},
			[]string{"type"},
		),
		dropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: MetricEventsDropped, Help: "Events dropped because the queue was full"},
			[]string{"type"},
		),
		delivered: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: MetricEventsDelivered, Help: "Event writes to websocket clients"},
			[]string{"type"},
		),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricEventConnections,
			Help: "Subscribed websocket connections",
		}),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.published, m.dropped, m.delivered, m.connections} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) incPublished(t Type) {
	if m != nil {
		m.published.WithLabelValues(string(t)).Inc()
	}
}

func (m *Metrics) incDropped(t Type) {
	if m != nil {
		m.dropped.WithLabelValues(string(t)).Inc()
	}
}

func (m *Metrics) incDelivered(t Type) {
	if m != nil {
		m.delivered.WithLabelValues(string(t)).Inc()
	}
}

func (m *Metrics) addConnections(delta float64) {
	if m != nil {
		m.connections.Add(delta)
	}
}
