package swipe

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelsMatch(m, labels) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func labelsMatch(m *dto.Metric, want map[string]string) bool {
	got := make(map[string]string, len(m.GetLabel()))
	for _, lp := range m.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

func TestMetrics_Register(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics()
	if err := m.Register(reg); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := m.Register(reg); err == nil {
		t.Error("second Register() should fail with duplicate collectors")
	}
}

func TestMetrics_RecordedAndUndone(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m := NewMetrics()
	if err := m.Register(reg); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	store := NewInMemoryStore(func() string { return "match-1" })
	h := NewHistory(store, store, HistoryConfig{Metrics: m})

	if _, err := h.Record(ctx, "b", ModeDating, "a", ActionLike); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if _, err := h.Record(ctx, "a", ModeDating, "b", ActionLike); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if _, err := h.Undo(ctx, "a", ModeDating); err != nil {
		t.Fatalf("Undo() error = %v", err)
	}
	if _, err := h.Undo(ctx, "a", ModeDating); err == nil {
		t.Fatal("Undo() on empty history should fail")
	}

	tests := []struct {
		name   string
		metric string
		labels map[string]string
		want   float64
	}{
		{"likes", MetricSwipesRecorded, map[string]string{"mode": "dating", "action": "like"}, 2},
		{"undone", MetricSwipeUndos, map[string]string{"mode": "dating", "result": "undone"}, 1},
		{"empty", MetricSwipeUndos, map[string]string{"mode": "dating", "result": "empty"}, 1},
		{"match created", MetricMatches, map[string]string{"mode": "dating", "event": "created"}, 1},
		{"match retracted", MetricMatches, map[string]string{"mode": "dating", "event": "retracted"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := counterValue(t, reg, tt.metric, tt.labels); got != tt.want {
				t.Errorf("%s%v = %v, want %v", tt.metric, tt.labels, got, tt.want)
			}
		})
	}
}
