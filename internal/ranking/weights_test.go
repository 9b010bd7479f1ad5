package ranking

import (
	"math"
	"testing"
)

func TestClamp01(t *testing.T) {
	tests := []struct{ in, want float64 }{
		{-0.2, 0}, {0, 0}, {0.5, 0.5}, {1, 1}, {1.7, 1}, {math.NaN(), 0}, {math.Inf(1), 1},
	}
	for _, tt := range tests {
		if got := Clamp01(tt.in); got != tt.want {
			t.Errorf("Clamp01(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestHybridScore(t *testing.T) {
	tests := []struct {
		name                    string
		content, collab, contxt float64
		want                    float64
	}{
		{"all zero", 0, 0, 0, 0},
		{"all one", 1, 1, 1, 1},
		{"content only", 1, 0, 0, 0.40},
		{"collaborative only", 0, 1, 0, 0.35},
		{"context only", 0, 0, 1, 0.25},
		{"mixed", 0.5, 0.5, 0.8, 0.2 + 0.175 + 0.2},
		{"out of range inputs are clamped", 2, -1, 0.5, 0.40 + 0.125},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HybridScore(tt.content, tt.collab, tt.contxt, nil)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("HybridScore() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRank_OrderAndTieBreak(t *testing.T) {
	candidates := []Candidate{
		{ID: "c", Breakdown: Breakdown{Content: 0.5, Collaborative: 0.5, Context: 0.5}},
		{ID: "a", Breakdown: Breakdown{Content: 0.5, Collaborative: 0.5, Context: 0.5}},
		{ID: "z", Breakdown: Breakdown{Content: 0.9, Collaborative: 0.9, Context: 0.9}},
		{ID: "b", Breakdown: Breakdown{Content: 0.1, Collaborative: 0.1, Context: 0.1}},
	}

	ranked := Rank(candidates, DefaultWeights())

	want := []string{"z", "a", "c", "b"}
	for i, id := range want {
		if ranked[i].ID != id {
			t.Fatalf("position %d: got %s, want %s (order %v)", i, ranked[i].ID, id, ids(ranked))
		}
	}
	for _, c := range ranked {
		if c.FinalScore < 0 || c.FinalScore > 1 {
			t.Errorf("%s final score %v out of [0,1]", c.ID, c.FinalScore)
		}
	}
}

func TestRank_Deterministic(t *testing.T) {
	build := func() []Candidate {
		var cs []Candidate
		for _, id := range []string{"q", "w", "e", "r", "t", "y"} {
			cs = append(cs, Candidate{ID: id, Breakdown: Breakdown{Content: 0.3, Collaborative: 0.5, Context: 0.5}})
		}
		return cs
	}
	first := ids(Rank(build(), nil))
	for i := 0; i < 10; i++ {
		if got := ids(Rank(build(), nil)); !equal(got, first) {
			t.Fatalf("run %d order %v differs from %v", i, got, first)
		}
	}
}

func ids(cs []Candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.ID
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
