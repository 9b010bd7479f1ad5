package ranking

import (
	"math"
	"sort"

	"github.com/onnwee/swipestack/internal/profile"
)

// Clamp01 bounds v to [0, 1]. NaN maps to 0.
func Clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Breakdown explains how a candidate's final score was produced.
type Breakdown struct {
	Content       float64 `json:"content"`
	Collaborative float64 `json:"collaborative"`
	Context       float64 `json:"context"`

	Jaccard       float64 `json:"jaccard"`
	TFIDF         float64 `json:"tfidf"`
	NumericCosine float64 `json:"numeric_cosine"`
	Preference    float64 `json:"preference"`

	Matrix      float64 `json:"matrix"`
	Traditional float64 `json:"traditional"`
	ColdStart   bool    `json:"cold_start"`

	Activity     float64 `json:"activity"`
	OnlineBoost  float64 `json:"online_boost"`
	Completeness float64 `json:"completeness"`

	// DistanceKm is set when both locations were known.
	DistanceKm *float64 `json:"distance_km,omitempty"`
	// Diversified marks candidates promoted by diversity injection.
	Diversified bool `json:"diversified,omitempty"`
}

// Candidate is a scored candidate. It is ephemeral and never persisted.
type Candidate struct {
	ID         string               `json:"candidate_id"`
	Profile    *profile.UserProfile `json:"-"`
	FinalScore float64              `json:"final_score"`
	Breakdown  Breakdown            `json:"breakdown"`
}

// HybridScore combines the three bounded scorer outputs.
// Default: final = 0.40·content + 0.35·collaborative + 0.25·context.
func HybridScore(content, collaborative, context float64, w *Weights) float64 {
	if w == nil {
		w = DefaultWeights()
	}
	return Clamp01(Clamp01(content)*w.Hybrid.Content +
		Clamp01(collaborative)*w.Hybrid.Collaborative +
		Clamp01(context)*w.Hybrid.Context)
}

// Rank computes each candidate's final score from its breakdown and sorts
// descending, breaking ties by candidate id ascending.
func Rank(candidates []Candidate, w *Weights) []Candidate {
	for i := range candidates {
		b := &candidates[i].Breakdown
		candidates[i].FinalScore = HybridScore(b.Content, b.Collaborative, b.Context, w)
	}
	SortCandidates(candidates)
	return candidates
}

// SortCandidates orders by final score descending, then id ascending.
func SortCandidates(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].FinalScore != candidates[j].FinalScore {
			return candidates[i].FinalScore > candidates[j].FinalScore
		}
		return candidates[i].ID < candidates[j].ID
	})
}
