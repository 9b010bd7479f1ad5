// Package collab scores candidates from interaction history. The matrix
// component reads direct history between the viewer and the candidate; the
// traditional component reads how users with overlapping priorities
// reacted to profiles similar to the candidate.
package collab

import (
	"github.com/onnwee/swipestack/internal/content"
	"github.com/onnwee/swipestack/internal/profile"
	"github.com/onnwee/swipestack/internal/ranking"
)

// Result holds the collaborative sub-scores, each in [0, 1]. A component
// without data reports 0.5.
type Result struct {
	Matrix      float64
	Traditional float64
	Blended     float64
	// ColdStart is set when neither component had data and Blended is the
	// configured neutral value.
	ColdStart bool
}

// Scorer computes collaborative scores against a Snapshot.
type Scorer struct {
	weights *ranking.Weights
}

// NewScorer creates a scorer. Nil weights use the defaults.
func NewScorer(weights *ranking.Weights) *Scorer {
	if weights == nil {
		weights = ranking.DefaultWeights()
	}
	return &Scorer{weights: weights}
}

// Score rates candidate for the snapshot's viewer.
//
// Both components are signed in [-1, 1]. The blend
// b = matrix·0.3 + traditional·0.7 is mapped to [0, 1] by (b+1)/2, with a
// cold component contributing 0. When both components are cold the result
// is the neutral value rather than a penalty.
func (s *Scorer) Score(snap *Snapshot, candidate *profile.UserProfile) Result {
	w := s.weights.Collaborative

	m, mOK := snap.matrix(candidate.ID, w.SecondOrderBoost)
	t, tOK := snap.traditional(candidate)

	if !mOK && !tOK {
		n := ranking.Clamp01(w.Neutral)
		return Result{Matrix: n, Traditional: n, Blended: n, ColdStart: true}
	}

	r := Result{Matrix: 0.5, Traditional: 0.5}
	var b float64
	if mOK {
		b += w.Matrix * m
		r.Matrix = toUnit(m)
	}
	if tOK {
		b += w.Traditional * t
		r.Traditional = toUnit(t)
	}
	r.Blended = toUnit(b)
	return r
}

// matrix returns the mean direct signal plus the second-order boost. The
// boost is the share of users the viewer liked who also liked the
// candidate, and applies only when direct history exists.
func (s *Snapshot) matrix(candidateID string, boost float64) (float64, bool) {
	signals := s.direct[candidateID]
	if len(signals) == 0 {
		return 0, false
	}
	var sum float64
	for _, v := range signals {
		sum += v
	}
	m := sum / float64(len(signals))

	if len(s.viewerLiked) > 0 && boost > 0 {
		co := 0
		for _, id := range s.viewerLiked {
			if id != candidateID && s.positive[id][candidateID] {
				co++
			}
		}
		m += boost * float64(co) / float64(len(s.viewerLiked))
	}
	return clampSigned(m), true
}

// traditional is the similarity-weighted mean signal the cohort gave to
// profiles similar to the candidate.
func (s *Snapshot) traditional(candidate *profile.UserProfile) (float64, bool) {
	var num, den float64
	for _, cs := range s.cohort {
		if cs.target.ID == candidate.ID {
			num += cs.signal
			den++
			continue
		}
		sim, ok := content.CategoricalJaccard(cs.target, candidate)
		if !ok || sim == 0 {
			continue
		}
		num += sim * cs.signal
		den += sim
	}
	if den == 0 {
		return 0, false
	}
	return clampSigned(num / den), true
}

func clampSigned(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}

func toUnit(v float64) float64 {
	return ranking.Clamp01((clampSigned(v) + 1) / 2)
}
