// Package content scores how well a candidate's own attributes fit the
// viewing user. It blends categorical Jaccard similarity, TF-IDF cosine
// over bios, numeric feature cosine and ranked preference alignment.
package content

import (
	"time"

	"github.com/onnwee/swipestack/internal/profile"
	"github.com/onnwee/swipestack/internal/ranking"
)

// Result holds the content sub-scores, each in [0, 1].
type Result struct {
	Jaccard       float64
	TFIDF         float64
	NumericCosine float64
	Preference    float64
	Combined      float64
}

// Scorer builds per-viewer content scorers.
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

// ViewerScorer scores candidates for one viewer. The viewer-side features
// are computed once; it is immutable and safe for concurrent use.
type ViewerScorer struct {
	weights *ranking.Weights
	viewer  *profile.UserProfile
	now     time.Time
	textTF  map[string]float64
	numeric numericFeatures
	align   alignment
}

// ForViewer precomputes the viewer side of every comparison.
func (s *Scorer) ForViewer(viewer *profile.UserProfile, prefs profile.Preferences, now time.Time) *ViewerScorer {
	return &ViewerScorer{
		weights: s.weights,
		viewer:  viewer,
		now:     now,
		textTF:  termFrequency(tokenize(profileText(viewer))),
		numeric: extractNumeric(viewer, now, s.weights.Context),
		align: alignment{
			viewer:     viewer,
			prefs:      prefs,
			viewerAge:  viewer.AgeAt(now),
			rankWeight: s.weights.PriorityWeights(),
			neutral:    s.weights.Content.NeutralPreference,
		},
	}
}

// Score rates one candidate. distanceKm is nil when either location is
// unknown.
func (v *ViewerScorer) Score(candidate *profile.UserProfile, distanceKm *float64) Result {
	w := v.weights.Content

	var r Result
	if j, ok := CategoricalJaccard(v.viewer, candidate); ok {
		r.Jaccard = j
	} else {
		r.Jaccard = clamp01(w.NeutralJaccard)
	}
	r.TFIDF = tfidfCosine(v.textTF, termFrequency(tokenize(profileText(candidate))))
	r.NumericCosine = numericCosine(v.numeric, extractNumeric(candidate, v.now, v.weights.Context))
	r.Preference = v.align.score(candidate, candidate.AgeAt(v.now), distanceKm)

	r.Combined = clamp01(w.Jaccard*r.Jaccard + w.TFIDF*r.TFIDF +
		w.NumericCosine*r.NumericCosine + w.Preference*r.Preference)
	return r
}
