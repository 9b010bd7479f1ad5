// Package freshness scores candidates on time-sensitive state: how recently
// they were active, whether they are online now, and how complete their
// profile is.
package freshness

import (
	"math"
	"strings"
	"time"

	"github.com/onnwee/swipestack/internal/profile"
	"github.com/onnwee/swipestack/internal/ranking"
)

// Result holds the context-aware sub-scores, each in [0, 1].
type Result struct {
	Activity     float64
	OnlineBoost  float64
	Completeness float64
	Combined     float64
}

// Scorer computes context-aware scores.
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

// Score rates the candidate as seen by viewer at now.
// Combined = 0.4·activity + 0.3·onlineBoost + 0.3·completeness by default.
func (s *Scorer) Score(viewer, candidate *profile.UserProfile, now time.Time) Result {
	w := s.weights.Context
	r := Result{
		Activity:     ActivityDecay(candidate.LastActiveAt, now, w.ActivityHalfLifeHours, w.ActivityFloor),
		OnlineBoost:  s.onlineBoost(viewer, candidate, now),
		Completeness: Completeness(candidate),
	}
	r.Combined = ranking.Clamp01(w.Activity*r.Activity + w.Online*r.OnlineBoost + w.Completeness*r.Completeness)
	return r
}

func (s *Scorer) onlineBoost(viewer, candidate *profile.UserProfile, now time.Time) float64 {
	w := s.weights.Context
	window := time.Duration(w.OnlineWindowMinutes * float64(time.Minute))
	if !IsOnline(candidate, now, window) {
		return 0
	}
	if viewer != nil && viewer.AcceptsMessages && candidate.AcceptsMessages {
		return ranking.Clamp01(w.ChatEligibleBoost)
	}
	return ranking.Clamp01(w.OnlineBoost)
}

// ActivityDecay halves the activity score every halfLifeHours since
// lastActive, never dropping below floor. Unknown activity scores the
// floor; activity in the future scores 1.
func ActivityDecay(lastActive, now time.Time, halfLifeHours, floor float64) float64 {
	floor = ranking.Clamp01(floor)
	if lastActive.IsZero() {
		return floor
	}
	hours := now.Sub(lastActive).Hours()
	if hours <= 0 {
		return 1
	}
	if halfLifeHours <= 0 {
		return floor
	}
	return ranking.Clamp01(floor + (1-floor)*math.Pow(0.5, hours/halfLifeHours))
}

// IsOnline reports whether the profile is flagged online or was active
// within the window.
func IsOnline(p *profile.UserProfile, now time.Time, window time.Duration) bool {
	if p.IsOnline {
		return true
	}
	if p.LastActiveAt.IsZero() || window <= 0 {
		return false
	}
	since := now.Sub(p.LastActiveAt)
	return since >= 0 && since <= window
}

// essentialFields is the number of fields Completeness tracks.
const essentialFields = 5

// Completeness is the share of essential fields that are filled: bio,
// photo, profession, interests and preferences.
func Completeness(p *profile.UserProfile) float64 {
	filled := 0
	if strings.TrimSpace(p.Bio) != "" {
		filled++
	}
	if p.HasPhoto {
		filled++
	}
	if strings.TrimSpace(p.Profession) != "" {
		filled++
	}
	if len(p.Interests) > 0 {
		filled++
	}
	if p.HasPreferences {
		filled++
	}
	return float64(filled) / essentialFields
}
