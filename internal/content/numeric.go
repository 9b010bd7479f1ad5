package content

import (
	"math"
	"time"

	"github.com/onnwee/swipestack/internal/freshness"
	"github.com/onnwee/swipestack/internal/profile"
	"github.com/onnwee/swipestack/internal/ranking"
)

// Normalization ranges for numeric features.
const (
	minAge      = 18.0
	maxAge      = 80.0
	minHeightCm = 140.0
	maxHeightCm = 210.0
)

// numericFeatures is a profile's numeric vector normalized to [0, 1].
// present marks which entries are known.
type numericFeatures struct {
	values  [4]float64
	present [4]bool
}

func extractNumeric(p *profile.UserProfile, now time.Time, ctx ranking.ContextWeights) numericFeatures {
	var f numericFeatures
	if age := p.AgeAt(now); age >= 0 {
		f.values[0] = scale(float64(age), minAge, maxAge)
		f.present[0] = true
	}
	if p.HeightCm > 0 {
		f.values[1] = scale(float64(p.HeightCm), minHeightCm, maxHeightCm)
		f.present[1] = true
	}
	if !p.LastActiveAt.IsZero() {
		f.values[2] = freshness.ActivityDecay(p.LastActiveAt, now, ctx.ActivityHalfLifeHours, ctx.ActivityFloor)
		f.present[2] = true
	}
	f.values[3] = freshness.Completeness(p)
	f.present[3] = true
	return f
}

// numericCosine is the cosine of the two vectors restricted to the
// features known on both sides. A zero vector yields 0.
func numericCosine(a, b numericFeatures) float64 {
	var dot, normA, normB float64
	for i := range a.values {
		if !a.present[i] || !b.present[i] {
			continue
		}
		dot += a.values[i] * b.values[i]
		normA += a.values[i] * a.values[i]
		normB += b.values[i] * b.values[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return clamp01(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

func scale(v, lo, hi float64) float64 {
	return clamp01((v - lo) / (hi - lo))
}

func clamp01(v float64) float64 { return ranking.Clamp01(v) }
