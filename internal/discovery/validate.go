package discovery

import (
	"errors"
	"fmt"
	"math"

	"github.com/onnwee/swipestack/internal/ranking"
)

var errInvalidScore = errors.New("invalid score")

// validateBreakdown rejects sub-scores outside [0, 1] or not finite.
func validateBreakdown(b ranking.Breakdown) error {
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"content", b.Content},
		{"collaborative", b.Collaborative},
		{"context", b.Context},
		{"jaccard", b.Jaccard},
		{"tfidf", b.TFIDF},
		{"numeric_cosine", b.NumericCosine},
		{"preference", b.Preference},
		{"matrix", b.Matrix},
		{"traditional", b.Traditional},
		{"activity", b.Activity},
		{"online_boost", b.OnlineBoost},
		{"completeness", b.Completeness},
	} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) || f.v < 0 || f.v > 1 {
			return fmt.Errorf("%w: %s = %v", errInvalidScore, f.name, f.v)
		}
	}
	return nil
}
