package content

import (
	"github.com/onnwee/swipestack/internal/profile"
)

// CategoricalJaccard compares the categorical dimensions present on both
// profiles as "dimension=value" tokens and returns |A∩B| / |A∪B|.
// The second return is false when no dimension is present on both sides.
func CategoricalJaccard(a, b *profile.UserProfile) (float64, bool) {
	var shared, union int
	for _, d := range profile.CategoricalDimensions {
		va, vb := a.Attribute(d), b.Attribute(d)
		if va == "" || vb == "" {
			continue
		}
		if va == vb {
			shared++
			union++
		} else {
			// Two distinct tokens.
			union += 2
		}
	}
	if union == 0 {
		return 0, false
	}
	return float64(shared) / float64(union), true
}

// setJaccard is the Jaccard index of two normalized string sets.
// The second return is false when either set is empty.
func setJaccard(a, b []string) (float64, bool) {
	sa := toSet(a)
	sb := toSet(b)
	if len(sa) == 0 || len(sb) == 0 {
		return 0, false
	}
	inter := 0
	for v := range sa {
		if _, ok := sb[v]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(sa)+len(sb)-inter), true
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if n := profile.Normalize(v); n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}
