package content

import (
	"math"

	"github.com/onnwee/swipestack/internal/geo"
	"github.com/onnwee/swipestack/internal/profile"
)

const (
	// ageDecayYears is the age gap at which age compatibility reaches 0.
	ageDecayYears = 10.0
	// habitSpan is the largest gap between two known habit levels.
	habitSpan = float64(profile.HabitRegular - profile.HabitNone)
	unknown   = 0.5
)

// alignment computes the weighted preference alignment for one candidate.
type alignment struct {
	viewer     *profile.UserProfile
	prefs      profile.Preferences
	viewerAge  int
	rankWeight []float64
	neutral    float64
}

// score walks the viewer's priorities in rank order. Unknown priorities
// are skipped and the sum is divided by the weight actually used. An empty
// or entirely unknown priority list yields the neutral value.
func (a *alignment) score(c *profile.UserProfile, candidateAge int, distanceKm *float64) float64 {
	var sum, used float64
	rank := 0
	for _, pr := range a.prefs.Priorities {
		if pr.Kind == profile.PriorityUnknown {
			continue
		}
		if rank >= len(a.rankWeight) || rank >= profile.MaxPriorities {
			break
		}
		w := a.rankWeight[rank]
		rank++
		sum += w * a.compatibility(pr.Kind, c, candidateAge, distanceKm)
		used += w
	}
	if used == 0 {
		return clamp01(a.neutral)
	}
	return clamp01(sum / used)
}

func (a *alignment) compatibility(kind profile.PriorityKind, c *profile.UserProfile, candidateAge int, distanceKm *float64) float64 {
	switch kind {
	case profile.PriorityAge:
		return a.ageCompatibility(candidateAge)
	case profile.PriorityDistance:
		return a.distanceCompatibility(c, distanceKm)
	case profile.PriorityInterests:
		if j, ok := setJaccard(a.viewer.Interests, c.Interests); ok {
			return j
		}
		return unknown
	case profile.PriorityReligion:
		return a.attributeCompatibility(profile.DimensionReligion, c)
	case profile.PriorityEthnicity:
		return a.attributeCompatibility(profile.DimensionEthnicity, c)
	case profile.PriorityBodyType:
		return a.attributeCompatibility(profile.DimensionBodyType, c)
	case profile.PriorityEducation:
		return a.attributeCompatibility(profile.DimensionEducation, c)
	case profile.PriorityRelationshipGoal:
		return a.attributeCompatibility(profile.DimensionRelationshipGoal, c)
	case profile.PriorityLifestyle:
		return a.lifestyleCompatibility(c)
	case profile.PriorityChildren:
		return a.childrenCompatibility(c)
	}
	return unknown
}

func (a *alignment) ageCompatibility(candidateAge int) float64 {
	if candidateAge < 0 {
		return unknown
	}
	age := float64(candidateAge)
	lo, hi := a.prefs.MinAge, a.prefs.MaxAge
	if lo > 0 || hi > 0 {
		var gap float64
		switch {
		case lo > 0 && candidateAge < lo:
			gap = float64(lo) - age
		case hi > 0 && candidateAge > hi:
			gap = age - float64(hi)
		default:
			return 1
		}
		return clamp01(1 - gap/ageDecayYears)
	}
	if a.viewerAge < 0 {
		return unknown
	}
	return clamp01(1 - math.Abs(age-float64(a.viewerAge))/ageDecayYears)
}

func (a *alignment) distanceCompatibility(c *profile.UserProfile, distanceKm *float64) float64 {
	limit := geo.LimitKm(a.prefs.Distance)
	switch limit.Kind {
	case profile.DistanceUnlimited:
		return 1
	case profile.DistanceCountry:
		if a.viewer.Country == "" || c.Country == "" {
			return unknown
		}
		if geo.SameCountry(a.viewer.Country, c.Country) {
			return 1
		}
		return 0
	}
	if distanceKm == nil {
		return unknown
	}
	if limit.Value <= 0 {
		if *distanceKm <= 0 {
			return 1
		}
		return 0
	}
	return clamp01(1 - *distanceKm/limit.Value)
}

func (a *alignment) attributeCompatibility(d profile.Dimension, c *profile.UserProfile) float64 {
	va, vc := a.viewer.Attribute(d), c.Attribute(d)
	if va == "" || vc == "" {
		return unknown
	}
	if va == vc {
		return 1
	}
	return 0
}

func (a *alignment) lifestyleCompatibility(c *profile.UserProfile) float64 {
	var sum float64
	n := 0
	for _, pair := range [][2]profile.HabitLevel{
		{a.viewer.Smoking, c.Smoking},
		{a.viewer.Drinking, c.Drinking},
	} {
		if !pair[0].Known() || !pair[1].Known() {
			continue
		}
		sum += 1 - math.Abs(float64(pair[0]-pair[1]))/habitSpan
		n++
	}
	if n == 0 {
		return unknown
	}
	return clamp01(sum / float64(n))
}

func (a *alignment) childrenCompatibility(c *profile.UserProfile) float64 {
	if c.Children == profile.ChildrenUnknown {
		return unknown
	}
	if a.prefs.ChildrenPreference == profile.ChildrenPreferenceAny {
		return 1
	}
	if a.prefs.ChildrenPreference.CompatibleWith(c.Children) {
		return 1
	}
	return 0
}
