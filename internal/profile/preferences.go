package profile

import "strings"

// DistanceKind distinguishes a numeric distance bound from the sentinels.
type DistanceKind int

const (
	DistanceUnlimited DistanceKind = iota
	DistanceLimited
	DistanceCountry
)

// DistanceUnit is the unit a distance bound was stored in.
type DistanceUnit string

const (
	UnitKilometers DistanceUnit = "km"
	UnitMiles      DistanceUnit = "mi"
)

// ParseDistanceUnit accepts the common spellings of km and miles.
// Unrecognized units default to miles, the unit the profile editor stores.
func ParseDistanceUnit(s string) DistanceUnit {
	switch Normalize(s) {
	case "km", "kms", "kilometer", "kilometers", "kilometre", "kilometres":
		return UnitKilometers
	default:
		return UnitMiles
	}
}

// DistanceLimit is a user's maximum distance preference.
// The zero value is the unlimited sentinel.
type DistanceLimit struct {
	Kind  DistanceKind `json:"kind"`
	Value float64      `json:"value,omitempty"`
	Unit  DistanceUnit `json:"unit,omitempty"`
}

// Unlimited returns the unlimited distance sentinel.
func Unlimited() DistanceLimit { return DistanceLimit{Kind: DistanceUnlimited} }

// CountryOnly returns the country-level distance sentinel.
func CountryOnly() DistanceLimit { return DistanceLimit{Kind: DistanceCountry} }

// Within returns a numeric distance bound.
func Within(value float64, unit DistanceUnit) DistanceLimit {
	return DistanceLimit{Kind: DistanceLimited, Value: value, Unit: unit}
}

// DealBreakerKind tags the variants of a deal-breaker entry.
type DealBreakerKind int

const (
	// DealBreakerUnknown holds entries that could not be interpreted.
	// They are kept for operators but never exclude anyone.
	DealBreakerUnknown DealBreakerKind = iota
	// DealBreakerAttribute excludes candidates whose attribute equals Value.
	DealBreakerAttribute
	// DealBreakerHabit excludes candidates with any known level above none
	// on the smoking or drinking dimension.
	DealBreakerHabit
	// DealBreakerChildren turns on children-preference enforcement.
	DealBreakerChildren
)

// DealBreaker is one validated entry of a user's deal-breaker set.
type DealBreaker struct {
	Kind      DealBreakerKind `json:"kind"`
	Dimension Dimension       `json:"dimension,omitempty"`
	Value     string          `json:"value,omitempty"`
	Raw       string          `json:"raw,omitempty"`
}

// Excludes reports whether the candidate violates this deal-breaker.
func (d DealBreaker) Excludes(candidate *UserProfile) bool {
	switch d.Kind {
	case DealBreakerAttribute:
		v := candidate.Attribute(d.Dimension)
		return v != "" && v == d.Value
	case DealBreakerHabit:
		var level HabitLevel
		if d.Dimension == DimensionDrinking {
			level = candidate.Drinking
		} else {
			level = candidate.Smoking
		}
		return level.Known() && level > HabitNone
	default:
		return false
	}
}

// ChildrenPreference is what a user wants from a partner regarding children.
type ChildrenPreference string

const (
	ChildrenPreferenceAny         ChildrenPreference = ""
	ChildrenPreferenceWants       ChildrenPreference = "wants"
	ChildrenPreferenceDoesNotWant ChildrenPreference = "does_not_want"
	ChildrenPreferenceOpen        ChildrenPreference = "open"
)

// ParseChildrenPreference normalizes stored children preference values.
func ParseChildrenPreference(s string) ChildrenPreference {
	switch Normalize(s) {
	case "wants", "want", "yes", "wants_children":
		return ChildrenPreferenceWants
	case "does_not_want", "no", "dont_want", "doesnt_want":
		return ChildrenPreferenceDoesNotWant
	case "open", "either", "flexible", "undecided":
		return ChildrenPreferenceOpen
	default:
		return ChildrenPreferenceAny
	}
}

// CompatibleWith reports whether a candidate's children status satisfies
// this preference. Undecided and unknown statuses never satisfy it.
func (c ChildrenPreference) CompatibleWith(status ChildrenStatus) bool {
	if status == ChildrenUnknown || status == ChildrenUndecided {
		return false
	}
	switch c {
	case ChildrenPreferenceWants:
		return status == ChildrenWants || status == ChildrenHas
	case ChildrenPreferenceDoesNotWant:
		return status == ChildrenDoesNotWant
	default:
		return true
	}
}

// PriorityKind tags the dimensions a user can rank as matching priorities.
type PriorityKind string

const (
	PriorityUnknown          PriorityKind = "unknown"
	PriorityAge              PriorityKind = "age"
	PriorityDistance         PriorityKind = "distance"
	PriorityInterests        PriorityKind = "interests"
	PriorityReligion         PriorityKind = "religion"
	PriorityEthnicity        PriorityKind = "ethnicity"
	PriorityBodyType         PriorityKind = "body_type"
	PriorityEducation        PriorityKind = "education"
	PriorityLifestyle        PriorityKind = "lifestyle"
	PriorityChildren         PriorityKind = "children"
	PriorityRelationshipGoal PriorityKind = "relationship_goal"
)

// Priority is one entry of the ranked matching-priority list.
type Priority struct {
	Kind PriorityKind `json:"kind"`
	Raw  string       `json:"raw,omitempty"`
}

// MaxPriorities is the number of ranked priorities a user may declare.
const MaxPriorities = 3

// ParsePriority maps a stored priority name to its variant.
func ParsePriority(s string) Priority {
	raw := strings.TrimSpace(s)
	switch Normalize(strings.ReplaceAll(raw, "-", "_")) {
	case "age":
		return Priority{Kind: PriorityAge}
	case "distance", "location", "proximity":
		return Priority{Kind: PriorityDistance}
	case "interests", "hobbies", "shared_interests":
		return Priority{Kind: PriorityInterests}
	case "religion", "faith":
		return Priority{Kind: PriorityReligion}
	case "ethnicity":
		return Priority{Kind: PriorityEthnicity}
	case "body_type", "bodytype", "appearance":
		return Priority{Kind: PriorityBodyType}
	case "education":
		return Priority{Kind: PriorityEducation}
	case "lifestyle", "habits", "smoking", "drinking":
		return Priority{Kind: PriorityLifestyle}
	case "children", "kids", "family":
		return Priority{Kind: PriorityChildren}
	case "relationship_goal", "relationship", "goals":
		return Priority{Kind: PriorityRelationshipGoal}
	default:
		return Priority{Kind: PriorityUnknown, Raw: raw}
	}
}

// Preferences is an immutable snapshot of a user's matching preferences.
// Zero values are permissive: unset age bounds, an unlimited distance and
// unknown tolerances exclude nobody.
type Preferences struct {
	MinAge             int                `json:"min_age,omitempty"`
	MaxAge             int                `json:"max_age,omitempty"`
	Distance           DistanceLimit      `json:"distance"`
	DealBreakers       []DealBreaker      `json:"deal_breakers,omitempty"`
	SmokingTolerance   HabitLevel         `json:"smoking_tolerance,omitempty"`
	DrinkingTolerance  HabitLevel         `json:"drinking_tolerance,omitempty"`
	ChildrenPreference ChildrenPreference `json:"children_preference,omitempty"`
	Priorities         []Priority         `json:"priorities,omitempty"`
}

// ChildrenIsDealBreaker reports whether the user marked children
// compatibility as a deal-breaker.
func (p Preferences) ChildrenIsDealBreaker() bool {
	for _, d := range p.DealBreakers {
		if d.Kind == DealBreakerChildren {
			return true
		}
	}
	return false
}

// PriorityKinds returns the known priority kinds in rank order.
func (p Preferences) PriorityKinds() []PriorityKind {
	kinds := make([]PriorityKind, 0, len(p.Priorities))
	for _, pr := range p.Priorities {
		if pr.Kind != PriorityUnknown {
			kinds = append(kinds, pr.Kind)
		}
	}
	return kinds
}
