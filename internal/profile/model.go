// Package profile defines the read-only profile and preference model consumed
// by the discovery ranking pipeline, plus the storage-boundary decoding that
// turns loosely-typed preference blobs into validated variants.
package profile

import (
	"strings"
	"time"
)

// HabitLevel is an ordered scale for smoking and drinking.
// The zero value means the level is unknown.
type HabitLevel int

const (
	HabitUnknown HabitLevel = iota
	HabitNone
	HabitOccasional
	HabitSocial
	HabitRegular
)

var habitNames = map[HabitLevel]string{
	HabitNone:       "none",
	HabitOccasional: "occasional",
	HabitSocial:     "social",
	HabitRegular:    "regular",
}

// String returns the canonical lowercase name of the level.
func (h HabitLevel) String() string {
	if name, ok := habitNames[h]; ok {
		return name
	}
	return "unknown"
}

// Known reports whether the level was set.
func (h HabitLevel) Known() bool {
	return h >= HabitNone && h <= HabitRegular
}

// ParseHabitLevel maps stored habit strings onto the ordered scale.
// Legacy yes/no values are accepted: "no" is none, "yes" is regular.
func ParseHabitLevel(s string) HabitLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "no", "never", "non-smoker", "non_smoker":
		return HabitNone
	case "occasional", "occasionally", "rarely", "sometimes":
		return HabitOccasional
	case "social", "socially":
		return HabitSocial
	case "regular", "regularly", "yes", "often", "daily":
		return HabitRegular
	default:
		return HabitUnknown
	}
}

// ChildrenStatus describes a profile's stance on children.
type ChildrenStatus string

const (
	ChildrenUnknown     ChildrenStatus = ""
	ChildrenUndecided   ChildrenStatus = "undecided"
	ChildrenWants       ChildrenStatus = "wants"
	ChildrenDoesNotWant ChildrenStatus = "does_not_want"
	ChildrenHas         ChildrenStatus = "has"
)

// ParseChildrenStatus normalizes stored children values.
func ParseChildrenStatus(s string) ChildrenStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "wants", "want", "want_children", "yes":
		return ChildrenWants
	case "does_not_want", "dont_want", "no", "doesnt_want":
		return ChildrenDoesNotWant
	case "has", "have", "has_children":
		return ChildrenHas
	case "undecided", "not_sure", "maybe", "open":
		return ChildrenUndecided
	default:
		return ChildrenUnknown
	}
}

// Coordinates is a resolved geographic point.
// Confidence is 1 for exact geocoder hits and lower for fallbacks; 0 means
// the location could not be resolved at all.
type Coordinates struct {
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	Confidence float64 `json:"confidence"`
}

// Known reports whether the coordinates carry any location information.
func (c Coordinates) Known() bool {
	return c.Confidence > 0
}

// UserProfile holds the attributes of a user that ranking reads.
type UserProfile struct {
	ID string `json:"id" db:"id"`

	// Categorical attributes
	Gender           string         `json:"gender,omitempty"`
	Ethnicity        string         `json:"ethnicity,omitempty"`
	Religion         string         `json:"religion,omitempty"`
	BodyType         string         `json:"body_type,omitempty"`
	Smoking          HabitLevel     `json:"smoking,omitempty"`
	Drinking         HabitLevel     `json:"drinking,omitempty"`
	Children         ChildrenStatus `json:"children,omitempty"`
	RelationshipGoal string         `json:"relationship_goal,omitempty"`
	Education        string         `json:"education,omitempty"`

	// Textual attributes
	Bio        string   `json:"bio,omitempty"`
	Profession string   `json:"profession,omitempty"`
	Interests  []string `json:"interests,omitempty"`

	HasPhoto    bool      `json:"has_photo"`
	DateOfBirth time.Time `json:"date_of_birth"`
	HeightCm    int       `json:"height_cm,omitempty"`

	// Location
	LocationText string      `json:"location_text,omitempty"`
	Country      string      `json:"country,omitempty"`
	Coordinates  Coordinates `json:"coordinates"`

	// Activity
	LastActiveAt    time.Time `json:"last_active_at"`
	IsOnline        bool      `json:"is_online"`
	AcceptsMessages bool      `json:"accepts_messages"`

	// Status flags
	IsSuspended         bool       `json:"is_suspended"`
	SuspensionExpiresAt *time.Time `json:"suspension_expires_at,omitempty"`
	ProfileHidden       bool       `json:"profile_hidden"`
	Activated           bool       `json:"activated"`

	// HasPreferences is set when the profile owner saved a preferences blob.
	HasPreferences bool `json:"has_preferences"`
}

// AgeAt returns the profile's age in whole years at the given instant.
// Returns -1 when the date of birth is unknown.
func (p *UserProfile) AgeAt(now time.Time) int {
	if p.DateOfBirth.IsZero() {
		return -1
	}
	dob := p.DateOfBirth.UTC()
	now = now.UTC()
	age := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		age--
	}
	if age < 0 {
		return -1
	}
	return age
}

// SuspendedAt reports whether a suspension is in force at the given instant.
// A suspension with no expiry is treated as indefinite.
func (p *UserProfile) SuspendedAt(now time.Time) bool {
	if !p.IsSuspended {
		return false
	}
	if p.SuspensionExpiresAt == nil {
		return true
	}
	return p.SuspensionExpiresAt.After(now)
}

// Discoverable reports whether the profile may appear in anyone's pool.
func (p *UserProfile) Discoverable(now time.Time) bool {
	return p.Activated && !p.ProfileHidden && !p.SuspendedAt(now)
}

// Attribute returns the normalized value of a categorical dimension, or ""
// if the profile does not carry it.
func (p *UserProfile) Attribute(d Dimension) string {
	var v string
	switch d {
	case DimensionGender:
		v = p.Gender
	case DimensionEthnicity:
		v = p.Ethnicity
	case DimensionReligion:
		v = p.Religion
	case DimensionBodyType:
		v = p.BodyType
	case DimensionSmoking:
		if p.Smoking.Known() {
			v = p.Smoking.String()
		}
	case DimensionDrinking:
		if p.Drinking.Known() {
			v = p.Drinking.String()
		}
	case DimensionChildren:
		v = string(p.Children)
	case DimensionRelationshipGoal:
		v = p.RelationshipGoal
	case DimensionEducation:
		v = p.Education
	}
	return Normalize(v)
}

// Normalize lowercases and trims a categorical value for exact comparison.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Dimension names a categorical profile attribute.
type Dimension string

const (
	DimensionGender           Dimension = "gender"
	DimensionEthnicity        Dimension = "ethnicity"
	DimensionReligion         Dimension = "religion"
	DimensionBodyType         Dimension = "body_type"
	DimensionSmoking          Dimension = "smoking"
	DimensionDrinking         Dimension = "drinking"
	DimensionChildren         Dimension = "children"
	DimensionRelationshipGoal Dimension = "relationship_goal"
	DimensionEducation        Dimension = "education"
)

// CategoricalDimensions lists the lifestyle dimensions compared for
// categorical similarity. Gender is not compared.
var CategoricalDimensions = []Dimension{
	DimensionEthnicity,
	DimensionReligion,
	DimensionBodyType,
	DimensionSmoking,
	DimensionDrinking,
	DimensionChildren,
	DimensionRelationshipGoal,
	DimensionEducation,
}

// ParseDimension maps a stored dimension name to a Dimension.
// The second return is false for names that are not categorical dimensions.
func ParseDimension(s string) (Dimension, bool) {
	d := Dimension(Normalize(strings.ReplaceAll(s, "-", "_")))
	switch d {
	case DimensionGender, DimensionEthnicity, DimensionReligion, DimensionBodyType,
		DimensionSmoking, DimensionDrinking, DimensionChildren,
		DimensionRelationshipGoal, DimensionEducation:
		return d, true
	case "bodytype":
		return DimensionBodyType, true
	case "relationship", "relationshipgoal", "goal":
		return DimensionRelationshipGoal, true
	}
	return "", false
}
