package filter

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onnwee/swipestack/internal/geo"
	"github.com/onnwee/swipestack/internal/profile"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func born(age int) time.Time { return now.AddDate(-age, 0, -1) }

// northOfOrigin returns coordinates km kilometers due north of (0, 0).
func northOfOrigin(km float64) profile.Coordinates {
	return profile.Coordinates{Lat: km / (geo.EarthRadiusKm * math.Pi / 180), Lng: 0, Confidence: 1}
}

func viewer() *profile.UserProfile {
	return &profile.UserProfile{
		ID:          "viewer",
		DateOfBirth: born(27),
		Coordinates: northOfOrigin(0),
		Activated:   true,
	}
}

func candidate(id string, age int, km float64) *profile.UserProfile {
	return &profile.UserProfile{
		ID:          id,
		DateOfBirth: born(age),
		Coordinates: northOfOrigin(km),
		Activated:   true,
	}
}

func check(t *testing.T, e *Engine, req Request, c *profile.UserProfile) Gate {
	t.Helper()
	gate, _ := e.Check(req, Candidate{Profile: c})
	return gate
}

func TestDistance_MilesConvertedToKm(t *testing.T) {
	e := NewEngine(Config{})
	req := Request{
		Viewer: viewer(),
		Prefs:  profile.Preferences{Distance: profile.Within(25, profile.UnitMiles)},
		Now:    now,
	}

	assert.Equal(t, Gate(""), check(t, e, req, candidate("c40", 27, 40)))
	assert.Equal(t, GateDistance, check(t, e, req, candidate("c41", 27, 41)))
}

func TestDistance_BoundaryInclusive(t *testing.T) {
	e := NewEngine(Config{})
	limit := 25 * geo.KmPerMile
	req := Request{
		Viewer: viewer(),
		Prefs:  profile.Preferences{Distance: profile.Within(25, profile.UnitMiles)},
		Now:    now,
	}

	gate, dist := e.Check(req, Candidate{Profile: candidate("edge", 27, limit)})
	assert.Equal(t, Gate(""), gate)
	require.NotNil(t, dist)
	assert.InDelta(t, limit, *dist, 1e-9)

	assert.Equal(t, GateDistance, check(t, e, req, candidate("beyond", 27, limit+1)))
}

func TestDistance_Sentinels(t *testing.T) {
	e := NewEngine(Config{})
	far := candidate("far", 27, 5000)

	t.Run("unlimited", func(t *testing.T) {
		req := Request{Viewer: viewer(), Prefs: profile.Preferences{Distance: profile.Unlimited()}, Now: now}
		assert.Equal(t, Gate(""), check(t, e, req, far))
	})

	t.Run("country compares country fields", func(t *testing.T) {
		v := viewer()
		v.Country = "US"
		req := Request{Viewer: v, Prefs: profile.Preferences{Distance: profile.CountryOnly()}, Now: now}

		same := candidate("same", 27, 5000)
		same.Country = "United States"
		other := candidate("other", 27, 1)
		other.Country = "Canada"

		assert.Equal(t, Gate(""), check(t, e, req, same))
		assert.Equal(t, GateDistance, check(t, e, req, other))
	})

	t.Run("unknown location passes", func(t *testing.T) {
		req := Request{Viewer: viewer(), Prefs: profile.Preferences{Distance: profile.Within(10, profile.UnitKilometers)}, Now: now}
		c := candidate("nowhere", 27, 0)
		c.Coordinates = profile.Coordinates{}
		gate, dist := e.Check(req, Candidate{Profile: c})
		assert.Equal(t, Gate(""), gate)
		assert.Nil(t, dist)
	})
}

func TestIdentityGate(t *testing.T) {
	e := NewEngine(Config{})
	future := now.Add(24 * time.Hour)
	past := now.Add(-24 * time.Hour)

	tests := []struct {
		name   string
		mutate func(*profile.UserProfile)
		want   Gate
	}{
		{"eligible", func(*profile.UserProfile) {}, ""},
		{"self", func(p *profile.UserProfile) { p.ID = "viewer" }, GateIdentity},
		{"matched", func(p *profile.UserProfile) { p.ID = "matched" }, GateIdentity},
		{"swiped", func(p *profile.UserProfile) { p.ID = "swiped" }, GateIdentity},
		{"blocked", func(p *profile.UserProfile) { p.ID = "blocked" }, GateIdentity},
		{"suspended", func(p *profile.UserProfile) { p.IsSuspended = true; p.SuspensionExpiresAt = &future }, GateIdentity},
		{"suspension expired", func(p *profile.UserProfile) { p.IsSuspended = true; p.SuspensionExpiresAt = &past }, ""},
		{"hidden", func(p *profile.UserProfile) { p.ProfileHidden = true }, GateIdentity},
		{"not activated", func(p *profile.UserProfile) { p.Activated = false }, GateIdentity},
	}
	req := Request{
		Viewer:     viewer(),
		Exclusions: NewExclusions([]string{"matched"}, []string{"swiped"}, []string{"blocked"}),
		Now:        now,
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := candidate("c", 27, 1)
			tt.mutate(c)
			assert.Equal(t, tt.want, check(t, e, req, c))
		})
	}
}

func TestAgeGate(t *testing.T) {
	e := NewEngine(Config{})
	req := Request{Viewer: viewer(), Prefs: profile.Preferences{MinAge: 22, MaxAge: 30}, Now: now}

	for age, want := range map[int]Gate{21: GateAge, 22: "", 30: "", 31: GateAge} {
		assert.Equal(t, want, check(t, e, req, candidate("c", age, 1)), "age %d", age)
	}

	unknown := candidate("c", 25, 1)
	unknown.DateOfBirth = time.Time{}
	assert.Equal(t, GateAge, check(t, e, req, unknown))

	open := Request{Viewer: viewer(), Now: now}
	assert.Equal(t, Gate(""), check(t, e, open, unknown))
}

func TestDealBreakerGate(t *testing.T) {
	prefs := profile.Preferences{DealBreakers: []profile.DealBreaker{
		profile.ParseDealBreaker("religion:atheist"),
		profile.ParseDealBreaker("smoking"),
		profile.ParseDealBreaker("astrology"),
	}}
	e := NewEngine(Config{})
	req := Request{Viewer: viewer(), Prefs: prefs, Now: now}

	atheist := candidate("a", 27, 1)
	atheist.Religion = "Atheist"
	assert.Equal(t, GateDealBreaker, check(t, e, req, atheist))

	smoker := candidate("s", 27, 1)
	smoker.Smoking = profile.HabitOccasional
	assert.Equal(t, GateDealBreaker, check(t, e, req, smoker))

	nonSmoker := candidate("n", 27, 1)
	nonSmoker.Smoking = profile.HabitNone
	nonSmoker.Religion = "buddhist"
	assert.Equal(t, Gate(""), check(t, e, req, nonSmoker))
}

func TestDealBreakerGate_Reciprocal(t *testing.T) {
	v := viewer()
	v.Smoking = profile.HabitRegular
	c := candidate("c", 27, 1)
	candPrefs := &profile.Preferences{DealBreakers: []profile.DealBreaker{profile.ParseDealBreaker("smoking")}}
	req := Request{Viewer: v, Now: now}

	oneWay := NewEngine(Config{})
	gate, _ := oneWay.Check(req, Candidate{Profile: c, Prefs: candPrefs})
	assert.Equal(t, Gate(""), gate)

	reciprocal := NewEngine(Config{Reciprocal: true})
	gate, _ = reciprocal.Check(req, Candidate{Profile: c, Prefs: candPrefs})
	assert.Equal(t, GateDealBreaker, gate)

	gate, _ = reciprocal.Check(req, Candidate{Profile: c})
	assert.Equal(t, Gate(""), gate)
}

func TestHabitsGate(t *testing.T) {
	e := NewEngine(Config{})
	req := Request{
		Viewer: viewer(),
		Prefs:  profile.Preferences{SmokingTolerance: profile.HabitNone, DrinkingTolerance: profile.HabitSocial},
		Now:    now,
	}

	tests := []struct {
		name     string
		smoking  profile.HabitLevel
		drinking profile.HabitLevel
		want     Gate
	}{
		{"within tolerance", profile.HabitNone, profile.HabitSocial, ""},
		{"unknown levels pass", profile.HabitUnknown, profile.HabitUnknown, ""},
		{"smokes occasionally", profile.HabitOccasional, profile.HabitNone, GateHabits},
		{"drinks regularly", profile.HabitNone, profile.HabitRegular, GateHabits},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := candidate("c", 27, 1)
			c.Smoking, c.Drinking = tt.smoking, tt.drinking
			assert.Equal(t, tt.want, check(t, e, req, c))
		})
	}
}

func TestChildrenGate(t *testing.T) {
	e := NewEngine(Config{})
	enforced := profile.Preferences{
		ChildrenPreference: profile.ChildrenPreferenceWants,
		DealBreakers:       []profile.DealBreaker{profile.ParseDealBreaker("children")},
	}
	advisory := profile.Preferences{ChildrenPreference: profile.ChildrenPreferenceWants}

	undecided := candidate("u", 27, 1)
	undecided.Children = profile.ChildrenUndecided
	wants := candidate("w", 27, 1)
	wants.Children = profile.ChildrenWants

	assert.Equal(t, GateChildren, check(t, e, Request{Viewer: viewer(), Prefs: enforced, Now: now}, undecided))
	assert.Equal(t, Gate(""), check(t, e, Request{Viewer: viewer(), Prefs: enforced, Now: now}, wants))
	assert.Equal(t, Gate(""), check(t, e, Request{Viewer: viewer(), Prefs: advisory, Now: now}, undecided))
}

func TestFilter_EndToEnd(t *testing.T) {
	raw := []byte(`{"min_age":22,"max_age":30,"distance":40,"distance_unit":"km","deal_breakers":["smoking"]}`)
	prefs, err := profile.DecodePreferences(raw, nil)
	require.NoError(t, err)

	first := candidate("c1", 25, 10)
	first.Smoking = profile.HabitNone
	second := candidate("c2", 35, 20)
	second.Smoking = profile.HabitNone
	third := candidate("c3", 28, 500)
	third.Smoking = profile.HabitRegular

	e := NewEngine(Config{})
	passed, stats := e.Filter(Request{Viewer: viewer(), Prefs: prefs, Now: now}, []Candidate{
		{Profile: first}, {Profile: second}, {Profile: third},
	})

	require.Len(t, passed, 1)
	assert.Equal(t, "c1", passed[0].Profile.ID)
	require.NotNil(t, passed[0].DistanceKm)
	assert.InDelta(t, 10, *passed[0].DistanceKm, 1e-6)

	assert.Equal(t, 3, stats.Evaluated)
	assert.Equal(t, 1, stats.Passed)
	assert.Equal(t, 1, stats.Rejected[GateAge])
	assert.Equal(t, 1, stats.Rejected[GateDealBreaker])
}
