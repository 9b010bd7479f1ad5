// Package filter implements the hard filter engine: fixed-order boolean
// gates that remove candidates before any scoring happens.
package filter

import (
	"log/slog"
	"time"

	"github.com/onnwee/swipestack/internal/geo"
	"github.com/onnwee/swipestack/internal/profile"
)

// Gate names a hard filter stage.
type Gate string

const (
	GateIdentity    Gate = "identity"
	GateDealBreaker Gate = "deal_breaker"
	GateAge         Gate = "age"
	GateDistance    Gate = "distance"
	GateHabits      Gate = "habits"
	GateChildren    Gate = "children"
)

// Gates lists every gate in evaluation order.
var Gates = []Gate{GateIdentity, GateDealBreaker, GateAge, GateDistance, GateHabits, GateChildren}

// distanceEpsilonKm absorbs floating point error at the boundary so a
// candidate exactly at the limit is included.
const distanceEpsilonKm = 1e-9

// Config configures the engine.
type Config struct {
	// Reciprocal also checks the candidate's deal-breakers against the
	// viewer.
	Reciprocal bool
	Logger     *slog.Logger
}

// Engine evaluates the gates. It holds no per-request state and is safe
// for concurrent use.
type Engine struct {
	reciprocal bool
	logger     *slog.Logger
}

// Reciprocal reports whether candidate deal-breakers are also checked.
func (e *Engine) Reciprocal() bool { return e.reciprocal }

// NewEngine creates a filter engine.
func NewEngine(cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{reciprocal: cfg.Reciprocal, logger: cfg.Logger}
}

// Exclusions holds the ids removed by the identity gate.
type Exclusions struct {
	Matched map[string]bool
	Swiped  map[string]bool
	Blocked map[string]bool
}

// NewExclusions builds exclusion sets from id lists.
func NewExclusions(matched, swiped, blocked []string) Exclusions {
	return Exclusions{
		Matched: toSet(matched),
		Swiped:  toSet(swiped),
		Blocked: toSet(blocked),
	}
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func (x Exclusions) excludes(id string) bool {
	return x.Matched[id] || x.Swiped[id] || x.Blocked[id]
}

// Request is the viewer side of a filter pass.
type Request struct {
	Viewer     *profile.UserProfile
	Prefs      profile.Preferences
	Exclusions Exclusions
	Now        time.Time
}

// Candidate is a profile to evaluate. Prefs carries the candidate's own
// preferences for reciprocal checks and may be nil.
type Candidate struct {
	Profile *profile.UserProfile
	Prefs   *profile.Preferences
}

// Passed is a candidate that survived every gate.
type Passed struct {
	Profile *profile.UserProfile
	// DistanceKm is set when both locations are known.
	DistanceKm *float64
}

// Stats counts the outcome of a filter pass.
type Stats struct {
	Evaluated int
	Passed    int
	Rejected  map[Gate]int
}

// Filter returns the candidates that pass every gate, in input order.
func (e *Engine) Filter(req Request, candidates []Candidate) ([]Passed, Stats) {
	stats := Stats{Evaluated: len(candidates), Rejected: make(map[Gate]int)}
	out := make([]Passed, 0, len(candidates))

	for _, c := range candidates {
		if c.Profile == nil {
			continue
		}
		gate, dist := e.Check(req, c)
		if gate != "" {
			stats.Rejected[gate]++
			continue
		}
		out = append(out, Passed{Profile: c.Profile, DistanceKm: dist})
	}
	stats.Passed = len(out)

	e.logger.Debug("hard filter complete",
		slog.String("user_id", req.Viewer.ID),
		slog.Int("evaluated", stats.Evaluated),
		slog.Int("passed", stats.Passed))
	return out, stats
}

// Check runs the gates in order for one candidate and returns the first
// gate that rejects it, or "" if it passes. The distance between the two
// profiles is returned whenever both locations are known.
func (e *Engine) Check(req Request, c Candidate) (Gate, *float64) {
	cand := c.Profile
	if !identityOK(req, cand) {
		return GateIdentity, nil
	}
	if !e.dealBreakersOK(req, c) {
		return GateDealBreaker, nil
	}
	if !ageOK(req.Prefs, cand, req.Now) {
		return GateAge, nil
	}
	dist := distanceBetween(req.Viewer, cand)
	if !distanceOK(req.Viewer, req.Prefs, cand, dist) {
		return GateDistance, dist
	}
	if !habitsOK(req.Prefs, cand) {
		return GateHabits, dist
	}
	if !childrenOK(req.Prefs, cand) {
		return GateChildren, dist
	}
	return "", dist
}

func identityOK(req Request, cand *profile.UserProfile) bool {
	if cand.ID == req.Viewer.ID {
		return false
	}
	if req.Exclusions.excludes(cand.ID) {
		return false
	}
	return cand.Discoverable(req.Now)
}

func (e *Engine) dealBreakersOK(req Request, c Candidate) bool {
	for _, d := range req.Prefs.DealBreakers {
		if d.Excludes(c.Profile) {
			return false
		}
	}
	if e.reciprocal && c.Prefs != nil {
		for _, d := range c.Prefs.DealBreakers {
			if d.Excludes(req.Viewer) {
				return false
			}
		}
	}
	return true
}

// ageOK requires a known age inside the inclusive bounds. With no bounds
// set every candidate passes.
func ageOK(prefs profile.Preferences, cand *profile.UserProfile, now time.Time) bool {
	if prefs.MinAge <= 0 && prefs.MaxAge <= 0 {
		return true
	}
	age := cand.AgeAt(now)
	if age < 0 {
		return false
	}
	if prefs.MinAge > 0 && age < prefs.MinAge {
		return false
	}
	if prefs.MaxAge > 0 && age > prefs.MaxAge {
		return false
	}
	return true
}

func distanceBetween(a, b *profile.UserProfile) *float64 {
	if !a.Coordinates.Known() || !b.Coordinates.Known() {
		return nil
	}
	d := geo.DistanceKm(a.Coordinates, b.Coordinates)
	return &d
}

// distanceOK applies the distance preference. Unknown locations or
// countries pass.
func distanceOK(viewer *profile.UserProfile, prefs profile.Preferences, cand *profile.UserProfile, dist *float64) bool {
	limit := geo.LimitKm(prefs.Distance)
	switch limit.Kind {
	case profile.DistanceUnlimited:
		return true
	case profile.DistanceCountry:
		if viewer.Country == "" || cand.Country == "" {
			return true
		}
		return geo.SameCountry(viewer.Country, cand.Country)
	}
	if dist == nil {
		return true
	}
	return *dist <= limit.Value+distanceEpsilonKm
}

// habitsOK passes a candidate whose smoking and drinking levels do not
// exceed the viewer's tolerance. Unknown levels on either side pass.
func habitsOK(prefs profile.Preferences, cand *profile.UserProfile) bool {
	if prefs.SmokingTolerance.Known() && cand.Smoking.Known() && cand.Smoking > prefs.SmokingTolerance {
		return false
	}
	if prefs.DrinkingTolerance.Known() && cand.Drinking.Known() && cand.Drinking > prefs.DrinkingTolerance {
		return false
	}
	return true
}

// childrenOK is enforced only when children is one of the viewer's
// deal-breakers.
func childrenOK(prefs profile.Preferences, cand *profile.UserProfile) bool {
	if !prefs.ChildrenIsDealBreaker() {
		return true
	}
	return prefs.ChildrenPreference.CompatibleWith(cand.Children)
}
