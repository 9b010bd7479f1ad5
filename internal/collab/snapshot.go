package collab

import (
	"context"
	"fmt"
	"sort"

	"github.com/onnwee/swipestack/internal/profile"
	"github.com/onnwee/swipestack/internal/swipe"
)

// InteractionSource reads swipe records. swipe.Store satisfies it.
type InteractionSource interface {
	ByUsers(ctx context.Context, userIDs []string, mode swipe.Mode) ([]swipe.Record, error)
	Toward(ctx context.Context, targetID string, mode swipe.Mode) ([]swipe.Record, error)
}

// ProfileSource reads profiles and cohorts. profile.Repository satisfies it.
type ProfileSource interface {
	GetProfiles(ctx context.Context, ids []string) (map[string]*profile.UserProfile, error)
	CohortIDs(ctx context.Context, userID string, kinds []profile.PriorityKind, limit int) ([]string, error)
}

// LoaderConfig bounds how much history a snapshot pulls.
type LoaderConfig struct {
	// MaxCohort caps the number of similar users consulted. Default 50.
	MaxCohort int
}

// Snapshot is the interaction history relevant to one viewer's ranking
// pass. It is loaded once and read concurrently by Score.
type Snapshot struct {
	viewerID string

	// direct holds signals exchanged between the viewer and each other
	// user, in either direction, in (created_at, id) order.
	direct map[string][]float64

	// viewerLiked lists users the viewer swiped positively on, sorted.
	viewerLiked []string
	// positive maps an actor to the targets they swiped positively on.
	positive map[string]map[string]bool

	// cohort holds the cohort's swipes with the target profile resolved.
	cohort []cohortSignal
}

type cohortSignal struct {
	target *profile.UserProfile
	signal float64
}

// Load builds the snapshot for viewerID in mode.
func Load(ctx context.Context, interactions InteractionSource, profiles ProfileSource,
	viewerID string, prefs profile.Preferences, mode swipe.Mode, cfg LoaderConfig) (*Snapshot, error) {
	if cfg.MaxCohort <= 0 {
		cfg.MaxCohort = 50
	}

	own, err := interactions.ByUsers(ctx, []string{viewerID}, mode)
	if err != nil {
		return nil, fmt.Errorf("load viewer interactions: %w", err)
	}
	toward, err := interactions.Toward(ctx, viewerID, mode)
	if err != nil {
		return nil, fmt.Errorf("load interactions toward viewer: %w", err)
	}

	var liked []string
	for _, r := range own {
		if r.Action.Positive() {
			liked = append(liked, r.TargetID)
		}
	}
	var second []swipe.Record
	if len(liked) > 0 {
		sort.Strings(liked)
		second, err = interactions.ByUsers(ctx, liked, mode)
		if err != nil {
			return nil, fmt.Errorf("load second-order interactions: %w", err)
		}
	}

	cohortRecords, targets, err := loadCohort(ctx, interactions, profiles, viewerID, prefs, mode, cfg)
	if err != nil {
		return nil, err
	}
	return NewSnapshot(viewerID, mergeRecords(own, toward, second), cohortRecords, targets), nil
}

func loadCohort(ctx context.Context, interactions InteractionSource, profiles ProfileSource,
	viewerID string, prefs profile.Preferences, mode swipe.Mode, cfg LoaderConfig) ([]swipe.Record, map[string]*profile.UserProfile, error) {
	kinds := prefs.PriorityKinds()
	if len(kinds) == 0 {
		return nil, nil, nil
	}
	cohort, err := profiles.CohortIDs(ctx, viewerID, kinds, cfg.MaxCohort)
	if err != nil {
		return nil, nil, fmt.Errorf("load cohort: %w", err)
	}
	if len(cohort) == 0 {
		return nil, nil, nil
	}
	records, err := interactions.ByUsers(ctx, cohort, mode)
	if err != nil {
		return nil, nil, fmt.Errorf("load cohort interactions: %w", err)
	}

	targetIDs := make([]string, 0, len(records))
	seen := make(map[string]bool, len(records))
	for _, r := range records {
		if r.TargetID == viewerID || seen[r.TargetID] {
			continue
		}
		seen[r.TargetID] = true
		targetIDs = append(targetIDs, r.TargetID)
	}
	if len(targetIDs) == 0 {
		return nil, nil, nil
	}
	sort.Strings(targetIDs)
	targets, err := profiles.GetProfiles(ctx, targetIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("load cohort targets: %w", err)
	}
	return records, targets, nil
}

// mergeRecords concatenates record sets, dropping duplicate ids, ordered
// by (created_at, id).
func mergeRecords(sets ...[]swipe.Record) []swipe.Record {
	seen := make(map[string]bool)
	var out []swipe.Record
	for _, set := range sets {
		for _, r := range set {
			if seen[r.ID] {
				continue
			}
			seen[r.ID] = true
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// NewSnapshot builds a snapshot directly from records and profiles.
// Records authored by the viewer or targeting the viewer become direct
// history; cohortRecords feed the traditional component.
func NewSnapshot(viewerID string, records []swipe.Record, cohortRecords []swipe.Record, targets map[string]*profile.UserProfile) *Snapshot {
	s := &Snapshot{
		viewerID: viewerID,
		direct:   make(map[string][]float64),
		positive: make(map[string]map[string]bool),
	}
	for _, r := range records {
		switch {
		case r.UserID == viewerID:
			s.direct[r.TargetID] = append(s.direct[r.TargetID], r.Action.Signal())
			if r.Action.Positive() {
				s.viewerLiked = append(s.viewerLiked, r.TargetID)
			}
		case r.TargetID == viewerID:
			s.direct[r.UserID] = append(s.direct[r.UserID], r.Action.Signal())
		}
	}
	sort.Strings(s.viewerLiked)
	liked := make(map[string]bool, len(s.viewerLiked))
	for _, id := range s.viewerLiked {
		liked[id] = true
	}
	for _, r := range records {
		if liked[r.UserID] && r.Action.Positive() {
			if s.positive[r.UserID] == nil {
				s.positive[r.UserID] = make(map[string]bool)
			}
			s.positive[r.UserID][r.TargetID] = true
		}
	}
	for _, r := range cohortRecords {
		if t, ok := targets[r.TargetID]; ok && r.TargetID != viewerID {
			s.cohort = append(s.cohort, cohortSignal{target: t, signal: r.Action.Signal()})
		}
	}
	return s
}
