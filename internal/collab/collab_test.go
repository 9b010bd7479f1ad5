package collab

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onnwee/swipestack/internal/profile"
	"github.com/onnwee/swipestack/internal/swipe"
)

var t0 = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func rec(n int, user, target string, action swipe.Action) swipe.Record {
	return swipe.Record{
		ID:        fmt.Sprintf("r%03d", n),
		UserID:    user,
		TargetID:  target,
		Action:    action,
		Mode:      swipe.ModeDating,
		CreatedAt: t0.Add(time.Duration(n) * time.Second),
	}
}

func TestScore_ColdStartIsNeutral(t *testing.T) {
	s := NewScorer(nil)
	snap := NewSnapshot("viewer", nil, nil, nil)

	r := s.Score(snap, &profile.UserProfile{ID: "cand"})
	assert.True(t, r.ColdStart)
	assert.Equal(t, 0.5, r.Blended)
	assert.Equal(t, 0.5, r.Matrix)
	assert.Equal(t, 0.5, r.Traditional)
}

func TestScore_DirectHistory(t *testing.T) {
	s := NewScorer(nil)

	t.Run("candidate liked viewer", func(t *testing.T) {
		snap := NewSnapshot("viewer", []swipe.Record{
			rec(1, "cand", "viewer", swipe.ActionSuperLike),
		}, nil, nil)
		r := s.Score(snap, &profile.UserProfile{ID: "cand"})
		assert.False(t, r.ColdStart)
		assert.Equal(t, 1.0, r.Matrix)
		assert.Equal(t, 0.5, r.Traditional)
		// b = 0.3·1 → (0.3+1)/2
		assert.InDelta(t, 0.65, r.Blended, 1e-9)
	})

	t.Run("candidate passed on viewer", func(t *testing.T) {
		snap := NewSnapshot("viewer", []swipe.Record{
			rec(1, "cand", "viewer", swipe.ActionPass),
		}, nil, nil)
		r := s.Score(snap, &profile.UserProfile{ID: "cand"})
		assert.Equal(t, 0.0, r.Matrix)
		assert.InDelta(t, 0.35, r.Blended, 1e-9)
	})
}

func TestScore_SecondOrderBoost(t *testing.T) {
	s := NewScorer(nil)
	records := []swipe.Record{
		rec(1, "viewer", "x", swipe.ActionLike),
		rec(2, "viewer", "y", swipe.ActionLike),
		rec(3, "x", "cand", swipe.ActionLike),
		rec(4, "cand", "viewer", swipe.ActionPass),
	}
	snap := NewSnapshot("viewer", records, nil, nil)

	r := s.Score(snap, &profile.UserProfile{ID: "cand"})
	// matrix = -1 + 0.2·(1/2) = -0.9
	assert.InDelta(t, (-0.9+1)/2, r.Matrix, 1e-9)

	// Without direct history the boost does not apply.
	other := s.Score(snap, &profile.UserProfile{ID: "z"})
	assert.True(t, other.ColdStart)
}

func TestScore_TraditionalFromCohort(t *testing.T) {
	s := NewScorer(nil)
	targets := map[string]*profile.UserProfile{
		"t1": {ID: "t1", Religion: "buddhist", Education: "masters"},
		"t2": {ID: "t2", Religion: "christian", Education: "phd"},
	}
	cohort := []swipe.Record{
		rec(1, "peer", "t1", swipe.ActionSuperLike),
		rec(2, "peer", "t2", swipe.ActionPass),
	}
	snap := NewSnapshot("viewer", nil, cohort, targets)

	similar := s.Score(snap, &profile.UserProfile{ID: "c1", Religion: "buddhist", Education: "masters"})
	assert.False(t, similar.ColdStart)
	assert.Equal(t, 0.5, similar.Matrix)
	assert.Equal(t, 1.0, similar.Traditional)

	dissimilar := s.Score(snap, &profile.UserProfile{ID: "c2", Religion: "christian", Education: "phd"})
	assert.Equal(t, 0.0, dissimilar.Traditional)
	assert.Greater(t, similar.Blended, dissimilar.Blended)

	unrelated := s.Score(snap, &profile.UserProfile{ID: "c3"})
	assert.True(t, unrelated.ColdStart)
}

func TestScore_BoundedAndDeterministic(t *testing.T) {
	s := NewScorer(nil)
	records := []swipe.Record{
		rec(1, "viewer", "x", swipe.ActionLike),
		rec(2, "x", "cand", swipe.ActionSuperLike),
		rec(3, "cand", "viewer", swipe.ActionSuperLike),
		rec(4, "viewer", "cand", swipe.ActionSuperLike),
	}
	snap := NewSnapshot("viewer", records, nil, nil)
	cand := &profile.UserProfile{ID: "cand"}

	first := s.Score(snap, cand)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, s.Score(snap, cand))
	}
	for _, v := range []float64{first.Matrix, first.Traditional, first.Blended} {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
}

func TestLoad(t *testing.T) {
	ctx := context.Background()
	store := swipe.NewInMemoryStore(func() string { return "m" })
	for _, r := range []swipe.Record{
		rec(1, "viewer", "x", swipe.ActionLike),
		rec(2, "x", "cand", swipe.ActionLike),
		rec(3, "cand", "viewer", swipe.ActionLike),
		rec(4, "peer", "t1", swipe.ActionLike),
		rec(5, "x", "viewer", swipe.ActionLike),
	} {
		r := r
		require.NoError(t, store.Append(ctx, &r))
	}

	repo := profile.NewInMemoryRepository()
	repo.PutProfile(&profile.UserProfile{ID: "viewer"})
	repo.PutProfile(&profile.UserProfile{ID: "peer"})
	repo.PutProfile(&profile.UserProfile{ID: "t1", Religion: "jewish"})
	prefs := profile.Preferences{Priorities: []profile.Priority{{Kind: profile.PriorityReligion}}}
	repo.PutPreferences("viewer", prefs)
	repo.PutPreferences("peer", prefs)

	snap, err := Load(ctx, store, repo, "viewer", prefs, swipe.ModeDating, LoaderConfig{})
	require.NoError(t, err)

	assert.Equal(t, []string{"x"}, snap.viewerLiked)
	assert.Len(t, snap.direct["cand"], 1)
	// Viewer liked x and x liked viewer: both directions count once.
	assert.Len(t, snap.direct["x"], 2)
	assert.True(t, snap.positive["x"]["cand"])
	require.Len(t, snap.cohort, 1)
	assert.Equal(t, "t1", snap.cohort[0].target.ID)

	s := NewScorer(nil)
	r := s.Score(snap, &profile.UserProfile{ID: "c", Religion: "jewish"})
	assert.False(t, r.ColdStart)
	assert.Equal(t, 0.875, r.Traditional)
}
