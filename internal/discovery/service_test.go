package discovery

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onnwee/swipestack/internal/events"
	"github.com/onnwee/swipestack/internal/filter"
	"github.com/onnwee/swipestack/internal/profile"
	"github.com/onnwee/swipestack/internal/ranking"
	"github.com/onnwee/swipestack/internal/swipe"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(e events.Event) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return true
}

func (p *recordingPublisher) ofType(t events.Type) []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Event
	for _, e := range p.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	repo    *profile.InMemoryRepository
	store   *swipe.InMemoryStore
	pub     *recordingPublisher
	metrics *Metrics
	svc     *Service
	clock   time.Time
}

func person(id string, age int, lat, lng float64) *profile.UserProfile {
	return &profile.UserProfile{
		ID:              id,
		Gender:          "female",
		Religion:        "none",
		Bio:             "weekend hiking and climbing, coffee snob",
		Profession:      "engineer",
		Interests:       []string{"hiking", "coffee"},
		HasPhoto:        true,
		DateOfBirth:     now.AddDate(-age, -1, 0),
		HeightCm:        170,
		Smoking:         profile.HabitNone,
		Coordinates:     profile.Coordinates{Lat: lat, Lng: lng, Confidence: 1},
		Country:         "us",
		LastActiveAt:    now.Add(-2 * time.Hour),
		AcceptsMessages: true,
		Activated:       true,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{
		repo:    profile.NewInMemoryRepository(),
		store:   swipe.NewInMemoryStore(nil),
		pub:     &recordingPublisher{},
		metrics: NewMetrics(),
		clock:   now,
	}
	clock := func() time.Time { return f.clock }
	history := swipe.NewHistory(f.store, f.store, swipe.HistoryConfig{Logger: quiet, Now: clock})
	f.svc = NewService(Config{
		Profiles:     f.repo,
		History:      history,
		Interactions: f.store,
		Filter:       filter.NewEngine(filter.Config{Logger: quiet}),
		Events:       f.pub,
		Metrics:      f.metrics,
		Logger:       quiet,
		Now:          clock,
	})

	// Manhattan viewer; a, b and c are within a few km, far is in LA.
	f.repo.PutProfile(person("viewer", 30, 40.7580, -73.9855))
	f.repo.PutProfile(person("a", 28, 40.7306, -73.9866))
	f.repo.PutProfile(person("b", 31, 40.6782, -73.9442))
	f.repo.PutProfile(person("c", 33, 40.7831, -73.9712))
	f.repo.PutProfile(person("far", 29, 34.0522, -118.2437))
	require.NoError(t, f.repo.PutRawPreferences("viewer",
		[]byte(`{"min_age":22,"max_age":35,"distance":50,"distance_unit":"km","priorities":["interests","age"]}`)))
	return f
}

func (f *fixture) tick() {
	f.clock = f.clock.Add(time.Minute)
}

func candidateIDs(rs []RankedCandidate) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.CandidateID
	}
	return out
}

func TestGetRankedDiscoveryPool_EndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	got, err := f.svc.GetRankedDiscoveryPool(ctx, "viewer", swipe.ModeDating, 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, candidateIDs(got))

	for i, r := range got {
		assert.GreaterOrEqual(t, r.FinalScore, 0.0)
		assert.LessOrEqual(t, r.FinalScore, 1.0)
		assert.False(t, math.IsNaN(r.FinalScore))
		require.NotNil(t, r.Breakdown.DistanceKm, "candidate %s", r.CandidateID)
		assert.Less(t, *r.Breakdown.DistanceKm, 50.0)
		assert.True(t, r.Breakdown.ColdStart)
		assert.Equal(t, 0.5, r.Breakdown.Collaborative)
		want := ranking.HybridScore(r.Breakdown.Content, r.Breakdown.Collaborative, r.Breakdown.Context, nil)
		assert.InDelta(t, want, r.FinalScore, 1e-12)
		if i > 0 {
			assert.GreaterOrEqual(t, got[i-1].FinalScore, r.FinalScore)
		}
	}

	ranked := f.pub.ofType(events.DiscoveryRanked)
	require.Len(t, ranked, 1)
	assert.Equal(t, "viewer", ranked[0].UserID)
}

func TestGetRankedDiscoveryPool_Deterministic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.GetRankedDiscoveryPool(ctx, "viewer", swipe.ModeDating, 10)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := f.svc.GetRankedDiscoveryPool(ctx, "viewer", swipe.ModeDating, 10)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestGetRankedDiscoveryPool_Limit(t *testing.T) {
	f := newFixture(t)

	got, err := f.svc.GetRankedDiscoveryPool(context.Background(), "viewer", swipe.ModeDating, 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestGetRankedDiscoveryPool_EmptyPool(t *testing.T) {
	repo := profile.NewInMemoryRepository()
	repo.PutProfile(person("alone", 30, 40.7, -74.0))
	store := swipe.NewInMemoryStore(nil)
	svc := NewService(Config{
		Profiles:     repo,
		History:      swipe.NewHistory(store, store, swipe.HistoryConfig{}),
		Interactions: store,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	got, err := svc.GetRankedDiscoveryPool(context.Background(), "alone", swipe.ModeDating, 20)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestGetRankedDiscoveryPool_UnknownViewer(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GetRankedDiscoveryPool(context.Background(), "ghost", swipe.ModeDating, 20)
	assert.ErrorIs(t, err, profile.ErrProfileNotFound)
}

func TestGetRankedDiscoveryPool_InvalidMode(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GetRankedDiscoveryPool(context.Background(), "viewer", swipe.Mode("casual"), 20)
	assert.ErrorIs(t, err, swipe.ErrInvalidMode)
}

func TestGetRankedDiscoveryPool_Exclusions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.repo.Block("c", "viewer")
	_, err := f.svc.RecordSwipe(ctx, "viewer", swipe.ModeDating, "a", swipe.ActionPass)
	require.NoError(t, err)

	got, err := f.svc.GetRankedDiscoveryPool(ctx, "viewer", swipe.ModeDating, 20)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, candidateIDs(got))

	// Swipes are per mode.
	got, err = f.svc.GetRankedDiscoveryPool(ctx, "viewer", swipe.ModeFriendship, 20)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, candidateIDs(got))
}

func TestGetRankedDiscoveryPool_SmallPoolSkipsDiversity(t *testing.T) {
	f := newFixture(t)

	got, err := f.svc.GetRankedDiscoveryPool(context.Background(), "viewer", swipe.ModeDating, 20)
	require.NoError(t, err)
	for _, r := range got {
		assert.False(t, r.Breakdown.Diversified)
	}

	var m dto.Metric
	require.NoError(t, f.metrics.diversity.WithLabelValues(ranking.SkipBelowThreshold).Write(&m))
	assert.Equal(t, 1.0, m.GetCounter().GetValue())
}

func TestGetRankedDiscoveryPool_FilterRejectionsCounted(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GetRankedDiscoveryPool(context.Background(), "viewer", swipe.ModeDating, 20)
	require.NoError(t, err)

	var m dto.Metric
	require.NoError(t, f.metrics.rejections.WithLabelValues(string(filter.GateDistance)).Write(&m))
	assert.Equal(t, 1.0, m.GetCounter().GetValue())
}

// brokenPrefsRepo fails to read the preferences of one profile.
type brokenPrefsRepo struct {
	*profile.InMemoryRepository
	broken string
}

func (r brokenPrefsRepo) GetPreferences(ctx context.Context, userID string) (profile.Preferences, error) {
	if userID == r.broken {
		return profile.Preferences{}, errors.New("corrupt row")
	}
	return r.InMemoryRepository.GetPreferences(ctx, userID)
}

func TestGetRankedDiscoveryPool_CandidatePrefsFailureExcludesOnlyThatCandidate(t *testing.T) {
	f := newFixture(t)
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(Config{
		Profiles:     brokenPrefsRepo{InMemoryRepository: f.repo, broken: "c"},
		History:      swipe.NewHistory(f.store, f.store, swipe.HistoryConfig{Logger: quiet}),
		Interactions: f.store,
		Filter:       filter.NewEngine(filter.Config{Reciprocal: true, Logger: quiet}),
		Metrics:      f.metrics,
		Logger:       quiet,
		Now:          func() time.Time { return now },
	})

	got, err := svc.GetRankedDiscoveryPool(context.Background(), "viewer", swipe.ModeDating, 20)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, candidateIDs(got))

	var m dto.Metric
	require.NoError(t, f.metrics.failures.Write(&m))
	assert.Equal(t, 1.0, m.GetCounter().GetValue())
}

func TestRecordSwipe(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ack, err := f.svc.RecordSwipe(ctx, "viewer", swipe.ModeDating, "a", swipe.ActionLike)
	require.NoError(t, err)
	assert.True(t, ack.Recorded)
	assert.Equal(t, "a", ack.TargetID)
	assert.Empty(t, ack.MatchID)
	assert.Len(t, f.pub.ofType(events.SwipeRecorded), 1)

	t.Run("unknown target", func(t *testing.T) {
		_, err := f.svc.RecordSwipe(ctx, "viewer", swipe.ModeDating, "ghost", swipe.ActionLike)
		assert.ErrorIs(t, err, ErrUnknownTarget)
	})
	t.Run("duplicate", func(t *testing.T) {
		_, err := f.svc.RecordSwipe(ctx, "viewer", swipe.ModeDating, "a", swipe.ActionPass)
		assert.ErrorIs(t, err, swipe.ErrAlreadySwiped)
	})
	t.Run("self", func(t *testing.T) {
		_, err := f.svc.RecordSwipe(ctx, "viewer", swipe.ModeDating, "viewer", swipe.ActionLike)
		assert.ErrorIs(t, err, swipe.ErrSelfSwipe)
	})
	t.Run("invalid action", func(t *testing.T) {
		_, err := f.svc.RecordSwipe(ctx, "viewer", swipe.ModeDating, "b", swipe.Action("maybe"))
		assert.ErrorIs(t, err, swipe.ErrInvalidAction)
	})
}

func TestRecordSwipe_MutualLikeCreatesMatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.RecordSwipe(ctx, "a", swipe.ModeDating, "viewer", swipe.ActionSuperLike)
	require.NoError(t, err)
	f.tick()
	ack, err := f.svc.RecordSwipe(ctx, "viewer", swipe.ModeDating, "a", swipe.ActionLike)
	require.NoError(t, err)
	require.NotEmpty(t, ack.MatchID)

	created := f.pub.ofType(events.MatchCreated)
	require.Len(t, created, 2)
	assert.ElementsMatch(t, []string{"a", "viewer"}, []string{created[0].UserID, created[1].UserID})

	// Matched users leave each other's pool.
	got, err := f.svc.GetRankedDiscoveryPool(ctx, "viewer", swipe.ModeDating, 20)
	require.NoError(t, err)
	assert.NotContains(t, candidateIDs(got), "a")

	res, err := f.svc.UndoLastSwipe(ctx, "viewer", swipe.ModeDating)
	require.NoError(t, err)
	assert.True(t, res.MatchRetracted)
	assert.Len(t, f.pub.ofType(events.MatchRetracted), 2)

	matched, err := f.store.MatchedIDs(ctx, "viewer", swipe.ModeDating)
	require.NoError(t, err)
	assert.Empty(t, matched)
}

func TestUndoLastSwipe_LIFO(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, s := range []struct {
		target string
		action swipe.Action
	}{
		{"a", swipe.ActionLike},
		{"b", swipe.ActionPass},
		{"c", swipe.ActionSuperLike},
	} {
		_, err := f.svc.RecordSwipe(ctx, "viewer", swipe.ModeDating, s.target, s.action)
		require.NoError(t, err)
	}

	got, err := f.svc.GetRankedDiscoveryPool(ctx, "viewer", swipe.ModeDating, 20)
	require.NoError(t, err)
	assert.Empty(t, got)

	res, err := f.svc.UndoLastSwipe(ctx, "viewer", swipe.ModeDating)
	require.NoError(t, err)
	assert.Equal(t, "c", res.UndoneTargetID)
	assert.Equal(t, swipe.ActionSuperLike, res.UndoneAction)
	assert.False(t, res.MatchRetracted)

	got, err = f.svc.GetRankedDiscoveryPool(ctx, "viewer", swipe.ModeDating, 20)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, candidateIDs(got))

	res, err = f.svc.UndoLastSwipe(ctx, "viewer", swipe.ModeDating)
	require.NoError(t, err)
	assert.Equal(t, "b", res.UndoneTargetID)
	res, err = f.svc.UndoLastSwipe(ctx, "viewer", swipe.ModeDating)
	require.NoError(t, err)
	assert.Equal(t, "a", res.UndoneTargetID)

	_, err = f.svc.UndoLastSwipe(ctx, "viewer", swipe.ModeDating)
	assert.True(t, errors.Is(err, swipe.ErrEmptyHistory))
	assert.Len(t, f.pub.ofType(events.SwipeUndone), 3)
}

func TestValidateBreakdown(t *testing.T) {
	ok := ranking.Breakdown{Content: 0.4, Collaborative: 0.5, Context: 1}
	assert.NoError(t, validateBreakdown(ok))

	for name, b := range map[string]ranking.Breakdown{
		"nan":      {Content: math.NaN()},
		"inf":      {Context: math.Inf(1)},
		"negative": {TFIDF: -0.1},
		"above":    {Preference: 1.01},
	} {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, validateBreakdown(b), errInvalidScore)
		})
	}
}
