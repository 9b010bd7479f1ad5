// Package discovery exposes the ranking core: it assembles a user's
// candidate pool, runs the hard filter, scores survivors with the content,
// collaborative and context scorers, aggregates, injects diversity, and
// records swipes and undos.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/onnwee/swipestack/internal/collab"
	"github.com/onnwee/swipestack/internal/content"
	"github.com/onnwee/swipestack/internal/events"
	"github.com/onnwee/swipestack/internal/filter"
	"github.com/onnwee/swipestack/internal/freshness"
	"github.com/onnwee/swipestack/internal/geo"
	"github.com/onnwee/swipestack/internal/profile"
	"github.com/onnwee/swipestack/internal/ranking"
	"github.com/onnwee/swipestack/internal/swipe"
	"github.com/onnwee/swipestack/internal/tracing"
)

const (
	// DefaultLimit is used when a request asks for no specific size.
	DefaultLimit = 20
	// MaxLimit caps the size of a returned pool.
	MaxLimit = 100
)

// ErrUnknownTarget is returned when a swipe names a profile that does not
// exist.
var ErrUnknownTarget = errors.New("swipe target not found")

// Config wires a Service.
type Config struct {
	Profiles     profile.Repository
	History      *swipe.History
	Interactions collab.InteractionSource
	// Resolver fills in coordinates for profiles that lack them. Optional.
	Resolver *geo.Resolver
	Filter   *filter.Engine
	Weights  *ranking.Weights
	Events   events.Publisher
	Metrics  *Metrics
	Logger   *slog.Logger
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	// MaxPool caps how many candidates are loaded per pass. Default 500.
	MaxPool int
	// ResolveConcurrency bounds parallel coordinate lookups. Default 8.
	ResolveConcurrency int
	Collab             collab.LoaderConfig
}

// Service implements the discovery operations.
type Service struct {
	cfg       Config
	content   *content.Scorer
	collab    *collab.Scorer
	freshness *freshness.Scorer
}

// NewService creates a Service. Profiles, History and Interactions are
// required.
func NewService(cfg Config) *Service {
	if cfg.Weights == nil {
		cfg.Weights = ranking.DefaultWeights()
	}
	if cfg.Filter == nil {
		cfg.Filter = filter.NewEngine(filter.Config{Logger: cfg.Logger})
	}
	if cfg.Events == nil {
		cfg.Events = events.Discard{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.MaxPool <= 0 {
		cfg.MaxPool = 500
	}
	if cfg.ResolveConcurrency <= 0 {
		cfg.ResolveConcurrency = 8
	}
	return &Service{
		cfg:       cfg,
		content:   content.NewScorer(cfg.Weights),
		collab:    collab.NewScorer(cfg.Weights),
		freshness: freshness.NewScorer(cfg.Weights),
	}
}

// RankedCandidate is one entry of a ranked discovery pool.
type RankedCandidate struct {
	CandidateID string            `json:"candidate_id"`
	FinalScore  float64           `json:"final_score"`
	Breakdown   ranking.Breakdown `json:"breakdown"`
}

// GetRankedDiscoveryPool returns up to limit candidates for userID in
// mode, best first. An empty pool yields an empty slice.
func (s *Service) GetRankedDiscoveryPool(ctx context.Context, userID string, mode swipe.Mode, limit int) (out []RankedCandidate, err error) {
	ctx, end := tracing.StartSpan(ctx, "discovery.rank")
	defer func() { end(err) }()
	tracing.SetAttributes(ctx, attribute.String("discovery.mode", string(mode)))

	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %q", swipe.ErrInvalidMode, mode)
	}
	limit = clampLimit(limit)
	start := time.Now()
	now := s.cfg.Now()

	viewer, err := s.cfg.Profiles.GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load viewer: %w", err)
	}
	prefs, err := s.cfg.Profiles.GetPreferences(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load preferences: %w", err)
	}

	pool, excl, err := s.loadPool(ctx, userID, mode)
	if err != nil {
		return nil, err
	}
	s.resolveLocations(ctx, viewer, pool)

	candidates := s.filterCandidates(ctx, viewer, prefs, excl, pool, now)
	tracing.SetAttributes(ctx,
		attribute.Int("discovery.pool_size", len(pool)),
		attribute.Int("discovery.filtered_size", len(candidates)))

	ranked := s.score(ctx, viewer, prefs, mode, candidates, now)
	ranked = ranking.Rank(ranked, s.cfg.Weights)

	ranked, report := ranking.Diversify(ranked, limit, s.cfg.Weights.Diversity, now, s.cfg.Logger)
	if report.Applied {
		s.cfg.Metrics.incDiversity("applied")
	} else {
		s.cfg.Metrics.incDiversity(report.SkipReason)
	}

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out = make([]RankedCandidate, len(ranked))
	for i, c := range ranked {
		out[i] = RankedCandidate{CandidateID: c.ID, FinalScore: c.FinalScore, Breakdown: c.Breakdown}
	}

	s.cfg.Metrics.observeDuration(string(mode), time.Since(start).Seconds())
	s.cfg.Metrics.observeRanked(len(out))
	s.cfg.Events.Publish(events.New(events.DiscoveryRanked, userID, now, map[string]any{
		"mode":  mode,
		"count": len(out),
	}))
	s.cfg.Logger.Debug("discovery pool ranked",
		slog.String("user_id", userID),
		slog.String("mode", string(mode)),
		slog.Int("pool", len(pool)),
		slog.Int("returned", len(out)),
		slog.Bool("diversified", report.Applied))
	return out, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// loadPool fetches candidates and the identity exclusion sets concurrently.
func (s *Service) loadPool(ctx context.Context, userID string, mode swipe.Mode) ([]*profile.UserProfile, filter.Exclusions, error) {
	var (
		pool                     []*profile.UserProfile
		matched, swiped, blocked []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		pool, err = s.cfg.Profiles.ListCandidates(gctx, userID, s.cfg.MaxPool)
		if err != nil {
			return fmt.Errorf("list candidates: %w", err)
		}
		return nil
	})
	g.Go(func() (err error) {
		matched, err = s.cfg.History.MatchedIDs(gctx, userID, mode)
		if err != nil {
			return fmt.Errorf("load matches: %w", err)
		}
		return nil
	})
	g.Go(func() (err error) {
		swiped, err = s.cfg.History.SwipedTargets(gctx, userID, mode)
		if err != nil {
			return fmt.Errorf("load swiped targets: %w", err)
		}
		return nil
	})
	g.Go(func() (err error) {
		blocked, err = s.cfg.Profiles.BlockedIDs(gctx, userID)
		if err != nil {
			return fmt.Errorf("load blocks: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, filter.Exclusions{}, err
	}
	return pool, filter.NewExclusions(matched, swiped, blocked), nil
}

// resolveLocations fills in missing coordinates. Lookups are bounded by
// the resolver's timeout and never fail.
func (s *Service) resolveLocations(ctx context.Context, viewer *profile.UserProfile, pool []*profile.UserProfile) {
	if s.cfg.Resolver == nil {
		return
	}
	var g errgroup.Group
	g.SetLimit(s.cfg.ResolveConcurrency)
	for _, p := range append([]*profile.UserProfile{viewer}, pool...) {
		if p.Coordinates.Known() || (p.LocationText == "" && p.Country == "") {
			continue
		}
		g.Go(func() error {
			p.Coordinates = s.cfg.Resolver.ResolveProfile(ctx, p)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Service) filterCandidates(ctx context.Context, viewer *profile.UserProfile, prefs profile.Preferences,
	excl filter.Exclusions, pool []*profile.UserProfile, now time.Time) []filter.Passed {
	candidates := make([]filter.Candidate, len(pool))
	for i, p := range pool {
		candidates[i] = filter.Candidate{Profile: p}
	}

	if s.cfg.Filter.Reciprocal() {
		candidates = s.loadCandidatePrefs(ctx, candidates)
	}

	passed, stats := s.cfg.Filter.Filter(filter.Request{
		Viewer:     viewer,
		Prefs:      prefs,
		Exclusions: excl,
		Now:        now,
	}, candidates)
	s.cfg.Metrics.addRejections(stats)
	return passed
}

// loadCandidatePrefs attaches each candidate's own preferences for the
// reciprocal deal-breaker gate. A candidate whose preferences cannot be
// read is dropped from this pass; the others are kept.
func (s *Service) loadCandidatePrefs(ctx context.Context, candidates []filter.Candidate) []filter.Candidate {
	failed := make([]bool, len(candidates))
	var g errgroup.Group
	g.SetLimit(s.cfg.ResolveConcurrency)
	for i := range candidates {
		g.Go(func() error {
			cp, err := s.cfg.Profiles.GetPreferences(ctx, candidates[i].Profile.ID)
			if err != nil {
				failed[i] = true
				s.cfg.Logger.Warn("candidate preferences unavailable, excluding candidate",
					slog.String("candidate_id", candidates[i].Profile.ID),
					slog.String("error", err.Error()))
				return nil
			}
			candidates[i].Prefs = &cp
			return nil
		})
	}
	_ = g.Wait()

	kept := candidates[:0]
	for i, c := range candidates {
		if !failed[i] {
			kept = append(kept, c)
		}
	}
	s.cfg.Metrics.incScoringFailures(len(candidates) - len(kept))
	return kept
}

// score runs the three scorers in parallel over the filtered candidates.
// Each scorer writes only its own slice. A candidate whose scores are not
// finite is dropped; the rest of the batch is kept.
func (s *Service) score(ctx context.Context, viewer *profile.UserProfile, prefs profile.Preferences,
	mode swipe.Mode, candidates []filter.Passed, now time.Time) []ranking.Candidate {
	if len(candidates) == 0 {
		return []ranking.Candidate{}
	}
	ctx, end := tracing.StartSpan(ctx, "discovery.score")
	defer end(nil)

	snap, err := collab.Load(ctx, s.cfg.Interactions, s.cfg.Profiles, viewer.ID, prefs, mode, s.cfg.Collab)
	if err != nil {
		s.cfg.Logger.Warn("collaborative history unavailable, scoring as cold start",
			slog.String("user_id", viewer.ID),
			slog.String("error", err.Error()))
		snap = collab.NewSnapshot(viewer.ID, nil, nil, nil)
	}

	contentScores := make([]content.Result, len(candidates))
	collabScores := make([]collab.Result, len(candidates))
	contextScores := make([]freshness.Result, len(candidates))

	var g errgroup.Group
	g.Go(func() error {
		vs := s.content.ForViewer(viewer, prefs, now)
		for i, c := range candidates {
			contentScores[i] = vs.Score(c.Profile, c.DistanceKm)
		}
		return nil
	})
	g.Go(func() error {
		for i, c := range candidates {
			collabScores[i] = s.collab.Score(snap, c.Profile)
		}
		return nil
	})
	g.Go(func() error {
		for i, c := range candidates {
			contextScores[i] = s.freshness.Score(viewer, c.Profile, now)
		}
		return nil
	})
	_ = g.Wait()

	out := make([]ranking.Candidate, 0, len(candidates))
	failed := 0
	for i, c := range candidates {
		b := breakdown(contentScores[i], collabScores[i], contextScores[i], c.DistanceKm)
		if err := validateBreakdown(b); err != nil {
			failed++
			s.cfg.Logger.Warn("excluding candidate with invalid score",
				slog.String("user_id", viewer.ID),
				slog.String("candidate_id", c.Profile.ID),
				slog.String("error", err.Error()))
			continue
		}
		out = append(out, ranking.Candidate{ID: c.Profile.ID, Profile: c.Profile, Breakdown: b})
	}
	s.cfg.Metrics.incScoringFailures(failed)
	return out
}

func breakdown(c content.Result, cf collab.Result, x freshness.Result, dist *float64) ranking.Breakdown {
	return ranking.Breakdown{
		Content:       c.Combined,
		Collaborative: cf.Blended,
		Context:       x.Combined,
		Jaccard:       c.Jaccard,
		TFIDF:         c.TFIDF,
		NumericCosine: c.NumericCosine,
		Preference:    c.Preference,
		Matrix:        cf.Matrix,
		Traditional:   cf.Traditional,
		ColdStart:     cf.ColdStart,
		Activity:      x.Activity,
		OnlineBoost:   x.OnlineBoost,
		Completeness:  x.Completeness,
		DistanceKm:    dist,
	}
}
