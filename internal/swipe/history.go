package swipe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// HistoryConfig configures a History.
type HistoryConfig struct {
	Logger  *slog.Logger
	Metrics *Metrics
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
	// NewID generates record ids. Defaults to uuid.NewString.
	NewID func() string
}

// History records swipes and pops them on undo. Writes for one user are
// serialized so an undo never races a concurrent swipe.
type History struct {
	store   Store
	matches MatchStore
	locks   *keyedMutex
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time
	newID   func() string
}

// NewHistory creates a History over the given stores.
func NewHistory(store Store, matches MatchStore, cfg HistoryConfig) *History {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	return &History{
		store:   store,
		matches: matches,
		locks:   newKeyedMutex(),
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		now:     cfg.Now,
		newID:   cfg.NewID,
	}
}

// RecordResult is the outcome of a recorded swipe.
type RecordResult struct {
	Record Record
	// Match is set when the swipe completed a mutual match.
	Match *Match
}

// Record appends a swipe. The timestamp is strictly greater than the
// user's previous swipe in the same mode. A positive swipe on a target who
// already swiped positively on the user creates a match.
func (h *History) Record(ctx context.Context, userID string, mode Mode, targetID string, action Action) (*RecordResult, error) {
	if userID == targetID {
		return nil, ErrSelfSwipe
	}
	if !action.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}

	unlock := h.locks.Lock(userID)
	defer unlock()

	ts := h.now().UTC().Truncate(time.Microsecond)
	latest, err := h.store.Latest(ctx, userID, mode)
	switch {
	case errors.Is(err, ErrEmptyHistory):
	case err != nil:
		return nil, fmt.Errorf("load latest swipe: %w", err)
	case !ts.After(latest.CreatedAt):
		ts = latest.CreatedAt.Add(time.Microsecond)
	}

	rec := Record{
		ID:        h.newID(),
		UserID:    userID,
		TargetID:  targetID,
		Action:    action,
		Mode:      mode,
		CreatedAt: ts,
	}
	if err := h.store.Append(ctx, &rec); err != nil {
		return nil, err
	}
	h.metrics.incRecorded(mode, action)

	res := &RecordResult{Record: rec}
	if !action.Positive() {
		return res, nil
	}

	match, err := h.completeMatch(ctx, &rec)
	if err != nil {
		// The swipe is kept even when the match write fails.
		h.logger.Error("failed to create match",
			slog.String("user_id", userID),
			slog.String("target_id", targetID),
			slog.String("error", err.Error()))
		return res, nil
	}
	if match != nil {
		res.Record.MatchID = match.ID
		res.Match = match
	}
	return res, nil
}

func (h *History) completeMatch(ctx context.Context, rec *Record) (*Match, error) {
	toward, err := h.store.Toward(ctx, rec.UserID, rec.Mode)
	if err != nil {
		return nil, err
	}
	reciprocated := false
	for _, r := range toward {
		if r.UserID == rec.TargetID && r.Action.Positive() {
			reciprocated = true
			break
		}
	}
	if !reciprocated {
		return nil, nil
	}

	match, err := h.matches.CreateMatch(ctx, rec.UserID, rec.TargetID, rec.Mode, rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := h.store.SetMatchID(ctx, rec.ID, match.ID); err != nil {
		return nil, err
	}
	h.metrics.incMatch(rec.Mode, matchCreated)
	h.logger.Info("match created",
		slog.String("match_id", match.ID),
		slog.String("mode", string(rec.Mode)))
	return match, nil
}

// Undo pops the user's latest swipe in mode, retracts the match it
// created, and returns the removed record. Returns ErrEmptyHistory when
// there is nothing to undo. The match goes first: if either step fails the
// swipe stays in the history and a retried undo finishes the job.
func (h *History) Undo(ctx context.Context, userID string, mode Mode) (*Record, error) {
	unlock := h.locks.Lock(userID)
	defer unlock()

	latest, err := h.store.Latest(ctx, userID, mode)
	if errors.Is(err, ErrEmptyHistory) {
		h.metrics.incUndo(mode, undoResultEmpty)
		return nil, ErrEmptyHistory
	}
	if err != nil {
		h.metrics.incUndo(mode, undoResultError)
		return nil, fmt.Errorf("load latest swipe: %w", err)
	}

	if latest.MatchID != "" {
		if err := h.matches.DeleteMatch(ctx, latest.MatchID); err != nil {
			h.metrics.incUndo(mode, undoResultError)
			return nil, fmt.Errorf("retract match: %w", err)
		}
		h.metrics.incMatch(mode, matchRetracted)
	}

	rec, err := h.store.PopLatest(ctx, userID, mode)
	if errors.Is(err, ErrEmptyHistory) {
		h.metrics.incUndo(mode, undoResultEmpty)
		return nil, ErrEmptyHistory
	}
	if err != nil {
		h.metrics.incUndo(mode, undoResultError)
		return nil, fmt.Errorf("pop latest swipe: %w", err)
	}
	h.metrics.incUndo(mode, undoResultUndone)
	return rec, nil
}

// SwipedTargets returns the ids the user already swiped on in mode.
func (h *History) SwipedTargets(ctx context.Context, userID string, mode Mode) ([]string, error) {
	return h.store.SwipedTargets(ctx, userID, mode)
}

// MatchedIDs returns the users matched with userID in mode.
func (h *History) MatchedIDs(ctx context.Context, userID string, mode Mode) ([]string, error) {
	return h.matches.MatchedIDs(ctx, userID, mode)
}
