package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/swipestack/internal/events"
	"github.com/onnwee/swipestack/internal/profile"
	"github.com/onnwee/swipestack/internal/swipe"
	"github.com/onnwee/swipestack/internal/tracing"
)

// Ack acknowledges a recorded swipe.
type Ack struct {
	Recorded  bool         `json:"recorded"`
	SwipeID   string       `json:"swipe_id"`
	TargetID  string       `json:"target_id"`
	Action    swipe.Action `json:"action"`
	Mode      swipe.Mode   `json:"mode"`
	CreatedAt time.Time    `json:"created_at"`
	// MatchID is set when this swipe completed a mutual match.
	MatchID string `json:"match_id,omitempty"`
}

// UndoResult describes the swipe removed by an undo.
type UndoResult struct {
	UndoneTargetID string       `json:"undone_target_id"`
	UndoneAction   swipe.Action `json:"undone_action"`
	Mode           swipe.Mode   `json:"mode"`
	// MatchRetracted is true when the undone swipe had created a match.
	MatchRetracted bool `json:"match_retracted"`
}

// RecordSwipe appends a swipe by userID on targetID.
func (s *Service) RecordSwipe(ctx context.Context, userID string, mode swipe.Mode, targetID string, action swipe.Action) (ack *Ack, err error) {
	ctx, end := tracing.StartSpan(ctx, "discovery.record_swipe")
	defer func() { end(err) }()
	tracing.SetAttributes(ctx,
		attribute.String("swipe.mode", string(mode)),
		attribute.String("swipe.action", string(action)))

	if !action.Valid() {
		return nil, fmt.Errorf("%w: %q", swipe.ErrInvalidAction, action)
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %q", swipe.ErrInvalidMode, mode)
	}
	if userID == targetID {
		return nil, swipe.ErrSelfSwipe
	}
	if _, err := s.cfg.Profiles.GetProfile(ctx, targetID); err != nil {
		if errors.Is(err, profile.ErrProfileNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTarget, targetID)
		}
		return nil, fmt.Errorf("load target: %w", err)
	}

	res, err := s.cfg.History.Record(ctx, userID, mode, targetID, action)
	if err != nil {
		return nil, err
	}
	rec := res.Record

	s.cfg.Events.Publish(events.New(events.SwipeRecorded, userID, rec.CreatedAt, map[string]any{
		"swipe_id":  rec.ID,
		"target_id": rec.TargetID,
		"action":    rec.Action,
		"mode":      rec.Mode,
	}))
	if res.Match != nil {
		for _, id := range []string{res.Match.UserA, res.Match.UserB} {
			s.cfg.Events.Publish(events.New(events.MatchCreated, id, res.Match.CreatedAt, map[string]any{
				"match_id": res.Match.ID,
				"user_id":  res.Match.Other(id),
				"mode":     res.Match.Mode,
			}))
		}
	}

	return &Ack{
		Recorded:  true,
		SwipeID:   rec.ID,
		TargetID:  rec.TargetID,
		Action:    rec.Action,
		Mode:      rec.Mode,
		CreatedAt: rec.CreatedAt,
		MatchID:   rec.MatchID,
	}, nil
}

// UndoLastSwipe removes the user's most recent swipe in mode. It returns
// swipe.ErrEmptyHistory when there is nothing to undo.
func (s *Service) UndoLastSwipe(ctx context.Context, userID string, mode swipe.Mode) (res *UndoResult, err error) {
	ctx, end := tracing.StartSpan(ctx, "discovery.undo_swipe")
	defer func() {
		if errors.Is(err, swipe.ErrEmptyHistory) {
			end(nil)
			return
		}
		end(err)
	}()

	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %q", swipe.ErrInvalidMode, mode)
	}
	rec, err := s.cfg.History.Undo(ctx, userID, mode)
	if err != nil {
		return nil, err
	}

	now := s.cfg.Now()
	s.cfg.Events.Publish(events.New(events.SwipeUndone, userID, now, map[string]any{
		"swipe_id":  rec.ID,
		"target_id": rec.TargetID,
		"action":    rec.Action,
		"mode":      rec.Mode,
	}))
	if rec.MatchID != "" {
		for _, pair := range [][2]string{{rec.UserID, rec.TargetID}, {rec.TargetID, rec.UserID}} {
			s.cfg.Events.Publish(events.New(events.MatchRetracted, pair[0], now, map[string]any{
				"match_id": rec.MatchID,
				"user_id":  pair[1],
				"mode":     rec.Mode,
			}))
		}
	}
	s.cfg.Logger.Debug("swipe undone",
		slog.String("user_id", userID),
		slog.String("target_id", rec.TargetID),
		slog.String("mode", string(mode)))

	return &UndoResult{
		UndoneTargetID: rec.TargetID,
		UndoneAction:   rec.Action,
		Mode:           rec.Mode,
		MatchRetracted: rec.MatchID != "",
	}, nil
}
