// Package swipe records swipe interactions and maintains the per-user
// swipe history that undo pops from. It also detects and retracts mutual
// matches created by positive swipes.
package swipe

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrEmptyHistory is returned by undo when the user has no swipes in
	// the requested mode.
	ErrEmptyHistory = errors.New("swipe history is empty")
	// ErrInvalidAction is returned for unrecognized swipe actions.
	ErrInvalidAction = errors.New("invalid swipe action")
	// ErrInvalidMode is returned for unrecognized discovery modes.
	ErrInvalidMode = errors.New("invalid discovery mode")
	// ErrSelfSwipe is returned when a user swipes on themselves.
	ErrSelfSwipe = errors.New("cannot swipe on self")
	// ErrAlreadySwiped is returned when the user already swiped on the
	// target in the same mode.
	ErrAlreadySwiped = errors.New("target already swiped in this mode")
)

// Action is the user's decision on a candidate.
type Action string

const (
	ActionLike      Action = "like"
	ActionPass      Action = "pass"
	ActionSuperLike Action = "superlike"
)

// ParseAction maps a request value to an Action.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "like", "right":
		return ActionLike, nil
	case "pass", "left", "dislike", "nope":
		return ActionPass, nil
	case "superlike", "super_like", "super-like", "up":
		return ActionSuperLike, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAction, s)
}

// Valid reports whether a is one of the canonical actions.
func (a Action) Valid() bool {
	return a == ActionLike || a == ActionPass || a == ActionSuperLike
}

// Positive reports whether the action expresses interest.
func (a Action) Positive() bool {
	return a == ActionLike || a == ActionSuperLike
}

// Signal returns the action's interaction strength in [-1, 1].
func (a Action) Signal() float64 {
	switch a {
	case ActionSuperLike:
		return 1
	case ActionLike:
		return 0.75
	case ActionPass:
		return -1
	}
	return 0
}

// Mode separates independent discovery stacks, e.g. dating and friendship.
type Mode string

const (
	ModeDating     Mode = "dating"
	ModeFriendship Mode = "friendship"
)

// DefaultMode is used when a request names no mode.
const DefaultMode = ModeDating

// ParseMode maps a request value to a Mode. Empty input yields DefaultMode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return DefaultMode, nil
	case "dating", "date":
		return ModeDating, nil
	case "friendship", "friends", "bff":
		return ModeFriendship, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// Valid reports whether m is one of the canonical modes.
func (m Mode) Valid() bool {
	return m == ModeDating || m == ModeFriendship
}

// Record is one swipe. Records are append-only and removed only by undo.
type Record struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	TargetID  string    `json:"target_id" db:"target_id"`
	Action    Action    `json:"action" db:"action"`
	Mode      Mode      `json:"mode" db:"mode"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	// MatchID is set when this swipe completed a mutual match.
	MatchID string `json:"match_id,omitempty" db:"match_id"`
}

// Match is a mutual positive interaction between two users in a mode.
// UserA sorts before UserB.
type Match struct {
	ID        string    `json:"id" db:"id"`
	UserA     string    `json:"user_a" db:"user_a"`
	UserB     string    `json:"user_b" db:"user_b"`
	Mode      Mode      `json:"mode" db:"mode"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Other returns the participant that is not userID.
func (m Match) Other(userID string) string {
	if m.UserA == userID {
		return m.UserB
	}
	return m.UserA
}

// orderedPair returns the two ids in ascending order.
func orderedPair(a, b string) (string, string) {
	if a > b {
		return b, a
	}
	return a, b
}
