// Package events delivers fire-and-forget notifications about swipes,
// matches and ranking passes to the affected users' websocket clients.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Type names an event.
type Type string

const (
	SwipeRecorded   Type = "swipe.recorded"
	SwipeUndone     Type = "swipe.undone"
	MatchCreated    Type = "match.created"
	MatchRetracted  Type = "match.retracted"
	DiscoveryRanked Type = "discovery.ranked"
)

// Event is the JSON envelope written to clients.
type Event struct {
	ID   string    `json:"id"`
	Type Type      `json:"type"`
	At   time.Time `json:"at"`
	Data any       `json:"data,omitempty"`

	// UserID selects the recipient and is not serialized.
	UserID string `json:"-"`
}

// New creates an event for userID.
func New(t Type, userID string, at time.Time, data any) Event {
	return Event{ID: uuid.NewString(), Type: t, At: at.UTC(), Data: data, UserID: userID}
}

// Publisher accepts events without blocking. Publish reports whether the
// event was accepted.
type Publisher interface {
	Publish(e Event) bool
}

// Discard is a Publisher that drops every event.
type Discard struct{}

// Publish implements Publisher.
func (Discard) Publish(Event) bool { return false }
