package swipe

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store persists swipe records.
type Store interface {
	// Append stores a record. Returns ErrAlreadySwiped if the user already
	// swiped on the target in the record's mode.
	Append(ctx context.Context, rec *Record) error
	// Latest returns the user's most recent record in mode, or
	// ErrEmptyHistory.
	Latest(ctx context.Context, userID string, mode Mode) (*Record, error)
	// PopLatest deletes and returns the record with the latest timestamp,
	// or returns ErrEmptyHistory.
	PopLatest(ctx context.Context, userID string, mode Mode) (*Record, error)
	// SetMatchID attaches a match to an existing record.
	SetMatchID(ctx context.Context, recordID, matchID string) error
	// SwipedTargets returns the ids the user swiped on in mode.
	SwipedTargets(ctx context.Context, userID string, mode Mode) ([]string, error)
	// ByUsers returns every record authored by the given users in mode,
	// ordered by (created_at, id).
	ByUsers(ctx context.Context, userIDs []string, mode Mode) ([]Record, error)
	// Toward returns every record in mode whose target is targetID.
	Toward(ctx context.Context, targetID string, mode Mode) ([]Record, error)
}

// MatchStore persists mutual matches.
type MatchStore interface {
	// CreateMatch stores a match between a and b in mode, created at.
	// An existing match for the pair is returned unchanged.
	CreateMatch(ctx context.Context, a, b string, mode Mode, at time.Time) (*Match, error)
	// DeleteMatch removes a match. Deleting a missing match is not an error.
	DeleteMatch(ctx context.Context, id string) error
	// MatchedIDs returns the users matched with userID in mode.
	MatchedIDs(ctx context.Context, userID string, mode Mode) ([]string, error)
}

type historyKey struct {
	user string
	mode Mode
}

// InMemoryStore implements Store and MatchStore in memory.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[historyKey][]Record
	matches map[string]Match
	nextID  func() string
}

// NewInMemoryStore creates an empty store. newID generates match ids and
// defaults to uuid.NewString.
func NewInMemoryStore(newID func() string) *InMemoryStore {
	if newID == nil {
		newID = uuid.NewString
	}
	return &InMemoryStore{
		records: make(map[historyKey][]Record),
		matches: make(map[string]Match),
		nextID:  newID,
	}
}

// Append implements Store.
func (s *InMemoryStore) Append(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := historyKey{rec.UserID, rec.Mode}
	for _, r := range s.records[key] {
		if r.TargetID == rec.TargetID {
			return ErrAlreadySwiped
		}
	}
	s.records[key] = append(s.records[key], *rec)
	return nil
}

// latestIndex returns the index of the record with the greatest
// (CreatedAt, ID), independent of insertion order.
func latestIndex(recs []Record) int {
	best := -1
	for i, r := range recs {
		if best < 0 {
			best = i
			continue
		}
		b := recs[best]
		if r.CreatedAt.After(b.CreatedAt) || (r.CreatedAt.Equal(b.CreatedAt) && r.ID > b.ID) {
			best = i
		}
	}
	return best
}

// Latest implements Store.
func (s *InMemoryStore) Latest(_ context.Context, userID string, mode Mode) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := s.records[historyKey{userID, mode}]
	i := latestIndex(recs)
	if i < 0 {
		return nil, ErrEmptyHistory
	}
	r := recs[i]
	return &r, nil
}

// PopLatest implements Store.
func (s *InMemoryStore) PopLatest(_ context.Context, userID string, mode Mode) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := historyKey{userID, mode}
	recs := s.records[key]
	i := latestIndex(recs)
	if i < 0 {
		return nil, ErrEmptyHistory
	}
	r := recs[i]
	s.records[key] = append(recs[:i:i], recs[i+1:]...)
	return &r, nil
}

// SetMatchID implements Store.
func (s *InMemoryStore) SetMatchID(_ context.Context, recordID, matchID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, recs := range s.records {
		for i := range recs {
			if recs[i].ID == recordID {
				s.records[key][i].MatchID = matchID
				return nil
			}
		}
	}
	return nil
}

// SwipedTargets implements Store.
func (s *InMemoryStore) SwipedTargets(_ context.Context, userID string, mode Mode) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := s.records[historyKey{userID, mode}]
	ids := make([]string, 0, len(recs))
	for _, r := range recs {
		ids = append(ids, r.TargetID)
	}
	sort.Strings(ids)
	return ids, nil
}

// ByUsers implements Store.
func (s *InMemoryStore) ByUsers(_ context.Context, userIDs []string, mode Mode) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool, len(userIDs))
	var out []Record
	for _, id := range userIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, s.records[historyKey{id, mode}]...)
	}
	sortRecords(out)
	return out, nil
}

// Toward implements Store.
func (s *InMemoryStore) Toward(_ context.Context, targetID string, mode Mode) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	for key, recs := range s.records {
		if key.mode != mode {
			continue
		}
		for _, r := range recs {
			if r.TargetID == targetID {
				out = append(out, r)
			}
		}
	}
	sortRecords(out)
	return out, nil
}

// CreateMatch implements MatchStore.
func (s *InMemoryStore) CreateMatch(_ context.Context, a, b string, mode Mode, at time.Time) (*Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ua, ub := orderedPair(a, b)
	for _, m := range s.matches {
		if m.UserA == ua && m.UserB == ub && m.Mode == mode {
			return &m, nil
		}
	}
	m := Match{ID: s.nextID(), UserA: ua, UserB: ub, Mode: mode, CreatedAt: at}
	s.matches[m.ID] = m
	return &m, nil
}

// DeleteMatch implements MatchStore.
func (s *InMemoryStore) DeleteMatch(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.matches, id)
	return nil
}

// MatchedIDs implements MatchStore.
func (s *InMemoryStore) MatchedIDs(_ context.Context, userID string, mode Mode) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for _, m := range s.matches {
		if m.Mode == mode && (m.UserA == userID || m.UserB == userID) {
			ids = append(ids, m.Other(userID))
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func sortRecords(recs []Record) {
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].CreatedAt.Before(recs[j].CreatedAt)
		}
		return recs[i].ID < recs[j].ID
	})
}
