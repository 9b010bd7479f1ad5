package idempotency

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	rec       *Record
	expiresAt time.Time
}

// InMemoryStore is a process-local Store. Expired records are invisible to
// Get and are dropped by DeleteExpired.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Get implements Store.
func (s *InMemoryStore) Get(_ context.Context, userID, key string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[scopedKey(userID, key)]
	if !ok || !s.now().Before(e.expiresAt) {
		return nil, ErrKeyNotFound
	}
	return copyRecord(e.rec), nil
}

// Put implements Store.
func (s *InMemoryStore) Put(_ context.Context, rec *Record, ttl time.Duration) error {
	if err := ValidateKey(rec.Key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	k := scopedKey(rec.UserID, rec.Key)
	if e, ok := s.entries[k]; ok && now.Before(e.expiresAt) {
		return ErrKeyExists
	}
	stored := copyRecord(rec)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	s.entries[k] = memoryEntry{rec: stored, expiresAt: now.Add(ttl)}
	return nil
}

// DeleteExpired removes expired records and returns how many were removed.
func (s *InMemoryStore) DeleteExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	deleted := 0
	for k, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, k)
			deleted++
		}
	}
	return deleted
}

// Len returns the number of stored records, expired or not.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func copyRecord(r *Record) *Record {
	c := *r
	c.Body = append([]byte(nil), r.Body...)
	return &c
}
