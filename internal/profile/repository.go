package profile

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
)

// ErrProfileNotFound is returned when a profile does not exist.
var ErrProfileNotFound = errors.New("profile not found")

// Repository is the read API the ranking pipeline uses for profiles and
// preferences. Profile CRUD lives elsewhere.
type Repository interface {
	// GetProfile returns a single profile or ErrProfileNotFound.
	GetProfile(ctx context.Context, id string) (*UserProfile, error)
	// GetProfiles returns the profiles that exist among ids, keyed by id.
	GetProfiles(ctx context.Context, ids []string) (map[string]*UserProfile, error)
	// GetPreferences returns the user's decoded preferences. A user without
	// stored preferences gets the permissive zero value.
	GetPreferences(ctx context.Context, userID string) (Preferences, error)
	// ListCandidates returns profiles other than userID ordered by id, at
	// most limit entries (0 means no limit). Implementations may skip
	// deactivated or hidden profiles; the filter engine re-checks state.
	ListCandidates(ctx context.Context, userID string, limit int) ([]*UserProfile, error)
	// BlockedIDs returns ids blocked by the user or blocking the user.
	BlockedIDs(ctx context.Context, userID string) ([]string, error)
	// CohortIDs returns other users whose priority list shares at least one
	// kind with kinds, ordered by id.
	CohortIDs(ctx context.Context, userID string, kinds []PriorityKind, limit int) ([]string, error)
}

// LocationStore is implemented by repositories that can persist resolved
// coordinates for profiles.
type LocationStore interface {
	// MissingCoordinates returns up to limit profiles with location text but
	// no resolved coordinates.
	MissingCoordinates(ctx context.Context, limit int) ([]*UserProfile, error)
	// SetCoordinates stores resolved coordinates for a profile.
	SetCoordinates(ctx context.Context, id string, c Coordinates) error
}

// InMemoryRepository is a thread-safe in-memory Repository for tests and
// local development.
type InMemoryRepository struct {
	mu       sync.RWMutex
	profiles map[string]*UserProfile
	prefs    map[string]Preferences
	blocks   map[string]map[string]bool // blocker -> blocked
}

// NewInMemoryRepository creates an empty in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		profiles: make(map[string]*UserProfile),
		prefs:    make(map[string]Preferences),
		blocks:   make(map[string]map[string]bool),
	}
}

// PutProfile stores a copy of the profile.
func (r *InMemoryRepository) PutProfile(p *UserProfile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	cp.Interests = append([]string(nil), p.Interests...)
	r.profiles[p.ID] = &cp
}

// PutPreferences stores a preferences snapshot for a user.
func (r *InMemoryRepository) PutPreferences(userID string, prefs Preferences) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prefs[userID] = prefs
	if p, ok := r.profiles[userID]; ok {
		p.HasPreferences = true
	}
}

// PutRawPreferences decodes a stored blob the same way the postgres
// repository does and stores the result.
func (r *InMemoryRepository) PutRawPreferences(userID string, raw []byte) error {
	prefs, err := DecodePreferences(raw, slog.Default())
	r.PutPreferences(userID, prefs)
	return err
}

// Block records that blocker has blocked blocked.
func (r *InMemoryRepository) Block(blocker, blocked string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.blocks[blocker] == nil {
		r.blocks[blocker] = make(map[string]bool)
	}
	r.blocks[blocker][blocked] = true
}

func (r *InMemoryRepository) GetProfile(ctx context.Context, id string) (*UserProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[id]
	if !ok {
		return nil, ErrProfileNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *InMemoryRepository) GetProfiles(ctx context.Context, ids []string) (map[string]*UserProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*UserProfile, len(ids))
	for _, id := range ids {
		if p, ok := r.profiles[id]; ok {
			cp := *p
			out[id] = &cp
		}
	}
	return out, nil
}

func (r *InMemoryRepository) GetPreferences(ctx context.Context, userID string) (Preferences, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.prefs[userID], nil
}

func (r *InMemoryRepository) ListCandidates(ctx context.Context, userID string, limit int) ([]*UserProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.profiles))
	for id := range r.profiles {
		if id != userID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	out := make([]*UserProfile, 0, len(ids))
	for _, id := range ids {
		if limit > 0 && len(out) >= limit {
			break
		}
		cp := *r.profiles[id]
		out = append(out, &cp)
	}
	return out, nil
}

func (r *InMemoryRepository) BlockedIDs(ctx context.Context, userID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool)
	for id := range r.blocks[userID] {
		seen[id] = true
	}
	for blocker, blocked := range r.blocks {
		if blocked[userID] {
			seen[blocker] = true
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (r *InMemoryRepository) CohortIDs(ctx context.Context, userID string, kinds []PriorityKind, limit int) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	want := make(map[PriorityKind]bool, len(kinds))
	for _, k := range kinds {
		want[k] = true
	}
	var out []string
	for id, prefs := range r.prefs {
		if id == userID {
			continue
		}
		for _, k := range prefs.PriorityKinds() {
			if want[k] {
				out = append(out, id)
				break
			}
		}
	}
	sort.Strings(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *InMemoryRepository) MissingCoordinates(ctx context.Context, limit int) ([]*UserProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0)
	for id, p := range r.profiles {
		if p.LocationText != "" && !p.Coordinates.Known() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]*UserProfile, 0, len(ids))
	for _, id := range ids {
		cp := *r.profiles[id]
		out = append(out, &cp)
	}
	return out, nil
}

func (r *InMemoryRepository) SetCoordinates(ctx context.Context, id string, c Coordinates) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[id]
	if !ok {
		return ErrProfileNotFound
	}
	p.Coordinates = c
	return nil
}
