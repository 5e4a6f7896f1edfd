package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/cartwise/backend/internal/domain"
)

// MemoryStateStore is an in-process IntentStateStore with TTL expiry
type MemoryStateStore struct {
	items *gocache.Cache
	ttl   time.Duration
}

// NewMemoryStateStore creates a state store. States idle for longer than
// ttl are dropped; a non-positive ttl keeps them forever.
func NewMemoryStateStore(ttl time.Duration) *MemoryStateStore {
	expiration := ttl
	cleanup := 10 * time.Minute
	if ttl <= 0 {
		expiration = gocache.NoExpiration
		cleanup = 0
	}

	return &MemoryStateStore{
		items: gocache.New(expiration, cleanup),
		ttl:   expiration,
	}
}

// Get returns a copy of the user's state or ErrStateNotFound
func (s *MemoryStateStore) Get(ctx context.Context, userID string) (*domain.UserIntentState, error) {
	v, ok := s.items.Get(userID)
	if !ok {
		return nil, domain.ErrStateNotFound
	}

	// Values are stored by value so callers never share state
	state := v.(domain.UserIntentState)
	return &state, nil
}

// Save stores a copy of the state and refreshes its TTL
func (s *MemoryStateStore) Save(ctx context.Context, state *domain.UserIntentState) error {
	if state == nil || state.UserID == "" {
		return domain.ErrInvalidRequest
	}
	s.items.Set(state.UserID, *state, s.ttl)
	return nil
}

// Delete removes a user's state
func (s *MemoryStateStore) Delete(ctx context.Context, userID string) error {
	s.items.Delete(userID)
	return nil
}

// Ping always succeeds; the store lives in process
func (s *MemoryStateStore) Ping(ctx context.Context) error {
	return nil
}

// Size returns the number of stored states, including expired ones not yet
// cleaned up
func (s *MemoryStateStore) Size() int {
	return s.items.ItemCount()
}

// Clear removes all states
func (s *MemoryStateStore) Clear() {
	s.items.Flush()
}
