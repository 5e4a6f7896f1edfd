// Package memstore provides process-local repositories for intent events,
// purchase history and recommendation interactions.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cartwise/backend/internal/domain"
)

// EventStore keeps intent events per user in insertion order
type EventStore struct {
	mu     sync.RWMutex
	events map[string][]domain.IntentEvent
}

// NewEventStore creates an empty event store
func NewEventStore() *EventStore {
	return &EventStore{events: make(map[string][]domain.IntentEvent)}
}

// Append implements domain.IntentEventRepository
func (s *EventStore) Append(ctx context.Context, event domain.IntentEvent) error {
	if event.UserID == "" {
		return domain.ErrInvalidRequest
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.UserID] = append(s.events[event.UserID], event)
	return nil
}

// Recent implements domain.IntentEventRepository. A non-positive limit
// returns every matching event.
func (s *EventStore) Recent(ctx context.Context, userID string, since time.Time, limit int) ([]domain.IntentEvent, error) {
	s.mu.RLock()
	all := s.events[userID]
	out := make([]domain.IntentEvent, 0, len(all))
	for _, e := range all {
		if e.At.After(since) {
			out = append(out, e)
		}
	}
	s.mu.RUnlock()

	// Stable keeps insertion order among equal timestamps before the reverse
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
