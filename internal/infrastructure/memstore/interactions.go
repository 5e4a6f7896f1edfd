package memstore

import (
	"context"
	"sync"

	"github.com/cartwise/backend/internal/domain"
)

// InteractionLog is an append-only interaction log
type InteractionLog struct {
	mu     sync.RWMutex
	byUser map[string][]domain.RecommendationInteraction
}

// NewInteractionLog creates an empty log
func NewInteractionLog() *InteractionLog {
	return &InteractionLog{byUser: make(map[string][]domain.RecommendationInteraction)}
}

// Append implements domain.InteractionRepository
func (l *InteractionLog) Append(ctx context.Context, interaction domain.RecommendationInteraction) error {
	if interaction.UserID == "" {
		return domain.ErrInvalidRequest
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.byUser[interaction.UserID] = append(l.byUser[interaction.UserID], interaction)
	return nil
}

// ListByUser implements domain.InteractionRepository, oldest first
func (l *InteractionLog) ListByUser(ctx context.Context, userID string) ([]domain.RecommendationInteraction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]domain.RecommendationInteraction(nil), l.byUser[userID]...), nil
}
