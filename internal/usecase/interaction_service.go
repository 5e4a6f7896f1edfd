package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cartwise/backend/internal/domain"
	"github.com/cartwise/backend/internal/logging"
)

// InteractionService records feedback on shown recommendations. The log is
// read for analytics and training only, never while scoring.
type InteractionService struct {
	repo domain.InteractionRepository
	now  func() time.Time
}

// NewInteractionService creates an interaction service
func NewInteractionService(repo domain.InteractionRepository) *InteractionService {
	return &InteractionService{repo: repo, now: time.Now}
}

// RecordInteraction validates the event, assigns an id and timestamp and
// appends it to the log
func (s *InteractionService) RecordInteraction(ctx context.Context, interaction domain.RecommendationInteraction) (*domain.RecommendationInteraction, error) {
	if strings.TrimSpace(interaction.UserID) == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrInvalidRequest)
	}
	if interaction.ProductID == 0 {
		return nil, fmt.Errorf("%w: product id is required", domain.ErrInvalidRequest)
	}
	if !interaction.Event.Valid() {
		return nil, fmt.Errorf("%w: unknown interaction event %q", domain.ErrInvalidRequest, interaction.Event)
	}

	interaction.ID = uuid.NewString()
	if interaction.At.IsZero() {
		interaction.At = s.now().UTC()
	}

	if err := s.repo.Append(ctx, interaction); err != nil {
		return nil, fmt.Errorf("appending interaction: %w", err)
	}

	logging.Debug().
		Str("user_id", interaction.UserID).
		Int64("product_id", interaction.ProductID).
		Str("event", string(interaction.Event)).
		Msg("[INTERACTION] recorded")

	return &interaction, nil
}

// List returns a user's interactions in the order they were recorded
func (s *InteractionService) List(ctx context.Context, userID string) ([]domain.RecommendationInteraction, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrInvalidRequest)
	}
	return s.repo.ListByUser(ctx, userID)
}
