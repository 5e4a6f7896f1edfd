package domain

import "time"

// InteractionEvent is the kind of feedback logged against a recommendation
type InteractionEvent string

const (
	InteractionShown     InteractionEvent = "shown"
	InteractionAccepted  InteractionEvent = "accepted"
	InteractionDismissed InteractionEvent = "dismissed"
	InteractionRemoved   InteractionEvent = "removed"
)

// Valid reports whether the event is known
func (e InteractionEvent) Valid() bool {
	switch e {
	case InteractionShown, InteractionAccepted, InteractionDismissed, InteractionRemoved:
		return true
	}
	return false
}

// RecommendationInteraction is an append-only log entry used for analytics
// and retraining. It is never read by the live scoring path.
type RecommendationInteraction struct {
	ID               string           `json:"id"`
	RecommendationID string           `json:"recommendationId"`
	UserID           string           `json:"userId" binding:"required"`
	SourceProductID  int64            `json:"sourceProductId"`
	ProductID        int64            `json:"productId" binding:"required"`
	Event            InteractionEvent `json:"event" binding:"required"`
	Score            float64          `json:"score"`
	At               time.Time        `json:"at"`
}
