package domain

import (
	"context"
	"time"
)

// Embedder turns product text into dense vectors
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// CatalogSource loads raw catalog rows
type CatalogSource interface {
	Load(ctx context.Context) ([]RawProduct, error)
}

// IntentStateStore persists the smoothed intent per user
type IntentStateStore interface {
	Get(ctx context.Context, userID string) (*UserIntentState, error)
	Save(ctx context.Context, state *UserIntentState) error
	Delete(ctx context.Context, userID string) error
}

// IntentEventRepository stores cart add/remove events
type IntentEventRepository interface {
	Append(ctx context.Context, event IntentEvent) error
	// Recent returns up to limit events newer than since, newest first
	Recent(ctx context.Context, userID string, since time.Time, limit int) ([]IntentEvent, error)
}

// PurchaseHistoryRepository stores completed orders
type PurchaseHistoryRepository interface {
	SaveOrder(ctx context.Context, order Order) error
	// OrdersByUser returns the user's orders, newest first
	OrdersByUser(ctx context.Context, userID string) ([]Order, error)
	AllOrders(ctx context.Context) ([]Order, error)
}

// InteractionRepository is the append-only recommendation interaction log
type InteractionRepository interface {
	Append(ctx context.Context, interaction RecommendationInteraction) error
	ListByUser(ctx context.Context, userID string) ([]RecommendationInteraction, error)
}

// CFModel scores a (user, product) preference
type CFModel interface {
	Score(userID string, productID int64) (float64, bool)
}

// RankingModel predicts a ranking score from a feature vector
type RankingModel interface {
	Predict(features []float64) (float64, error)
	NumFeatures() int
}

// WeightStore persists learned blend weights
type WeightStore interface {
	LoadWeights(ctx context.Context) (*BlendWeights, error)
	SaveWeights(ctx context.Context, weights *BlendWeights) error
}

// BlendWeights are Elastic-Net coefficients over the blend features
type BlendWeights struct {
	Intercept  float64   `json:"intercept"`
	Savings    float64   `json:"savings"`
	Similarity float64   `json:"similarity"`
	HealthGain float64   `json:"healthGain"`
	SizeRatio  float64   `json:"sizeRatio"`
	TrainedAt  time.Time `json:"trainedAt"`
	Samples    int       `json:"samples"`
}
