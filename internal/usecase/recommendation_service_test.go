package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartwise/backend/internal/domain"
)

func newRecommendationFixture(t *testing.T, orders ...domain.Order) (*RecommendationService, *CatalogIndex, *memoryStates) {
	t.Helper()
	idx := newFixtureIndex(t)
	holder := NewCatalogHolder(idx)
	models := NewModelRegistry(nil, nil)
	guardrails, err := NewGuardrails(GuardrailConfig{})
	require.NoError(t, err)

	states := newMemoryStates()
	service := NewRecommendationService(
		holder,
		&memoryOrders{orders: orders},
		NewRetriever(RetrieverConfig{}, nil),
		models,
		NewReranker(models, guardrails),
		NewIntentTracker(&memoryEvents{}, states, holder, IntentConfig{}),
		RecommendationConfig{},
	)
	return service, idx, states
}

func purchase(t *testing.T, idx *CatalogIndex, user string, titles ...string) domain.Order {
	t.Helper()
	order := domain.Order{UserID: user}
	for _, title := range titles {
		order.Items = append(order.Items, domain.OrderItem{ProductID: productByTitle(t, idx, title).ID, Quantity: 1})
	}
	return order
}

func TestRecommendationService_RecommendForUser(t *testing.T) {
	ctx := context.Background()
	seedIdx := newFixtureIndex(t)

	t.Run("recommends unpurchased neighbours", func(t *testing.T) {
		service, idx, _ := newRecommendationFixture(t, purchase(t, seedIdx, "u1", "Organic Whole Milk"))

		result, err := service.RecommendForUser(ctx, "u1", 0)
		require.NoError(t, err)
		require.Len(t, result.Recommendations, 3)

		organic := productByTitle(t, idx, "Organic Whole Milk")
		for i, rec := range result.Recommendations {
			assert.NotEqual(t, organic.ID, rec.Product.ID)
			assert.Equal(t, organic.ID, rec.BecauseOf)
			assert.Equal(t, "Milk", rec.Product.Subcategory)
			if i > 0 {
				assert.LessOrEqual(t, rec.Score, result.Recommendations[i-1].Score)
			}
		}
		assert.Equal(t, domain.ModeBalanced, result.Intent)
	})

	t.Run("excludes everything purchased and dedupes across seeds", func(t *testing.T) {
		service, _, _ := newRecommendationFixture(t, purchase(t, seedIdx, "u1", "Organic Whole Milk", "Whole Milk"))

		result, err := service.RecommendForUser(ctx, "u1", 10)
		require.NoError(t, err)

		seen := make(map[int64]bool)
		for _, rec := range result.Recommendations {
			assert.NotContains(t, []string{"Organic Whole Milk", "Whole Milk"}, rec.Product.Title)
			assert.False(t, seen[rec.Product.ID], "duplicate %q", rec.Product.Title)
			seen[rec.Product.ID] = true
		}
		assert.Len(t, result.Recommendations, 2)
	})

	t.Run("caps at the limit", func(t *testing.T) {
		service, _, _ := newRecommendationFixture(t, purchase(t, seedIdx, "u1", "Organic Whole Milk"))

		result, err := service.RecommendForUser(ctx, "u1", 1)
		require.NoError(t, err)
		assert.Len(t, result.Recommendations, 1)
	})

	t.Run("uses stored intent without updating it", func(t *testing.T) {
		service, _, states := newRecommendationFixture(t, purchase(t, seedIdx, "u1", "Organic Whole Milk"))
		states.states["u1"] = domain.UserIntentState{UserID: "u1", EMA: 0.9, Mode: domain.ModeQuality}

		result, err := service.RecommendForUser(ctx, "u1", 0)
		require.NoError(t, err)
		assert.Equal(t, domain.ModeQuality, result.Intent)
		assert.Zero(t, states.saves)
	})

	t.Run("no purchase history", func(t *testing.T) {
		service, _, _ := newRecommendationFixture(t)

		result, err := service.RecommendForUser(ctx, "u1", 0)
		require.NoError(t, err)
		assert.Empty(t, result.Recommendations)
		assert.Equal(t, MessageNoHistory, result.Message)
	})

	t.Run("no similar products", func(t *testing.T) {
		service, _, _ := newRecommendationFixture(t, purchase(t, seedIdx, "u1", "Bananas"))

		result, err := service.RecommendForUser(ctx, "u1", 0)
		require.NoError(t, err)
		assert.Empty(t, result.Recommendations)
		assert.NotEmpty(t, result.Message)
	})

	t.Run("requires a user", func(t *testing.T) {
		service, _, _ := newRecommendationFixture(t)
		_, err := service.RecommendForUser(ctx, " ", 0)
		assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	})
}

func TestRecentDistinctProducts(t *testing.T) {
	orders := []domain.Order{
		{Items: []domain.OrderItem{{ProductID: 1}, {ProductID: 2}}},
		{Items: []domain.OrderItem{{ProductID: 2}, {ProductID: 3}}},
	}

	seeds, purchased := recentDistinctProducts(orders, 2)
	assert.Equal(t, []int64{2, 1}, seeds)
	assert.Len(t, purchased, 3)
}
