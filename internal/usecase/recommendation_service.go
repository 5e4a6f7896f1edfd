package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cartwise/backend/internal/domain"
	"github.com/cartwise/backend/internal/logging"
)

// MessageNoHistory is returned to users who have never checked out
const MessageNoHistory = "no purchase history yet"

// RecommendationConfig holds configuration for personalized recommendations
type RecommendationConfig struct {
	SeedProducts int // Most recent distinct purchases used as seeds
	DefaultLimit int
	MaxLimit     int
}

// RecommendationService suggests products similar to what a user bought
type RecommendationService struct {
	catalog   *CatalogHolder
	history   domain.PurchaseHistoryRepository
	retriever *Retriever
	models    *ModelRegistry
	reranker  *Reranker
	intent    *IntentTracker
	config    RecommendationConfig
	now       func() time.Time
}

// NewRecommendationService creates a recommendation service
func NewRecommendationService(
	catalog *CatalogHolder,
	history domain.PurchaseHistoryRepository,
	retriever *Retriever,
	models *ModelRegistry,
	reranker *Reranker,
	intent *IntentTracker,
	config RecommendationConfig,
) *RecommendationService {
	if config.SeedProducts <= 0 {
		config.SeedProducts = 5
	}
	if config.DefaultLimit <= 0 {
		config.DefaultLimit = 10
	}
	if config.MaxLimit <= 0 {
		config.MaxLimit = 50
	}
	return &RecommendationService{
		catalog:   catalog,
		history:   history,
		retriever: retriever,
		models:    models,
		reranker:  reranker,
		intent:    intent,
		config:    config,
		now:       time.Now,
	}
}

// RecommendForUser blends CF and content similarity over the neighbours of
// the user's recent purchases, then re-ranks with the user's current intent
func (s *RecommendationService) RecommendForUser(ctx context.Context, userID string, limit int) (*domain.RecommendationResult, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrInvalidRequest)
	}
	if limit <= 0 {
		limit = s.config.DefaultLimit
	}
	limit = min(limit, s.config.MaxLimit)

	result := &domain.RecommendationResult{
		UserID:          userID,
		Intent:          domain.ModeBalanced,
		Recommendations: []domain.Recommendation{},
	}

	orders, err := s.history.OrdersByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading purchase history: %w", err)
	}

	seeds, purchased := recentDistinctProducts(orders, s.config.SeedProducts)
	if len(seeds) == 0 {
		result.Message = MessageNoHistory
		return result, nil
	}

	idx := s.catalog.Current()
	if idx == nil {
		result.Message = MessageCatalogNotLoaded
		return result, nil
	}

	intent := domain.IntentResult{UserID: userID, Raw: neutralIntent, EMA: neutralIntent, Mode: domain.ModeBalanced}
	if s.intent != nil {
		state := s.intent.Current(ctx, userID)
		intent.EMA = state.EMA
		intent.Mode = state.Mode
	}
	result.Intent = intent.Mode

	// Best candidate per recommended product across all seeds
	best := make(map[int64]int)
	var candidates []domain.Candidate

	for _, id := range seeds {
		seed, ok := idx.Get(id)
		if !ok {
			continue
		}
		for _, m := range s.retriever.Similar(idx, seed, purchased) {
			c := NewCandidate(seed, m)
			c.CFScore, _ = s.models.CFScore(userID, c.Replacement.ID)
			c.BlendScore = LinearRankScore(&c)

			if i, seen := best[c.Replacement.ID]; seen {
				if c.BlendScore > candidates[i].BlendScore {
					candidates[i] = c
				}
				continue
			}
			best[c.Replacement.ID] = len(candidates)
			candidates = append(candidates, c)
		}
	}

	if len(candidates) == 0 {
		result.Message = "no similar products found for your purchases"
		return result, nil
	}

	rc := RankContext{Cart: domain.Cart{UserID: userID}, Intent: intent, Now: s.now()}
	ranked := s.reranker.Rerank(ctx, rc, candidates).Candidates
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	for _, c := range ranked {
		result.Recommendations = append(result.Recommendations, domain.Recommendation{
			Product:    c.Replacement,
			BecauseOf:  c.Source.ID,
			CFScore:    c.CFScore,
			Similarity: c.Similarity,
			Score:      c.RankScore,
		})
	}

	logging.Info().
		Str("user_id", userID).
		Int("seeds", len(seeds)).
		Int("candidates", len(candidates)).
		Int("returned", len(result.Recommendations)).
		Msg("[RECOMMEND] recommendations computed")

	return result, nil
}

// recentDistinctProducts returns up to n distinct purchased product ids,
// most recent first, and the set of everything the user bought
func recentDistinctProducts(orders []domain.Order, n int) ([]int64, map[int64]bool) {
	purchased := make(map[int64]bool)
	var seeds []int64
	for _, order := range orders {
		for i := len(order.Items) - 1; i >= 0; i-- {
			id := order.Items[i].ProductID
			if purchased[id] {
				continue
			}
			purchased[id] = true
			if len(seeds) < n {
				seeds = append(seeds, id)
			}
		}
	}
	return seeds, purchased
}
