package usecase

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cartwise/backend/internal/domain"
	"github.com/cartwise/backend/internal/logging"
	"github.com/cartwise/backend/internal/metrics"
)

// Result messages
const (
	MessageWithinBudget     = "cart is within budget"
	MessageNoAlternatives   = "no cheaper similar products were found for the items in your cart"
	MessageCatalogNotLoaded = "product catalog is not loaded yet"
	MessageCoversOverage    = "these swaps bring your cart within budget"
)

// savingsEpsilon absorbs float rounding when comparing savings to overage
const savingsEpsilon = 1e-9

// SubstitutionConfig holds configuration for substitution search
type SubstitutionConfig struct {
	MaxAlternatives int // Alternatives kept per cart item
}

// SubstitutionService finds cheaper alternatives for an over-budget cart
type SubstitutionService struct {
	catalog      *CatalogHolder
	retriever    *Retriever
	blender      *Blender
	models       *ModelRegistry
	reranker     *Reranker
	intent       *IntentTracker
	interactions domain.InteractionRepository
	maxAlts      int
	now          func() time.Time
}

// NewSubstitutionService creates a substitution service. interactions may be nil.
func NewSubstitutionService(
	catalog *CatalogHolder,
	retriever *Retriever,
	blender *Blender,
	models *ModelRegistry,
	reranker *Reranker,
	intent *IntentTracker,
	interactions domain.InteractionRepository,
	config SubstitutionConfig,
) *SubstitutionService {
	maxAlts := config.MaxAlternatives
	if maxAlts <= 0 {
		maxAlts = 3
	}
	return &SubstitutionService{
		catalog:      catalog,
		retriever:    retriever,
		blender:      blender,
		models:       models,
		reranker:     reranker,
		intent:       intent,
		interactions: interactions,
		maxAlts:      maxAlts,
		now:          time.Now,
	}
}

// SuggestSubstitutions walks the cart newest item first and suggests cheaper
// similar products until the accumulated savings cover the overage
func (s *SubstitutionService) SuggestSubstitutions(ctx context.Context, cart domain.Cart) (*domain.SubstitutionResult, error) {
	if strings.TrimSpace(cart.UserID) == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrInvalidRequest)
	}
	if cart.Budget <= 0 {
		return nil, fmt.Errorf("%w: budget must be positive", domain.ErrInvalidRequest)
	}

	now := s.now()
	idx := s.catalog.Current()
	cart, unpriced := priceFromCatalog(idx, cart)
	total := cart.Total()
	overage := cart.Overage()

	result := &domain.SubstitutionResult{
		CartTotal:   round2(total),
		Budget:      cart.Budget,
		Overage:     round2(overage),
		Intent:      domain.ModeBalanced,
		Suggestions: []domain.Suggestion{},
	}

	// Without a catalog an unpriced line makes the total unknowable
	if idx == nil && unpriced {
		result.Message = MessageCatalogNotLoaded
		metrics.SuggestionsReturned.Observe(0)
		return result, nil
	}

	if total <= cart.Budget {
		result.CoversOverage = true
		result.Message = MessageWithinBudget
		metrics.SuggestionsReturned.Observe(0)
		return result, nil
	}

	if idx == nil {
		result.Shortfall = result.Overage
		result.Message = MessageCatalogNotLoaded
		metrics.SuggestionsReturned.Observe(0)
		return result, nil
	}

	intent := s.computeIntent(ctx, cart.UserID, now)
	result.Intent = intent.Mode
	rc := RankContext{Cart: cart, Intent: intent, Now: now}

	saved := 0.0
	for _, item := range cart.MostRecentFirst() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		suggestion, ok := s.suggestForItem(ctx, idx, rc, item)
		if !ok {
			continue
		}

		result.Suggestions = append(result.Suggestions, suggestion)
		saved += suggestion.Saving
		s.logShown(ctx, cart.UserID, suggestion, now)

		if saved+savingsEpsilon >= overage {
			break
		}
	}

	result.TotalSavings = round2(saved)
	result.CoversOverage = saved+savingsEpsilon >= overage
	result.Shortfall = round2(math.Max(0, overage-saved))

	switch {
	case len(result.Suggestions) == 0:
		result.Message = MessageNoAlternatives
	case result.CoversOverage:
		result.Message = MessageCoversOverage
	default:
		result.Message = fmt.Sprintf("these swaps save $%.2f; your cart is still $%.2f over budget", result.TotalSavings, result.Shortfall)
	}

	metrics.SuggestionsReturned.Observe(float64(len(result.Suggestions)))

	logging.Info().
		Str("user_id", cart.UserID).
		Float64("total", result.CartTotal).
		Float64("budget", cart.Budget).
		Float64("savings", result.TotalSavings).
		Int("suggestions", len(result.Suggestions)).
		Str("intent", string(intent.Mode)).
		Msg("[SUBSTITUTE] suggestions computed")

	return result, nil
}

// priceFromCatalog returns a copy of cart whose lines without a price
// snapshot carry the catalog price. unpriced reports lines left at zero.
func priceFromCatalog(idx *CatalogIndex, cart domain.Cart) (priced domain.Cart, unpriced bool) {
	priced = cart
	priced.Items = make([]domain.CartItem, len(cart.Items))
	for i, item := range cart.Items {
		if item.PriceSnapshot <= 0 && idx != nil {
			if product, ok := idx.Get(item.ProductID); ok {
				item.PriceSnapshot = product.Price
			}
		}
		if item.PriceSnapshot <= 0 {
			unpriced = true
		}
		priced.Items[i] = item
	}
	return priced, unpriced
}

func (s *SubstitutionService) suggestForItem(
	ctx context.Context,
	idx *CatalogIndex,
	rc RankContext,
	item domain.CartItem,
) (domain.Suggestion, bool) {
	product, ok := idx.Get(item.ProductID)
	if !ok {
		logging.Debug().Int64("product_id", item.ProductID).Msg("[SUBSTITUTE] cart item not in catalog, skipping")
		return domain.Suggestion{}, false
	}

	// The price the user sees in the cart is what a swap saves against
	if item.PriceSnapshot > 0 {
		product.Price = item.PriceSnapshot
	}

	matches := s.retriever.Retrieve(idx, product, product.Price)
	if len(matches) == 0 {
		return domain.Suggestion{}, false
	}

	candidates := make([]domain.Candidate, 0, len(matches))
	for _, m := range matches {
		c := NewCandidate(product, m)
		c.CFScore, _ = s.models.CFScore(rc.Cart.UserID, c.Replacement.ID)
		candidates = append(candidates, c)
	}

	s.blender.BlendAll(ctx, candidates)
	ranked := s.reranker.Rerank(ctx, rc, candidates).Candidates

	alts := make([]domain.Candidate, 0, s.maxAlts)
	for _, c := range ranked {
		if !cheaperBy(c.Replacement.Price, product.Price) {
			continue
		}
		alts = append(alts, c)
		if len(alts) == s.maxAlts {
			break
		}
	}
	if len(alts) == 0 {
		return domain.Suggestion{}, false
	}

	qty := item.Quantity
	if qty <= 0 {
		qty = 1
	}

	return domain.Suggestion{
		RecommendationID: uuid.NewString(),
		Source:           product,
		Quantity:         qty,
		Alternatives:     alts,
		Saving:           round2(alts[0].Saving * float64(qty)),
		Reason:           ExplainCandidate(&alts[0]),
		Flags:            alts[0].Reasons,
	}, true
}

func (s *SubstitutionService) computeIntent(ctx context.Context, userID string, now time.Time) domain.IntentResult {
	neutral := domain.IntentResult{UserID: userID, Raw: neutralIntent, EMA: neutralIntent, Mode: domain.ModeBalanced}
	if s.intent == nil {
		return neutral
	}

	intent, err := s.intent.Compute(ctx, userID, now)
	if err != nil {
		logging.Warn().Err(err).Str("user_id", userID).Msg("[SUBSTITUTE] intent unavailable, ranking as balanced")
		return neutral
	}
	return intent
}

func (s *SubstitutionService) logShown(ctx context.Context, userID string, suggestion domain.Suggestion, at time.Time) {
	if s.interactions == nil {
		return
	}
	for _, alt := range suggestion.Alternatives {
		err := s.interactions.Append(ctx, domain.RecommendationInteraction{
			ID:               uuid.NewString(),
			RecommendationID: suggestion.RecommendationID,
			UserID:           userID,
			SourceProductID:  suggestion.Source.ID,
			ProductID:        alt.Replacement.ID,
			Event:            domain.InteractionShown,
			Score:            alt.RankScore,
			At:               at,
		})
		if err != nil {
			logging.Warn().Err(err).Str("user_id", userID).Msg("[SUBSTITUTE] failed to log shown interaction")
			return
		}
	}
}
