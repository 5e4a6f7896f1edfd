package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cartwise/backend/internal/domain"
	"github.com/cartwise/backend/internal/logging"
)

// Linear fallback weights used when the ranking model is unavailable
const (
	fallbackRankCFWeight         = 0.6
	fallbackRankSimilarityWeight = 0.4
)

// FeatureNames is the ranking model's input column order
var FeatureNames = []string{
	"cf_score",
	"similarity",
	"price_saving",
	"price_saving_pct",
	"price_ratio",
	"candidate_price",
	"source_price",
	"budget_pressure",
	"over_budget_amount",
	"cart_size",
	"cart_value",
	"hour_of_day",
	"day_of_week",
	"is_weekend",
	"intent_ema",
	"intent_quality",
	"intent_economy",
	"health_gain",
	"size_ratio",
	"same_brand",
	"blend_score",
}

// RankContext is the request-level context features are computed from
type RankContext struct {
	Cart   domain.Cart
	Intent domain.IntentResult
	Now    time.Time
}

// RerankResult is the re-ranked candidate list
type RerankResult struct {
	Candidates        []domain.Candidate
	Strategy          string // "gbdt" or "linear"
	GuardrailBypassed bool
}

// Reranker applies intent guardrails and orders candidates with the ranking
// model, falling back to a linear CF/similarity blend
type Reranker struct {
	models     *ModelRegistry
	guardrails *Guardrails
}

// NewReranker creates a re-ranker
func NewReranker(models *ModelRegistry, guardrails *Guardrails) *Reranker {
	return &Reranker{models: models, guardrails: guardrails}
}

// Rerank filters and orders candidates. The result never has more
// candidates than the input.
func (r *Reranker) Rerank(ctx context.Context, rc RankContext, candidates []domain.Candidate) RerankResult {
	if len(candidates) == 0 {
		return RerankResult{Candidates: candidates}
	}

	mode := rc.Intent.Mode
	if mode == "" {
		mode = domain.ModeBalanced
	}

	kept := candidates
	var bypassed bool
	if r.guardrails != nil {
		kept, bypassed = r.guardrails.Filter(mode, candidates)
	}

	// Work on a copy so the caller's slice order is untouched
	ranked := make([]domain.Candidate, len(kept))
	copy(ranked, kept)

	rows := make([][]float64, len(ranked))
	for i := range ranked {
		rows[i] = BuildFeatures(rc, &ranked[i])
	}

	result := RunStrategies(ctx, "rerank",
		Strategy[[]float64]{
			Name: "gbdt",
			Run: func(context.Context) ([]float64, error) {
				return r.predictModel(rows)
			},
		},
		Strategy[[]float64]{
			Name: "linear",
			Run: func(context.Context) ([]float64, error) {
				scores := make([]float64, len(ranked))
				for i := range ranked {
					scores[i] = LinearRankScore(&ranked[i])
				}
				return scores, nil
			},
		},
	)

	if result.OK() {
		for i := range ranked {
			ranked[i].RankScore = result.Value[i]
		}
	}

	sort.SliceStable(ranked, func(a, b int) bool {
		if ranked[a].RankScore != ranked[b].RankScore {
			return ranked[a].RankScore > ranked[b].RankScore
		}
		return ranked[a].Saving > ranked[b].Saving
	})

	logging.Debug().
		Str("mode", string(mode)).
		Str("strategy", result.Strategy).
		Int("input", len(candidates)).
		Int("ranked", len(ranked)).
		Bool("guardrail_bypassed", bypassed).
		Msg("[RERANK] candidates ranked")

	return RerankResult{Candidates: ranked, Strategy: result.Strategy, GuardrailBypassed: bypassed}
}

func (r *Reranker) predictModel(rows [][]float64) ([]float64, error) {
	model := r.models.Ranking()
	if model == nil {
		return nil, domain.ErrModelUnavailable
	}
	if model.NumFeatures() != len(FeatureNames) {
		return nil, fmt.Errorf("%w: model expects %d features, have %d", domain.ErrModelUnavailable, model.NumFeatures(), len(FeatureNames))
	}

	scores := make([]float64, len(rows))
	for i, row := range rows {
		score, err := model.Predict(row)
		if err != nil {
			return nil, err
		}
		scores[i] = score
	}
	return scores, nil
}

// LinearRankScore is the ranking fallback: 0.6*cf + 0.4*similarity
func LinearRankScore(c *domain.Candidate) float64 {
	return fallbackRankCFWeight*c.CFScore + fallbackRankSimilarityWeight*c.Similarity
}

// BuildFeatures returns the candidate's feature vector in FeatureNames order
func BuildFeatures(rc RankContext, c *domain.Candidate) []float64 {
	cartValue := rc.Cart.Total()
	budgetPressure := 0.0
	if rc.Cart.Budget > 0 {
		budgetPressure = cartValue / rc.Cart.Budget
	}

	now := rc.Now
	if now.IsZero() {
		now = time.Now()
	}
	weekday := now.Weekday()

	return []float64{
		c.CFScore,
		c.Similarity,
		c.Saving,
		c.SavingPct,
		c.PriceRatio(),
		c.Replacement.Price,
		c.Source.Price,
		budgetPressure,
		rc.Cart.Overage(),
		float64(len(rc.Cart.Items)),
		cartValue,
		float64(now.Hour()),
		float64(weekday),
		boolFeature(weekday == time.Saturday || weekday == time.Sunday),
		rc.Intent.EMA,
		boolFeature(rc.Intent.Mode == domain.ModeQuality),
		boolFeature(rc.Intent.Mode == domain.ModeEconomy),
		boolFeature(c.HealthGain),
		c.SizeRatio,
		boolFeature(c.HasReason(domain.ReasonSameBrand)),
		c.BlendScore,
	}
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
