package usecase

import (
	"context"
	"math"
	"sync/atomic"

	"github.com/cartwise/backend/internal/domain"
)

// Fixed blend used when no learned weights exist
const (
	fallbackSavingsWeight    = 0.6
	fallbackSimilarityWeight = 0.4
)

// BlendFeatures are the inputs of the blended substitution score
type BlendFeatures struct {
	Savings    float64 // Saving as a fraction of the source price, clamped to [-1,1]
	Similarity float64
	HealthGain float64 // 1 when the replacement is healthier
	SizeScore  float64 // 1 - |1 - size ratio|, 0 when size is unknown
}

// Vector returns the features in training column order
func (f BlendFeatures) Vector() []float64 {
	return []float64{f.Savings, f.Similarity, f.HealthGain, f.SizeScore}
}

// FeaturesFor extracts blend features from a candidate
func FeaturesFor(c *domain.Candidate) BlendFeatures {
	f := BlendFeatures{
		Savings:    math.Max(-1, math.Min(1, c.SavingPct)),
		Similarity: c.Similarity,
	}
	if c.HealthGain {
		f.HealthGain = 1
	}
	if c.SizeRatio > 0 {
		f.SizeScore = 1 - math.Min(math.Abs(1-c.SizeRatio), 1)
	}
	return f
}

// FixedBlend is the fallback blend: savings and similarity only
func FixedBlend(f BlendFeatures) float64 {
	return fallbackSavingsWeight*f.Savings + fallbackSimilarityWeight*f.Similarity
}

// LearnedBlend applies Elastic-Net weights to the features
func LearnedBlend(w *domain.BlendWeights, f BlendFeatures) float64 {
	return w.Intercept +
		w.Savings*f.Savings +
		w.Similarity*f.Similarity +
		w.HealthGain*f.HealthGain +
		w.SizeRatio*f.SizeScore
}

// Blender combines candidate features into one score. Weights can be
// swapped at runtime by the retrainer.
type Blender struct {
	weights atomic.Pointer[domain.BlendWeights]
}

// NewBlender creates a blender; weights may be nil
func NewBlender(weights *domain.BlendWeights) *Blender {
	b := &Blender{}
	b.SetWeights(weights)
	return b
}

// SetWeights installs learned weights; nil reverts to the fixed blend
func (b *Blender) SetWeights(weights *domain.BlendWeights) {
	b.weights.Store(weights)
}

// Weights returns the current learned weights or nil
func (b *Blender) Weights() *domain.BlendWeights {
	return b.weights.Load()
}

// BlendAll sets BlendScore on every candidate and returns the name of the
// strategy that produced the scores
func (b *Blender) BlendAll(ctx context.Context, candidates []domain.Candidate) string {
	weights := b.Weights()

	result := RunStrategies(ctx, "blend",
		Strategy[[]float64]{
			Name: "elastic_net",
			Run: func(context.Context) ([]float64, error) {
				if weights == nil {
					return nil, domain.ErrModelUnavailable
				}
				scores := make([]float64, len(candidates))
				for i := range candidates {
					scores[i] = LearnedBlend(weights, FeaturesFor(&candidates[i]))
				}
				return scores, nil
			},
		},
		Strategy[[]float64]{
			Name: "fixed",
			Run: func(context.Context) ([]float64, error) {
				scores := make([]float64, len(candidates))
				for i := range candidates {
					scores[i] = FixedBlend(FeaturesFor(&candidates[i]))
				}
				return scores, nil
			},
		},
	)

	if !result.OK() {
		return ""
	}
	for i := range candidates {
		candidates[i].BlendScore = result.Value[i]
	}
	return result.Strategy
}
