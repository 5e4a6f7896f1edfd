package models

import (
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/cartwise/backend/internal/domain"
	"github.com/cartwise/backend/internal/infrastructure/breaker"
)

// BreakerConfig holds circuit breaker settings for model prediction
type BreakerConfig struct {
	FailureThreshold uint32
	Timeout          time.Duration
}

// BreakerRanker guards a ranking model with a circuit breaker. While the
// breaker is open Predict fails fast with ErrModelUnavailable and the
// re-ranker uses its linear fallback.
type BreakerRanker struct {
	model   domain.RankingModel
	breaker *gobreaker.CircuitBreaker[float64]
}

// NewBreakerRanker wraps model
func NewBreakerRanker(model domain.RankingModel, config BreakerConfig) *BreakerRanker {
	return &BreakerRanker{
		model: model,
		breaker: breaker.New[float64](breaker.Config{
			Name:             "ranking_model",
			FailureThreshold: config.FailureThreshold,
			Timeout:          config.Timeout,
		}),
	}
}

// NumFeatures implements domain.RankingModel
func (r *BreakerRanker) NumFeatures() int {
	return r.model.NumFeatures()
}

// Predict implements domain.RankingModel
func (r *BreakerRanker) Predict(features []float64) (float64, error) {
	score, err := r.breaker.Execute(func() (float64, error) {
		return r.model.Predict(features)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return 0, fmt.Errorf("%w: %v", domain.ErrModelUnavailable, err)
	}
	return score, err
}

// State returns the breaker state
func (r *BreakerRanker) State() gobreaker.State {
	return r.breaker.State()
}
