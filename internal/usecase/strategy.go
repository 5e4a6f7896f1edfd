package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/cartwise/backend/internal/logging"
	"github.com/cartwise/backend/internal/metrics"
)

// Strategy is one way of producing a stage's result. Strategies for a stage
// are tried in order, cheapest-to-trust last.
type Strategy[T any] struct {
	Name string
	Run  func(ctx context.Context) (T, error)
}

// StageResult is the outcome of running a stage's strategies
type StageResult[T any] struct {
	Value    T
	Strategy string // Name of the strategy that produced Value
	Failed   []string
	Err      error // Set only when every strategy failed
}

// OK reports whether some strategy succeeded
func (r StageResult[T]) OK() bool {
	return r.Err == nil
}

// RunStrategies tries each strategy in order and returns the first success.
// Failures are logged and counted; they never abort the chain.
func RunStrategies[T any](ctx context.Context, stage string, strategies ...Strategy[T]) StageResult[T] {
	var result StageResult[T]
	var errs []error

	for _, s := range strategies {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		value, err := runGuarded(ctx, s)
		if err != nil {
			logging.Warn().Err(err).Str("stage", stage).Str("strategy", s.Name).Msg("[FALLBACK] strategy failed")
			metrics.FallbacksTotal.WithLabelValues(stage, s.Name).Inc()
			result.Failed = append(result.Failed, s.Name)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
			continue
		}

		metrics.StrategyUsed.WithLabelValues(stage, s.Name).Inc()
		result.Value = value
		result.Strategy = s.Name
		return result
	}

	if len(errs) == 0 {
		errs = append(errs, fmt.Errorf("stage %s: no strategies", stage))
	}
	result.Err = errors.Join(errs...)
	return result
}

// runGuarded turns a panicking strategy into a failed one
func runGuarded[T any](ctx context.Context, s Strategy[T]) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.Run(ctx)
}
