package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cartwise/backend/internal/domain"
	"github.com/cartwise/backend/internal/logging"
	"github.com/cartwise/backend/internal/metrics"
)

// WeightTrainer fits new blend weights
type WeightTrainer interface {
	Train(ctx context.Context) (*domain.BlendWeights, error)
}

// RetrainerConfig holds configuration for background retraining
type RetrainerConfig struct {
	Timeout time.Duration // Max duration of a single run
}

// Retrainer refits blend weights in the background. Only one run is active
// at a time; triggers that arrive during a run are dropped.
type Retrainer struct {
	trainer WeightTrainer
	blender *Blender
	timeout time.Duration

	running atomic.Bool
	wg      sync.WaitGroup
}

// NewRetrainer creates a retrainer that installs new weights into blender
func NewRetrainer(trainer WeightTrainer, blender *Blender, config RetrainerConfig) *Retrainer {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Retrainer{
		trainer: trainer,
		blender: blender,
		timeout: timeout,
	}
}

// Trigger starts a background run. It returns ErrRetrainInProgress when a
// run is already active.
func (r *Retrainer) Trigger() error {
	if !r.running.CompareAndSwap(false, true) {
		metrics.RetrainRuns.WithLabelValues("skipped").Inc()
		logging.Info().Msg("[RETRAIN] already running, trigger dropped")
		return domain.ErrRetrainInProgress
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.running.Store(false)

		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		r.run(ctx)
	}()
	return nil
}

// RunNow runs a retrain synchronously
func (r *Retrainer) RunNow(ctx context.Context) (*domain.BlendWeights, error) {
	if !r.running.CompareAndSwap(false, true) {
		metrics.RetrainRuns.WithLabelValues("skipped").Inc()
		return nil, domain.ErrRetrainInProgress
	}
	defer r.running.Store(false)
	return r.run(ctx)
}

// Running reports whether a run is active
func (r *Retrainer) Running() bool {
	return r.running.Load()
}

// Wait blocks until background runs have finished
func (r *Retrainer) Wait() {
	r.wg.Wait()
}

func (r *Retrainer) run(ctx context.Context) (*domain.BlendWeights, error) {
	start := time.Now()

	weights, err := r.trainer.Train(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNoTrainingData) {
			metrics.RetrainRuns.WithLabelValues("skipped").Inc()
			logging.Info().Err(err).Msg("[RETRAIN] not enough history, keeping current weights")
		} else {
			metrics.RetrainRuns.WithLabelValues("failure").Inc()
			logging.Error().Err(err).Msg("[RETRAIN] training failed, keeping current weights")
		}
		return nil, err
	}

	r.blender.SetWeights(weights)
	metrics.RetrainRuns.WithLabelValues("success").Inc()
	logging.Info().Dur("took", time.Since(start)).Int("samples", weights.Samples).Msg("[RETRAIN] blend weights swapped")
	return weights, nil
}
