package usecase

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/cartwise/backend/internal/domain"
	"github.com/cartwise/backend/internal/logging"
)

// ElasticNetConfig holds Elastic-Net regularization settings.
// The objective is
//
//	1/(2n) * ||y - Xw - b||^2 + alpha*l1Ratio*||w||_1 + alpha*(1-l1Ratio)/2 * ||w||^2
type ElasticNetConfig struct {
	Alpha     float64
	L1Ratio   float64
	MaxIter   int
	Tolerance float64
}

// ElasticNet fits a linear model with combined L1/L2 penalties by
// coordinate descent on standardized features
type ElasticNet struct {
	alpha     float64
	l1Ratio   float64
	maxIter   int
	tolerance float64
}

// NewElasticNet creates an Elastic-Net regressor with defaults for zero values
func NewElasticNet(config ElasticNetConfig) *ElasticNet {
	if config.Alpha <= 0 {
		config.Alpha = 0.01
	}
	if config.L1Ratio < 0 || config.L1Ratio > 1 {
		config.L1Ratio = 0.5
	}
	if config.MaxIter <= 0 {
		config.MaxIter = 1000
	}
	if config.Tolerance <= 0 {
		config.Tolerance = 1e-6
	}
	return &ElasticNet{
		alpha:     config.Alpha,
		l1Ratio:   config.L1Ratio,
		maxIter:   config.MaxIter,
		tolerance: config.Tolerance,
	}
}

// Fit returns coefficients in the original feature scale and the intercept.
// Constant columns get a zero coefficient.
func (e *ElasticNet) Fit(ctx context.Context, x [][]float64, y []float64) ([]float64, float64, error) {
	n := len(x)
	if n == 0 || n != len(y) {
		return nil, 0, fmt.Errorf("%w: %d rows, %d targets", domain.ErrNoTrainingData, n, len(y))
	}
	p := len(x[0])
	for i, row := range x {
		if len(row) != p {
			return nil, 0, fmt.Errorf("%w: row %d has %d features, want %d", domain.ErrInvalidRequest, i, len(row), p)
		}
	}

	means := make([]float64, p)
	stds := make([]float64, p)
	for j := 0; j < p; j++ {
		for i := 0; i < n; i++ {
			means[j] += x[i][j]
		}
		means[j] /= float64(n)
		for i := 0; i < n; i++ {
			d := x[i][j] - means[j]
			stds[j] += d * d
		}
		stds[j] = math.Sqrt(stds[j] / float64(n))
	}

	yMean := 0.0
	for _, v := range y {
		yMean += v
	}
	yMean /= float64(n)

	// z is the standardized design matrix, column-major
	z := make([][]float64, p)
	for j := 0; j < p; j++ {
		z[j] = make([]float64, n)
		if stds[j] == 0 {
			continue
		}
		for i := 0; i < n; i++ {
			z[j][i] = (x[i][j] - means[j]) / stds[j]
		}
	}

	residual := make([]float64, n)
	for i := range y {
		residual[i] = y[i] - yMean
	}

	w := make([]float64, p)
	l1 := e.alpha * e.l1Ratio
	l2 := e.alpha * (1 - e.l1Ratio)

	for iter := 0; iter < e.maxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}

		maxDelta := 0.0
		for j := 0; j < p; j++ {
			if stds[j] == 0 {
				continue
			}

			// rho = (1/n) * z_j . (residual + z_j*w_j); (1/n)*||z_j||^2 == 1
			rho := 0.0
			for i := 0; i < n; i++ {
				rho += z[j][i] * (residual[i] + z[j][i]*w[j])
			}
			rho /= float64(n)

			updated := softThreshold(rho, l1) / (1 + l2)
			delta := updated - w[j]
			if delta != 0 {
				for i := 0; i < n; i++ {
					residual[i] -= delta * z[j][i]
				}
				w[j] = updated
			}
			maxDelta = math.Max(maxDelta, math.Abs(delta))
		}

		if maxDelta < e.tolerance {
			break
		}
	}

	coef := make([]float64, p)
	intercept := yMean
	for j := 0; j < p; j++ {
		if stds[j] == 0 {
			continue
		}
		coef[j] = w[j] / stds[j]
		intercept -= coef[j] * means[j]
	}

	return coef, intercept, nil
}

func softThreshold(v, lambda float64) float64 {
	switch {
	case v > lambda:
		return v - lambda
	case v < -lambda:
		return v + lambda
	default:
		return 0
	}
}

// BlendTrainerConfig holds configuration for fitting blend weights
type BlendTrainerConfig struct {
	AlternativesPerPurchase int
	MinSamples              int
	ElasticNet              ElasticNetConfig
}

// BlendTrainer fits blend weights from implicit purchase-vs-alternative pairs
type BlendTrainer struct {
	catalog *CatalogHolder
	history domain.PurchaseHistoryRepository
	store   domain.WeightStore
	model   *ElasticNet
	altsPer int
	minRows int
}

// NewBlendTrainer creates a blend trainer. store may be nil.
func NewBlendTrainer(
	catalog *CatalogHolder,
	history domain.PurchaseHistoryRepository,
	store domain.WeightStore,
	config BlendTrainerConfig,
) *BlendTrainer {
	if config.AlternativesPerPurchase <= 0 {
		config.AlternativesPerPurchase = 5
	}
	if config.MinSamples <= 0 {
		config.MinSamples = 10
	}
	return &BlendTrainer{
		catalog: catalog,
		history: history,
		store:   store,
		model:   NewElasticNet(config.ElasticNet),
		altsPer: config.AlternativesPerPurchase,
		minRows: config.MinSamples,
	}
}

// Train builds training pairs from all orders, fits weights and persists them
func (t *BlendTrainer) Train(ctx context.Context) (*domain.BlendWeights, error) {
	idx := t.catalog.Current()
	if idx == nil {
		return nil, domain.ErrCatalogEmpty
	}

	orders, err := t.history.AllOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading purchase history: %w", err)
	}

	x, y := BuildTrainingPairs(idx, orders, t.altsPer)
	if len(x) < t.minRows || !hasBothClasses(y) {
		return nil, fmt.Errorf("%w: %d samples", domain.ErrNoTrainingData, len(x))
	}

	coef, intercept, err := t.model.Fit(ctx, x, y)
	if err != nil {
		return nil, err
	}

	weights := &domain.BlendWeights{
		Intercept:  intercept,
		Savings:    coef[0],
		Similarity: coef[1],
		HealthGain: coef[2],
		SizeRatio:  coef[3],
		TrainedAt:  time.Now().UTC(),
		Samples:    len(x),
	}

	if t.store != nil {
		if err := t.store.SaveWeights(ctx, weights); err != nil {
			logging.Warn().Err(err).Msg("[BLEND] failed to persist weights")
		}
	}

	logging.Info().
		Int("samples", weights.Samples).
		Float64("savings", weights.Savings).
		Float64("similarity", weights.Similarity).
		Float64("health", weights.HealthGain).
		Float64("size", weights.SizeRatio).
		Msg("[BLEND] weights trained")

	return weights, nil
}

// BuildTrainingPairs turns orders into (features, target) rows: each
// purchased product compared with itself is a positive; the most similar
// same-subcategory products the user did not buy are negatives
func BuildTrainingPairs(idx *CatalogIndex, orders []domain.Order, altsPerPurchase int) ([][]float64, []float64) {
	purchasedByUser := make(map[string]map[int64]bool)
	var userOrder []string
	for _, order := range orders {
		set, ok := purchasedByUser[order.UserID]
		if !ok {
			set = make(map[int64]bool)
			purchasedByUser[order.UserID] = set
			userOrder = append(userOrder, order.UserID)
		}
		for _, item := range order.Items {
			set[item.ProductID] = true
		}
	}

	var x [][]float64
	var y []float64

	for _, user := range userOrder {
		purchased := purchasedByUser[user]
		ids := make([]int64, 0, len(purchased))
		for id := range purchased {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })

		for _, id := range ids {
			product, ok := idx.Get(id)
			if !ok {
				continue
			}

			self := BlendFeatures{Savings: 0, Similarity: 1, HealthGain: 0, SizeScore: 1}
			if !product.Size.Known() {
				self.SizeScore = 0
			}
			x = append(x, self.Vector())
			y = append(y, 1)

			var alts []Match
			for _, alt := range idx.BySubcategory(product.Subcategory) {
				if alt.ID == product.ID || purchased[alt.ID] {
					continue
				}
				alts = append(alts, Match{
					Product:    alt,
					Similarity: CosineSimilarity(product.Embedding, alt.Embedding),
					Level:      domain.MatchSubcategory,
				})
			}
			sort.SliceStable(alts, func(a, b int) bool { return alts[a].Similarity > alts[b].Similarity })
			if len(alts) > altsPerPurchase {
				alts = alts[:altsPerPurchase]
			}

			for _, alt := range alts {
				c := NewCandidate(product, alt)
				x = append(x, FeaturesFor(&c).Vector())
				y = append(y, 0)
			}
		}
	}

	return x, y
}

func hasBothClasses(y []float64) bool {
	var pos, neg bool
	for _, v := range y {
		if v > 0.5 {
			pos = true
		} else {
			neg = true
		}
	}
	return pos && neg
}
