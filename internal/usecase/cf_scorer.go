package usecase

import (
	"fmt"
	"math"
	"strconv"
	"sync"

	"github.com/cartwise/backend/internal/domain"
)

// neutralCFScore is returned for users or products the model has not seen
const neutralCFScore = 0.5

// FactorModel is a trained matrix-factorization model:
// score = sigmoid(user . item + user bias + item bias + global bias)
type FactorModel struct {
	UserFactors map[string][]float64 `json:"user_factors"`
	ItemFactors map[string][]float64 `json:"item_factors"` // Keyed by decimal product id
	UserBias    map[string]float64   `json:"user_bias,omitempty"`
	ItemBias    map[string]float64   `json:"item_bias,omitempty"`
	GlobalBias  float64              `json:"global_bias,omitempty"`
}

// Validate checks that all factor vectors share one dimension
func (m *FactorModel) Validate() error {
	dim := -1
	check := func(kind, key string, v []float64) error {
		if dim < 0 {
			dim = len(v)
		}
		if len(v) != dim || dim == 0 {
			return fmt.Errorf("%w: %s factor %q has dimension %d, want %d", domain.ErrModelUnavailable, kind, key, len(v), dim)
		}
		return nil
	}
	for k, v := range m.UserFactors {
		if err := check("user", k, v); err != nil {
			return err
		}
	}
	for k, v := range m.ItemFactors {
		if err := check("item", k, v); err != nil {
			return err
		}
	}
	return nil
}

// Score implements domain.CFModel
func (m *FactorModel) Score(userID string, productID int64) (float64, bool) {
	if m == nil {
		return neutralCFScore, false
	}
	itemKey := strconv.FormatInt(productID, 10)
	u, okU := m.UserFactors[userID]
	v, okV := m.ItemFactors[itemKey]
	if !okU || !okV || len(u) != len(v) {
		return neutralCFScore, false
	}

	logit := m.GlobalBias + m.UserBias[userID] + m.ItemBias[itemKey]
	for i := range u {
		logit += u[i] * v[i]
	}
	return sigmoid(logit), true
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// ModelRegistry holds the live CF and ranking models. Models are swapped
// whole by the loader or the file watcher.
type ModelRegistry struct {
	mu      sync.RWMutex
	cf      domain.CFModel
	ranking domain.RankingModel
}

// NewModelRegistry creates a registry; either model may be nil
func NewModelRegistry(cf domain.CFModel, ranking domain.RankingModel) *ModelRegistry {
	return &ModelRegistry{cf: cf, ranking: ranking}
}

// SetCF installs a CF model
func (r *ModelRegistry) SetCF(cf domain.CFModel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cf = cf
}

// SetRanking installs a ranking model
func (r *ModelRegistry) SetRanking(ranking domain.RankingModel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ranking = ranking
}

// Ranking returns the ranking model or nil
func (r *ModelRegistry) Ranking() domain.RankingModel {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ranking
}

// CFScore scores a (user, product) pair, neutral when no model is loaded
func (r *ModelRegistry) CFScore(userID string, productID int64) (float64, bool) {
	if r == nil {
		return neutralCFScore, false
	}
	r.mu.RLock()
	cf := r.cf
	r.mu.RUnlock()

	if cf == nil {
		return neutralCFScore, false
	}
	return cf.Score(userID, productID)
}
