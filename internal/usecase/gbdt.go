package usecase

import (
	"fmt"
	"math"

	"github.com/cartwise/backend/internal/domain"
)

// TreeNode is one node of a regression tree. Leaves have Leaf set.
// Split nodes send x[Feature] <= Threshold to Left, or x[Feature] < Threshold
// when Strict is set (XGBoost semantics). Missing (NaN) values follow
// DefaultLeft.
type TreeNode struct {
	Feature     int
	Threshold   float64
	Strict      bool
	DefaultLeft bool
	Left        *TreeNode
	Right       *TreeNode
	Leaf        bool
	Value       float64
}

// TreeEnsemble is a gradient-boosted tree model decoded from a LightGBM or
// XGBoost dump. Prediction is BaseScore plus the sum of every tree's leaf
// value, i.e. the raw margin.
type TreeEnsemble struct {
	BaseScore  float64
	NumFeature int
	Trees      []*TreeNode
}

// Validate checks the tree structure against the feature count
func (m *TreeEnsemble) Validate() error {
	if m.NumFeature <= 0 {
		return fmt.Errorf("%w: num_feature must be positive", domain.ErrModelUnavailable)
	}
	if len(m.Trees) == 0 {
		return fmt.Errorf("%w: ensemble has no trees", domain.ErrModelUnavailable)
	}
	for i, tree := range m.Trees {
		if err := validateNode(tree, m.NumFeature, 0); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return nil
}

const maxTreeDepth = 64

func validateNode(n *TreeNode, numFeature, depth int) error {
	if n == nil {
		return fmt.Errorf("%w: nil node", domain.ErrModelUnavailable)
	}
	if depth > maxTreeDepth {
		return fmt.Errorf("%w: tree deeper than %d", domain.ErrModelUnavailable, maxTreeDepth)
	}
	if n.Leaf {
		return nil
	}
	if n.Feature < 0 || n.Feature >= numFeature {
		return fmt.Errorf("%w: split feature %d out of range", domain.ErrModelUnavailable, n.Feature)
	}
	if err := validateNode(n.Left, numFeature, depth+1); err != nil {
		return err
	}
	return validateNode(n.Right, numFeature, depth+1)
}

// NumFeatures implements domain.RankingModel
func (m *TreeEnsemble) NumFeatures() int {
	return m.NumFeature
}

// Predict implements domain.RankingModel
func (m *TreeEnsemble) Predict(features []float64) (float64, error) {
	if len(features) != m.NumFeature {
		return 0, fmt.Errorf("%w: got %d features, model expects %d", domain.ErrInvalidRequest, len(features), m.NumFeature)
	}

	score := m.BaseScore
	for i, tree := range m.Trees {
		v, err := evalTree(tree, features)
		if err != nil {
			return 0, fmt.Errorf("tree %d: %w", i, err)
		}
		score += v
	}
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0, fmt.Errorf("%w: non-finite prediction", domain.ErrModelUnavailable)
	}
	return score, nil
}

func evalTree(n *TreeNode, x []float64) (float64, error) {
	for depth := 0; n != nil; depth++ {
		if n.Leaf {
			return n.Value, nil
		}
		if depth > maxTreeDepth {
			break
		}
		v := x[n.Feature]
		switch {
		case math.IsNaN(v):
			if n.DefaultLeft {
				n = n.Left
			} else {
				n = n.Right
			}
		case v < n.Threshold, !n.Strict && v == n.Threshold:
			n = n.Left
		default:
			n = n.Right
		}
	}
	return 0, fmt.Errorf("%w: malformed tree", domain.ErrModelUnavailable)
}
