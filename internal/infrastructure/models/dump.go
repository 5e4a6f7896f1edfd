package models

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/cartwise/backend/internal/domain"
	"github.com/cartwise/backend/internal/usecase"
)

const maxDumpDepth = 64

// ParseTreeDump decodes a ranking model exported by LightGBM
// (Booster.dump_model, a JSON object with tree_info) or XGBoost
// (Booster.dump_model with dump_format="json", a JSON array of trees).
// The format is picked from the first byte of the document.
func ParseTreeDump(data []byte) (*usecase.TreeEnsemble, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty model dump", domain.ErrModelUnavailable)
	}

	var (
		model *usecase.TreeEnsemble
		err   error
	)
	switch data[0] {
	case '{':
		model, err = parseLightGBM(data)
	case '[':
		model, err = parseXGBoost(data)
	default:
		return nil, fmt.Errorf("%w: unrecognized model dump", domain.ErrModelUnavailable)
	}
	if err != nil {
		return nil, err
	}
	if err := model.Validate(); err != nil {
		return nil, err
	}
	return model, nil
}

type lightGBMDump struct {
	MaxFeatureIdx *int     `json:"max_feature_idx"`
	FeatureNames  []string `json:"feature_names"`
	TreeInfo      []struct {
		TreeIndex     int           `json:"tree_index"`
		TreeStructure *lightGBMNode `json:"tree_structure"`
	} `json:"tree_info"`
}

type lightGBMNode struct {
	SplitFeature *int          `json:"split_feature"`
	Threshold    any           `json:"threshold"`
	DecisionType string        `json:"decision_type"`
	DefaultLeft  bool          `json:"default_left"`
	MissingType  string        `json:"missing_type"`
	LeftChild    *lightGBMNode `json:"left_child"`
	RightChild   *lightGBMNode `json:"right_child"`
	LeafValue    *float64      `json:"leaf_value"`
}

func parseLightGBM(data []byte) (*usecase.TreeEnsemble, error) {
	var dump lightGBMDump
	if err := json.Unmarshal(data, &dump); err != nil {
		return nil, fmt.Errorf("%w: decoding lightgbm dump: %v", domain.ErrModelUnavailable, err)
	}

	model := &usecase.TreeEnsemble{NumFeature: len(dump.FeatureNames)}
	if dump.MaxFeatureIdx != nil {
		model.NumFeature = *dump.MaxFeatureIdx + 1
	}

	for _, info := range dump.TreeInfo {
		tree, err := info.TreeStructure.convert(0)
		if err != nil {
			return nil, fmt.Errorf("lightgbm tree %d: %w", info.TreeIndex, err)
		}
		model.Trees = append(model.Trees, tree)
	}
	return model, nil
}

func (n *lightGBMNode) convert(depth int) (*usecase.TreeNode, error) {
	if n == nil {
		return nil, fmt.Errorf("%w: missing node", domain.ErrModelUnavailable)
	}
	if depth > maxDumpDepth {
		return nil, fmt.Errorf("%w: tree deeper than %d", domain.ErrModelUnavailable, maxDumpDepth)
	}
	if n.SplitFeature == nil {
		if n.LeafValue == nil {
			return nil, fmt.Errorf("%w: node has neither a split nor a leaf value", domain.ErrModelUnavailable)
		}
		return &usecase.TreeNode{Leaf: true, Value: *n.LeafValue}, nil
	}

	if n.DecisionType != "" && n.DecisionType != "<=" {
		return nil, fmt.Errorf("%w: unsupported decision type %q", domain.ErrModelUnavailable, n.DecisionType)
	}
	threshold, ok := n.Threshold.(float64)
	if !ok {
		return nil, fmt.Errorf("%w: categorical split on feature %d", domain.ErrModelUnavailable, *n.SplitFeature)
	}

	left, err := n.LeftChild.convert(depth + 1)
	if err != nil {
		return nil, err
	}
	right, err := n.RightChild.convert(depth + 1)
	if err != nil {
		return nil, err
	}

	defaultLeft := n.DefaultLeft
	// Without a missing type LightGBM reads NaN as zero
	if n.MissingType == "" || n.MissingType == "None" {
		defaultLeft = 0 <= threshold
	}

	return &usecase.TreeNode{
		Feature:     *n.SplitFeature,
		Threshold:   threshold,
		DefaultLeft: defaultLeft,
		Left:        left,
		Right:       right,
	}, nil
}

type xgboostNode struct {
	NodeID         int            `json:"nodeid"`
	Split          any            `json:"split"`
	SplitCondition float64        `json:"split_condition"`
	Yes            int            `json:"yes"`
	No             int            `json:"no"`
	Missing        int            `json:"missing"`
	Children       []*xgboostNode `json:"children"`
	Leaf           *float64       `json:"leaf"`
}

// parseXGBoost reads an array of trees. Trees may be nested objects or the
// JSON strings returned by get_dump. The dump carries no base score, which
// only shifts every prediction and leaves the ranking unchanged.
func parseXGBoost(data []byte) (*usecase.TreeEnsemble, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: decoding xgboost dump: %v", domain.ErrModelUnavailable, err)
	}

	model := &usecase.TreeEnsemble{NumFeature: len(usecase.FeatureNames)}
	for i, item := range raw {
		item = bytes.TrimSpace(item)
		if len(item) > 0 && item[0] == '"' {
			var text string
			if err := json.Unmarshal(item, &text); err != nil {
				return nil, fmt.Errorf("%w: xgboost tree %d: %v", domain.ErrModelUnavailable, i, err)
			}
			item = []byte(text)
		}

		var root xgboostNode
		if err := json.Unmarshal(item, &root); err != nil {
			return nil, fmt.Errorf("%w: xgboost tree %d: %v", domain.ErrModelUnavailable, i, err)
		}
		tree, err := root.convert(0)
		if err != nil {
			return nil, fmt.Errorf("xgboost tree %d: %w", i, err)
		}
		model.Trees = append(model.Trees, tree)
	}
	return model, nil
}

func (n *xgboostNode) convert(depth int) (*usecase.TreeNode, error) {
	if depth > maxDumpDepth {
		return nil, fmt.Errorf("%w: tree deeper than %d", domain.ErrModelUnavailable, maxDumpDepth)
	}
	if n.Leaf != nil {
		return &usecase.TreeNode{Leaf: true, Value: *n.Leaf}, nil
	}

	feature, err := xgboostFeature(n.Split)
	if err != nil {
		return nil, err
	}

	child := func(id int) (*usecase.TreeNode, error) {
		for _, c := range n.Children {
			if c != nil && c.NodeID == id {
				return c.convert(depth + 1)
			}
		}
		return nil, fmt.Errorf("%w: node %d has no child %d", domain.ErrModelUnavailable, n.NodeID, id)
	}
	left, err := child(n.Yes)
	if err != nil {
		return nil, err
	}
	right, err := child(n.No)
	if err != nil {
		return nil, err
	}

	return &usecase.TreeNode{
		Feature:     feature,
		Threshold:   n.SplitCondition,
		Strict:      true,
		DefaultLeft: n.Missing == n.Yes,
		Left:        left,
		Right:       right,
	}, nil
}

// xgboostFeature resolves a split to a column: "f3", a bare index or one of
// the ranking feature names
func xgboostFeature(split any) (int, error) {
	switch v := split.(type) {
	case float64:
		return int(v), nil
	case string:
		if idx, err := strconv.Atoi(strings.TrimPrefix(v, "f")); err == nil && strings.HasPrefix(v, "f") {
			return idx, nil
		}
		for i, name := range usecase.FeatureNames {
			if name == v {
				return i, nil
			}
		}
		return 0, fmt.Errorf("%w: unknown split feature %q", domain.ErrModelUnavailable, v)
	default:
		return 0, fmt.Errorf("%w: split without a feature", domain.ErrModelUnavailable)
	}
}
