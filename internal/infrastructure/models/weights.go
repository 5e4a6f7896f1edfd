package models

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"

	"github.com/cartwise/backend/internal/domain"
)

// FileWeightStore persists blend weights as a JSON file
type FileWeightStore struct {
	path string
	mu   sync.Mutex
}

// NewFileWeightStore creates a weight store at path
func NewFileWeightStore(path string) *FileWeightStore {
	return &FileWeightStore{path: path}
}

// LoadWeights implements domain.WeightStore. A missing file returns
// ErrModelUnavailable so callers fall back to fixed weights.
func (s *FileWeightStore) LoadWeights(ctx context.Context) (*domain.BlendWeights, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var w domain.BlendWeights
	if err := readJSON(s.path, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// SaveWeights implements domain.WeightStore. The file is replaced with a
// rename so readers never see a partial write.
func (s *FileWeightStore) SaveWeights(ctx context.Context, weights *domain.BlendWeights) error {
	if weights == nil {
		return errors.New("nil weights")
	}
	if s.path == "" {
		return fmt.Errorf("%w: no weights path configured", domain.ErrModelUnavailable)
	}

	data, err := json.MarshalIndent(weights, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding weights: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating weights dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing weights: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing weights: %w", err)
	}
	return nil
}
