// Package models loads trained model artifacts from disk and keeps the live
// model registry in sync with them.
package models

import (
	"errors"
	"fmt"
	"os"

	"github.com/goccy/go-json"

	"github.com/cartwise/backend/internal/domain"
	"github.com/cartwise/backend/internal/logging"
	"github.com/cartwise/backend/internal/usecase"
)

// LoadFactorModel reads a CF factor model from a JSON file
func LoadFactorModel(path string) (*usecase.FactorModel, error) {
	var model usecase.FactorModel
	if err := readJSON(path, &model); err != nil {
		return nil, err
	}
	if err := model.Validate(); err != nil {
		return nil, fmt.Errorf("cf model %s: %w", path, err)
	}
	return &model, nil
}

// LoadTreeEnsemble reads a LightGBM or XGBoost JSON model dump
func LoadTreeEnsemble(path string) (*usecase.TreeEnsemble, error) {
	data, err := readArtifact(path)
	if err != nil {
		return nil, err
	}
	model, err := ParseTreeDump(data)
	if err != nil {
		return nil, fmt.Errorf("ranking model %s: %w", path, err)
	}
	return model, nil
}

func readArtifact(path string) ([]byte, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: no path configured", domain.ErrModelUnavailable)
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s does not exist", domain.ErrModelUnavailable, path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

func readJSON(path string, v any) error {
	data, err := readArtifact(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: decoding %s: %v", domain.ErrModelUnavailable, path, err)
	}
	return nil
}

// Paths are the model artifact locations
type Paths struct {
	CF      string
	Ranking string
}

// Loader installs model artifacts into a registry
type Loader struct {
	registry *usecase.ModelRegistry
	paths    Paths
	breaker  BreakerConfig
}

// NewLoader creates a loader for the given registry
func NewLoader(registry *usecase.ModelRegistry, paths Paths, breaker BreakerConfig) *Loader {
	return &Loader{registry: registry, paths: paths, breaker: breaker}
}

// Paths returns the configured artifact paths
func (l *Loader) Paths() Paths {
	return l.paths
}

// LoadCF loads the CF model. On failure the current model stays live.
func (l *Loader) LoadCF() error {
	model, err := LoadFactorModel(l.paths.CF)
	if err != nil {
		logging.Warn().Err(err).Str("path", l.paths.CF).Msg("[MODELS] cf model not loaded, keeping current")
		return err
	}
	l.registry.SetCF(model)
	logging.Info().
		Str("path", l.paths.CF).
		Int("users", len(model.UserFactors)).
		Int("items", len(model.ItemFactors)).
		Msg("[MODELS] cf model loaded")
	return nil
}

// LoadRanking loads the ranking model behind a circuit breaker. On failure
// the current model stays live.
func (l *Loader) LoadRanking() error {
	model, err := LoadTreeEnsemble(l.paths.Ranking)
	if err != nil {
		logging.Warn().Err(err).Str("path", l.paths.Ranking).Msg("[MODELS] ranking model not loaded, keeping current")
		return err
	}
	l.registry.SetRanking(NewBreakerRanker(model, l.breaker))
	logging.Info().
		Str("path", l.paths.Ranking).
		Int("trees", len(model.Trees)).
		Int("features", model.NumFeature).
		Msg("[MODELS] ranking model loaded")
	return nil
}

// LoadAll loads every configured model and returns the joined errors.
// Missing models are not fatal; scoring falls back without them.
func (l *Loader) LoadAll() error {
	var errs []error
	if l.paths.CF != "" {
		errs = append(errs, l.LoadCF())
	}
	if l.paths.Ranking != "" {
		errs = append(errs, l.LoadRanking())
	}
	return errors.Join(errs...)
}
