// Package catalog loads product catalog snapshots from disk.
package catalog

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/goccy/go-json"

	"github.com/cartwise/backend/internal/domain"
	"github.com/cartwise/backend/internal/logging"
)

// FileSource reads a JSON catalog: either an array of rows or an object
// with a "products" array
type FileSource struct {
	path string
}

// NewFileSource creates a source for the file at path
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Path returns the catalog file path
func (s *FileSource) Path() string {
	return s.path
}

// Load implements domain.CatalogSource
func (s *FileSource) Load(ctx context.Context) ([]domain.RawProduct, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog file: %w", err)
	}

	rows, err := DecodeRows(data)
	if err != nil {
		return nil, fmt.Errorf("decoding catalog file %s: %w", s.path, err)
	}
	if len(rows) == 0 {
		return nil, domain.ErrCatalogEmpty
	}

	raws := make([]domain.RawProduct, len(rows))
	for i, row := range rows {
		raws[i] = MapToRawProduct(row)
	}

	logging.Info().Str("path", s.path).Int("rows", len(raws)).Msg("[CATALOG] catalog file loaded")
	return raws, nil
}

// DecodeRows parses catalog JSON in either supported shape
func DecodeRows(data []byte) ([]Row, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var rows []Row
		if err := json.Unmarshal(trimmed, &rows); err != nil {
			return nil, err
		}
		return rows, nil
	}

	var wrapped struct {
		Products []Row `json:"products"`
	}
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.Products, nil
}
