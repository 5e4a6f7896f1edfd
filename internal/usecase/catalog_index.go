package usecase

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"github.com/cartwise/backend/internal/domain"
	"github.com/cartwise/backend/internal/logging"
	"github.com/cartwise/backend/internal/metrics"
)

// Threshold calibration bounds
const (
	minCalibratedThreshold = 0.30
	maxCalibratedThreshold = 0.85
	minCalibrationSamples  = 10
)

// CatalogConfig holds configuration for building the catalog index
type CatalogConfig struct {
	CalibrationPairs    int     // Max same-subcategory pairs sampled
	CalibrationQuantile float64 // Low quantile of pair similarities used as threshold
	DefaultThreshold    float64 // Used when too few pairs can be sampled
	EmbedBatchSize      int
	EmbedConcurrency    int
	Seed                uint64
}

func (c *CatalogConfig) applyDefaults() {
	if c.CalibrationPairs <= 0 {
		c.CalibrationPairs = 2000
	}
	if c.CalibrationQuantile <= 0 || c.CalibrationQuantile >= 1 {
		c.CalibrationQuantile = 0.10
	}
	if c.DefaultThreshold <= 0 || c.DefaultThreshold >= 1 {
		c.DefaultThreshold = 0.5
	}
	if c.EmbedBatchSize <= 0 {
		c.EmbedBatchSize = 32
	}
	if c.EmbedConcurrency <= 0 {
		c.EmbedConcurrency = 4
	}
	if c.Seed == 0 {
		c.Seed = 42
	}
}

// priceQuartiles are Q1/Q3 price cut points within a subcategory
type priceQuartiles struct {
	q1, q3 float64
}

// CatalogIndex is an immutable in-memory product table with embeddings
type CatalogIndex struct {
	products      []domain.Product
	byID          map[int64]int
	bySubcategory map[string][]int
	byCategory    map[string][]int
	quartiles     map[string]priceQuartiles
	threshold     float64
	builtAt       time.Time
}

// StableProductID hashes title and subcategory into a 63-bit id
func StableProductID(title, subcategory string) int64 {
	key := strings.ToLower(strings.TrimSpace(title)) + "|" + strings.ToLower(strings.TrimSpace(subcategory))
	return int64(xxhash.Sum64String(key) & math.MaxInt64)
}

// NamedEmbedder is an embedder tried as one strategy of the embedding stage
type NamedEmbedder struct {
	Name     string
	Embedder domain.Embedder
}

// BuildCatalogIndex parses raw rows, embeds them and calibrates the
// same-category similarity threshold. Rows without a title or a positive
// price are skipped; duplicate ids keep the first row.
//
// Embedders are tried in order over the whole catalog so that every vector
// comes from the same model.
func BuildCatalogIndex(
	ctx context.Context,
	raws []domain.RawProduct,
	embedders []NamedEmbedder,
	text *TextPreprocessor,
	config CatalogConfig,
) (*CatalogIndex, error) {
	config.applyDefaults()
	if text == nil {
		text = NewTextPreprocessor(false)
	}

	products := make([]domain.Product, 0, len(raws))
	seen := make(map[int64]bool, len(raws))
	skipped := 0

	for _, raw := range raws {
		title := strings.TrimSpace(raw.Title)
		price, ok := ParsePrice(raw.Price)
		if title == "" || !ok {
			skipped++
			continue
		}

		id := StableProductID(title, raw.Subcategory)
		if seen[id] {
			skipped++
			continue
		}
		seen[id] = true

		products = append(products, domain.Product{
			ID:          id,
			Title:       title,
			Brand:       strings.TrimSpace(raw.Brand),
			Category:    strings.TrimSpace(raw.Category),
			Subcategory: strings.TrimSpace(raw.Subcategory),
			Price:       math.Round(price*100) / 100,
			Size:        ParseSize(raw.Size),
			Nutrition:   ParseNutrition(raw.Nutrition),
		})
	}

	if len(products) == 0 {
		return nil, domain.ErrCatalogEmpty
	}

	strategies := make([]Strategy[[][]float32], 0, len(embedders))
	for _, e := range embedders {
		strategies = append(strategies, Strategy[[][]float32]{
			Name: e.Name,
			Run: func(ctx context.Context) ([][]float32, error) {
				return embedProducts(ctx, products, e.Embedder, text, config)
			},
		})
	}

	embedded := RunStrategies(ctx, "embedding", strategies...)
	if !embedded.OK() {
		return nil, fmt.Errorf("%w: %v", domain.ErrEmbeddingFailure, embedded.Err)
	}
	for i := range products {
		products[i].Embedding = embedded.Value[i]
	}

	idx := &CatalogIndex{
		products:      products,
		byID:          make(map[int64]int, len(products)),
		bySubcategory: make(map[string][]int),
		byCategory:    make(map[string][]int),
		quartiles:     make(map[string]priceQuartiles),
		builtAt:       time.Now(),
	}

	for i, p := range products {
		idx.byID[p.ID] = i
		sub := normalizeKey(p.Subcategory)
		idx.bySubcategory[sub] = append(idx.bySubcategory[sub], i)
		cat := normalizeKey(p.Category)
		idx.byCategory[cat] = append(idx.byCategory[cat], i)
	}

	for sub, members := range idx.bySubcategory {
		if len(members) < 4 {
			continue
		}
		prices := make([]float64, len(members))
		for i, m := range members {
			prices[i] = products[m].Price
		}
		sort.Float64s(prices)
		idx.quartiles[sub] = priceQuartiles{q1: quantile(prices, 0.25), q3: quantile(prices, 0.75)}
	}

	idx.threshold = idx.calibrateThreshold(config)

	metrics.CatalogProducts.Set(float64(len(products)))
	metrics.SimilarityThreshold.Set(idx.threshold)

	logging.Info().
		Int("products", len(products)).
		Int("skipped", skipped).
		Int("subcategories", len(idx.bySubcategory)).
		Float64("threshold", idx.threshold).
		Msg("[CATALOG] index built")

	return idx, nil
}

// embedProducts embeds every product in parallel batches
func embedProducts(
	ctx context.Context,
	products []domain.Product,
	embedder domain.Embedder,
	text *TextPreprocessor,
	config CatalogConfig,
) ([][]float32, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: no embedder configured", domain.ErrEmbeddingFailure)
	}

	texts := make([]string, len(products))
	for i, p := range products {
		texts[i] = text.EmbeddingText(p)
	}

	vectors := make([][]float32, len(products))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(config.EmbedConcurrency)

	for start := 0; start < len(texts); start += config.EmbedBatchSize {
		end := min(start+config.EmbedBatchSize, len(texts))
		g.Go(func() error {
			batch, err := embedder.EmbedBatch(gctx, texts[start:end])
			if err != nil {
				return fmt.Errorf("embedding products %d-%d: %w", start, end, err)
			}
			if len(batch) != end-start {
				return fmt.Errorf("%w: got %d vectors for %d texts", domain.ErrEmbeddingFailure, len(batch), end-start)
			}
			copy(vectors[start:end], batch)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// calibrateThreshold samples same-subcategory pairs and takes a low
// quantile of their cosine similarities
func (idx *CatalogIndex) calibrateThreshold(config CatalogConfig) float64 {
	groups := make([][]int, 0, len(idx.bySubcategory))
	totalPairs := 0
	for _, members := range idx.bySubcategory {
		if len(members) < 2 {
			continue
		}
		groups = append(groups, members)
		totalPairs += len(members) * (len(members) - 1) / 2
	}

	// Map iteration order is random; sort for a reproducible sample
	sort.Slice(groups, func(a, b int) bool { return groups[a][0] < groups[b][0] })

	var sims []float64
	if totalPairs <= config.CalibrationPairs {
		for _, members := range groups {
			for i := 0; i < len(members); i++ {
				for j := i + 1; j < len(members); j++ {
					sims = append(sims, CosineSimilarity(idx.products[members[i]].Embedding, idx.products[members[j]].Embedding))
				}
			}
		}
	} else {
		rng := rand.New(rand.NewPCG(config.Seed, config.Seed^0x9e3779b97f4a7c15))
		for n := 0; n < config.CalibrationPairs; n++ {
			members := groups[rng.IntN(len(groups))]
			i := rng.IntN(len(members))
			j := rng.IntN(len(members) - 1)
			if j >= i {
				j++
			}
			sims = append(sims, CosineSimilarity(idx.products[members[i]].Embedding, idx.products[members[j]].Embedding))
		}
	}

	if len(sims) < minCalibrationSamples {
		logging.Warn().Int("pairs", len(sims)).Float64("threshold", config.DefaultThreshold).
			Msg("[CATALOG] too few same-category pairs, using default threshold")
		return config.DefaultThreshold
	}

	sort.Float64s(sims)
	threshold := quantile(sims, config.CalibrationQuantile)
	return math.Max(minCalibratedThreshold, math.Min(maxCalibratedThreshold, threshold))
}

// quantile returns the q-quantile of sorted values using linear interpolation
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func normalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Len returns the number of indexed products
func (idx *CatalogIndex) Len() int {
	return len(idx.products)
}

// Threshold returns the calibrated same-category similarity threshold
func (idx *CatalogIndex) Threshold() float64 {
	return idx.threshold
}

// BuiltAt returns when the index was built
func (idx *CatalogIndex) BuiltAt() time.Time {
	return idx.builtAt
}

// Get returns the product with the given id
func (idx *CatalogIndex) Get(id int64) (domain.Product, bool) {
	i, ok := idx.byID[id]
	if !ok {
		return domain.Product{}, false
	}
	return idx.products[i], true
}

// All returns every product. The slice must not be modified.
func (idx *CatalogIndex) All() []domain.Product {
	return idx.products
}

// BySubcategory returns products in the subcategory (case-insensitive)
func (idx *CatalogIndex) BySubcategory(subcategory string) []domain.Product {
	return idx.collect(idx.bySubcategory[normalizeKey(subcategory)])
}

// ByLooseCategory returns products whose category loosely matches category
func (idx *CatalogIndex) ByLooseCategory(category string, matcher *CategoryMatcher) []domain.Product {
	if category == "" {
		return nil
	}
	var members []int
	keys := make([]string, 0, len(idx.byCategory))
	for key := range idx.byCategory {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if matcher.Matches(category, key) {
			members = append(members, idx.byCategory[key]...)
		}
	}
	sort.Ints(members)
	return idx.collect(members)
}

// PriceQuartiles returns the Q1/Q3 prices of a subcategory. ok is false
// when the subcategory has fewer than four products.
func (idx *CatalogIndex) PriceQuartiles(subcategory string) (q1, q3 float64, ok bool) {
	q, ok := idx.quartiles[normalizeKey(subcategory)]
	return q.q1, q.q3, ok
}

func (idx *CatalogIndex) collect(members []int) []domain.Product {
	out := make([]domain.Product, len(members))
	for i, m := range members {
		out[i] = idx.products[m]
	}
	return out
}

// CatalogHolder owns the live catalog index. Rebuilds swap the whole index.
type CatalogHolder struct {
	current atomic.Pointer[CatalogIndex]
}

// NewCatalogHolder creates a holder, optionally seeded with an index
func NewCatalogHolder(idx *CatalogIndex) *CatalogHolder {
	h := &CatalogHolder{}
	if idx != nil {
		h.current.Store(idx)
	}
	return h
}

// Current returns the live index or nil when none has been built
func (h *CatalogHolder) Current() *CatalogIndex {
	return h.current.Load()
}

// Swap installs a new index
func (h *CatalogHolder) Swap(idx *CatalogIndex) {
	h.current.Store(idx)
}

// Rebuild loads the catalog from source, builds a new index and swaps it in.
// The previous index stays live when the rebuild fails.
func (h *CatalogHolder) Rebuild(
	ctx context.Context,
	source domain.CatalogSource,
	embedders []NamedEmbedder,
	text *TextPreprocessor,
	config CatalogConfig,
) error {
	raws, err := source.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading catalog: %w", err)
	}

	idx, err := BuildCatalogIndex(ctx, raws, embedders, text, config)
	if err != nil {
		return err
	}

	h.Swap(idx)
	return nil
}
