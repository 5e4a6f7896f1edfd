package usecase

import (
	"math"
	"sort"

	"github.com/cartwise/backend/internal/domain"
	"github.com/cartwise/backend/internal/metrics"
)

// CosineSimilarity returns the cosine of the angle between a and b.
// Vectors of different length or zero norm have similarity 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// RetrieverConfig holds configuration for similarity retrieval
type RetrieverConfig struct {
	StrictFloor float64 // Minimum similarity for whole-catalog matches
	Limit       int     // Max matches returned
}

// Match is a retrieved product with its similarity to the source
type Match struct {
	Product    domain.Product
	Similarity float64
	Level      domain.MatchLevel
}

// Retriever finds cheaper, semantically similar products
type Retriever struct {
	strictFloor float64
	limit       int
	categories  *CategoryMatcher
}

// NewRetriever creates a retriever with the given configuration
func NewRetriever(config RetrieverConfig, categories *CategoryMatcher) *Retriever {
	floor := config.StrictFloor
	if floor <= 0 || floor >= 1 {
		floor = 0.75
	}

	limit := config.Limit
	if limit <= 0 {
		limit = 20
	}

	if categories == nil {
		categories = NewCategoryMatcher(CategoryMatchConfig{})
	}

	return &Retriever{
		strictFloor: floor,
		limit:       limit,
		categories:  categories,
	}
}

// Retrieve returns products at least a cent cheaper than maxPrice that are
// similar to source. Tiers are tried in order: same subcategory, loosely matching
// category, whole catalog with a stricter floor. The first tier with any
// match wins. Returns nil when no tier matches.
func (r *Retriever) Retrieve(idx *CatalogIndex, source domain.Product, maxPrice float64) []Match {
	if idx == nil || len(source.Embedding) == 0 {
		metrics.RetrievalLevel.WithLabelValues("none").Inc()
		return nil
	}

	threshold := idx.Threshold()

	tiers := []struct {
		level    domain.MatchLevel
		floor    float64
		products func() []domain.Product
	}{
		{domain.MatchSubcategory, threshold, func() []domain.Product { return idx.BySubcategory(source.Subcategory) }},
		{domain.MatchCategory, threshold, func() []domain.Product { return idx.ByLooseCategory(source.Category, r.categories) }},
		{domain.MatchCatalog, math.Max(threshold, r.strictFloor), idx.All},
	}

	for _, tier := range tiers {
		matches := r.scan(tier.products(), source, maxPrice, tier.floor, tier.level)
		if len(matches) > 0 {
			metrics.RetrievalLevel.WithLabelValues(string(tier.level)).Inc()
			return matches
		}
	}

	metrics.RetrievalLevel.WithLabelValues("none").Inc()
	return nil
}

// Similar returns products in source's subcategory above the calibrated
// threshold regardless of price, excluding ids in exclude
func (r *Retriever) Similar(idx *CatalogIndex, source domain.Product, exclude map[int64]bool) []Match {
	if idx == nil || len(source.Embedding) == 0 {
		return nil
	}

	var matches []Match
	for _, p := range idx.BySubcategory(source.Subcategory) {
		if p.ID == source.ID || exclude[p.ID] {
			continue
		}
		sim := CosineSimilarity(source.Embedding, p.Embedding)
		if sim < idx.Threshold() {
			continue
		}
		matches = append(matches, Match{Product: p, Similarity: sim, Level: domain.MatchSubcategory})
	}
	return r.sortAndCap(matches)
}

func (r *Retriever) scan(products []domain.Product, source domain.Product, maxPrice, floor float64, level domain.MatchLevel) []Match {
	var matches []Match
	for _, p := range products {
		if p.ID == source.ID || p.Price <= 0 || !cheaperBy(p.Price, maxPrice) {
			continue
		}
		sim := CosineSimilarity(source.Embedding, p.Embedding)
		if sim < floor {
			continue
		}
		matches = append(matches, Match{Product: p, Similarity: sim, Level: level})
	}
	return r.sortAndCap(matches)
}

func (r *Retriever) sortAndCap(matches []Match) []Match {
	sort.SliceStable(matches, func(a, b int) bool {
		if matches[a].Similarity != matches[b].Similarity {
			return matches[a].Similarity > matches[b].Similarity
		}
		return matches[a].Product.Price < matches[b].Product.Price
	})
	if len(matches) > r.limit {
		matches = matches[:r.limit]
	}
	return matches
}
