package usecase

import (
	"fmt"
	"math"
	"strings"

	"github.com/cartwise/backend/internal/domain"
)

// Size ratio band counted as "about the same size"
const (
	sizeCloseLow  = 0.8
	sizeCloseHigh = 1.25
)

// NewCandidate scores a retrieved match against the source product and tags
// it with reason flags
func NewCandidate(source domain.Product, match Match) domain.Candidate {
	replacement := match.Product

	c := domain.Candidate{
		Source:      source,
		Replacement: replacement,
		Saving:      round2(source.Price - replacement.Price),
		Similarity:  match.Similarity,
		SizeRatio:   SizeRatio(source.Size, replacement.Size),
		MatchLevel:  match.Level,
	}
	if source.Price > 0 {
		c.SavingPct = (source.Price - replacement.Price) / source.Price
	}

	switch {
	case c.SizeRatio == 0:
		c.Reasons = append(c.Reasons, domain.ReasonNoSize)
	case c.SizeRatio >= sizeCloseLow && c.SizeRatio <= sizeCloseHigh:
		c.Reasons = append(c.Reasons, domain.ReasonSizeClose)
	case c.SizeRatio < sizeCloseLow:
		c.Reasons = append(c.Reasons, domain.ReasonSizeSmaller)
	default:
		c.Reasons = append(c.Reasons, domain.ReasonSizeLarger)
	}

	switch CompareHealth(source.Nutrition, replacement.Nutrition) {
	case 1:
		c.HealthGain = true
		c.Reasons = append(c.Reasons, domain.ReasonHealthBetter)
	case -1:
		c.Reasons = append(c.Reasons, domain.ReasonHealthWorse)
	}

	if source.Brand != "" && strings.EqualFold(source.Brand, replacement.Brand) {
		c.Reasons = append(c.Reasons, domain.ReasonSameBrand)
	}

	switch match.Level {
	case domain.MatchCategory:
		c.Reasons = append(c.Reasons, domain.ReasonBroaderCategory)
	case domain.MatchCatalog:
		c.Reasons = append(c.Reasons, domain.ReasonCatalogWide)
	}

	return c
}

// ExplainCandidate renders a short human-readable reason for a substitution
func ExplainCandidate(c *domain.Candidate) string {
	parts := []string{fmt.Sprintf("Save $%.2f each with %s", c.Saving, c.Replacement.Title)}

	for _, r := range c.Reasons {
		switch r {
		case domain.ReasonSizeClose:
			parts = append(parts, "about the same size")
		case domain.ReasonSizeSmaller:
			parts = append(parts, fmt.Sprintf("smaller pack (%.0f%% of the size)", c.SizeRatio*100))
		case domain.ReasonSizeLarger:
			parts = append(parts, fmt.Sprintf("larger pack (%.0f%% of the size)", c.SizeRatio*100))
		case domain.ReasonNoSize:
			parts = append(parts, "size not comparable")
		case domain.ReasonHealthBetter:
			parts = append(parts, "healthier nutrition profile")
		case domain.ReasonHealthWorse:
			parts = append(parts, "less healthy nutrition profile")
		case domain.ReasonSameBrand:
			parts = append(parts, "same brand")
		case domain.ReasonBroaderCategory:
			parts = append(parts, "from a related aisle")
		case domain.ReasonCatalogWide:
			parts = append(parts, "closest match in the store")
		}
	}

	return strings.Join(parts, "; ")
}

// minSaving is the smallest price difference worth suggesting
const minSaving = 0.01

// cheaperBy reports whether price undercuts maxPrice by at least a cent
func cheaperBy(price, maxPrice float64) bool {
	return round2(maxPrice-price) >= minSaving
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
