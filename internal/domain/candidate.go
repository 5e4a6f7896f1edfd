package domain

// ReasonFlag is a qualitative tag explaining a substitution
type ReasonFlag string

const (
	ReasonNoSize          ReasonFlag = "no_size"
	ReasonSizeClose       ReasonFlag = "size_close"
	ReasonSizeSmaller     ReasonFlag = "size_smaller"
	ReasonSizeLarger      ReasonFlag = "size_larger"
	ReasonHealthBetter    ReasonFlag = "health_better"
	ReasonHealthWorse     ReasonFlag = "health_worse"
	ReasonSameBrand       ReasonFlag = "same_brand"
	ReasonBroaderCategory ReasonFlag = "broader_category"
	ReasonCatalogWide     ReasonFlag = "catalog_wide"
)

// MatchLevel records which retrieval tier produced a candidate
type MatchLevel string

const (
	MatchSubcategory MatchLevel = "subcategory"
	MatchCategory    MatchLevel = "category"
	MatchCatalog     MatchLevel = "catalog"
)

// Candidate is a scored (source, replacement) pair. Candidates are produced
// and discarded per request.
type Candidate struct {
	Source      Product      `json:"-"`
	Replacement Product      `json:"replacement"`
	Saving      float64      `json:"saving"`    // Per unit
	SavingPct   float64      `json:"savingPct"` // Saving / source price
	Similarity  float64      `json:"similarity"`
	SizeRatio   float64      `json:"sizeRatio"` // Replacement / source, 0 when unknown
	HealthGain  bool         `json:"healthGain"`
	Reasons     []ReasonFlag `json:"reasons"`
	MatchLevel  MatchLevel   `json:"matchLevel"`
	CFScore     float64      `json:"cfScore"`
	BlendScore  float64      `json:"blendScore"`
	RankScore   float64      `json:"rankScore"`
}

// PriceRatio returns replacement price over source price
func (c *Candidate) PriceRatio() float64 {
	if c.Source.Price <= 0 {
		return 1
	}
	return c.Replacement.Price / c.Source.Price
}

// HasReason reports whether the candidate carries the flag
func (c *Candidate) HasReason(flag ReasonFlag) bool {
	for _, r := range c.Reasons {
		if r == flag {
			return true
		}
	}
	return false
}

// Suggestion groups the alternatives found for one cart item
type Suggestion struct {
	RecommendationID string       `json:"recommendationId"`
	Source           Product      `json:"source"`
	Quantity         int          `json:"quantity"`
	Alternatives     []Candidate  `json:"alternatives"`
	Saving           float64      `json:"saving"` // Top alternative's per-unit saving times quantity
	Reason           string       `json:"reason"`
	Flags            []ReasonFlag `json:"flags"`
}

// SubstitutionResult is the response to a budget substitution request
type SubstitutionResult struct {
	CartTotal     float64      `json:"cartTotal"`
	Budget        float64      `json:"budget"`
	Overage       float64      `json:"overage"`
	TotalSavings  float64      `json:"totalSavings"`
	CoversOverage bool         `json:"coversOverage"`
	Shortfall     float64      `json:"shortfall"`
	Intent        IntentMode   `json:"intent"`
	Suggestions   []Suggestion `json:"suggestions"`
	Message       string       `json:"message,omitempty"`
}

// Recommendation is a personalized (non-substitution) product suggestion
type Recommendation struct {
	Product    Product `json:"product"`
	BecauseOf  int64   `json:"becauseOf"` // Purchased product that seeded the suggestion
	CFScore    float64 `json:"cfScore"`
	Similarity float64 `json:"similarity"`
	Score      float64 `json:"score"`
}

// RecommendationResult is the response to a personalized recommendation request
type RecommendationResult struct {
	UserID          string           `json:"userId"`
	Intent          IntentMode       `json:"intent"`
	Recommendations []Recommendation `json:"recommendations"`
	Message         string           `json:"message,omitempty"`
}
