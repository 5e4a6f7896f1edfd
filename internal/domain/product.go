package domain

// Base units a product size is normalized to
const (
	UnitGrams      = "g"
	UnitMilliliter = "ml"
	UnitCount      = "count"
)

// Product is an indexed catalog entry. Products are immutable once indexed;
// the catalog is rebuilt wholesale rather than mutated.
type Product struct {
	ID          int64     `json:"id"` // Stable 63-bit hash of title + subcategory
	Title       string    `json:"title"`
	Brand       string    `json:"brand,omitempty"`
	Category    string    `json:"category"`
	Subcategory string    `json:"subcategory"`
	Price       float64   `json:"price"`
	Size        Size      `json:"size"`
	Nutrition   Nutrition `json:"nutrition"`
	Embedding   []float32 `json:"-"`
}

// Size is the parsed package size of a product
type Size struct {
	Value      float64 `json:"value"`
	Unit       string  `json:"unit"`
	Normalized float64 `json:"normalized"` // Value expressed in BaseUnit
	BaseUnit   string  `json:"baseUnit"`   // "g", "ml", "count" or empty when unknown
}

// Known reports whether the size was parsed into a base unit
func (s Size) Known() bool {
	return s.BaseUnit != "" && s.Normalized > 0
}

// Nutrition holds per-100g (or per-100ml) nutrition facts
type Nutrition struct {
	Calories     float64 `json:"calories"`
	Protein      float64 `json:"protein"`      // grams
	Fat          float64 `json:"fat"`          // grams
	SaturatedFat float64 `json:"saturatedFat"` // grams
	Sugar        float64 `json:"sugar"`        // grams
	Fiber        float64 `json:"fiber"`        // grams
	Sodium       float64 `json:"sodium"`       // milligrams
	Known        bool    `json:"known"`
}

// HealthScore is a coarse nutrition quality score; higher is healthier
func (n Nutrition) HealthScore() float64 {
	return n.Protein/10 + n.Fiber/5 - n.Sugar/10 - n.SaturatedFat/5 - n.Sodium/400
}

// RawProduct is a catalog row before parsing and indexing
type RawProduct struct {
	Title       string             `json:"title"`
	Brand       string             `json:"brand,omitempty"`
	Category    string             `json:"category"`
	Subcategory string             `json:"subcategory"`
	Price       any                `json:"price"` // "$3.49", "3.49" or 3.49
	Size        string             `json:"size,omitempty"`
	Nutrition   map[string]float64 `json:"nutrition,omitempty"`
}
