package catalog

import (
	"strings"

	"github.com/cartwise/backend/internal/domain"
)

// FoodData Central nutrient ids for the nutrition facts the health score uses
const (
	NutrientIDEnergy       = 1008 // Calories (kcal)
	NutrientIDProtein      = 1003 // Protein (g)
	NutrientIDTotalFat     = 1004 // Total Fat (g)
	NutrientIDSaturatedFat = 1258 // Saturated fat (g)
	NutrientIDSugars       = 2000 // Total sugars (g)
	NutrientIDFiber        = 1079 // Dietary fiber (g)
	NutrientIDSodium       = 1093 // Sodium (mg)
)

// nutrientKeys maps nutrient ids to the keys the nutrition parser reads
var nutrientKeys = map[int]string{
	NutrientIDEnergy:       "calories",
	NutrientIDProtein:      "protein",
	NutrientIDTotalFat:     "fat",
	NutrientIDSaturatedFat: "saturated_fat",
	NutrientIDSugars:       "sugar",
	NutrientIDFiber:        "fiber",
	NutrientIDSodium:       "sodium",
}

// Nutrient is one FoodData Central style nutrient entry
type Nutrient struct {
	NutrientID int     `json:"nutrientId"`
	Name       string  `json:"nutrientName,omitempty"`
	Value      float64 `json:"value"`
}

// Row is one product in a catalog file. Nutrition may be given as a flat
// map, as a nutrient list, or both; the flat map wins on conflicts.
type Row struct {
	Title       string             `json:"title"`
	Name        string             `json:"name,omitempty"` // Alias for title
	Brand       string             `json:"brand,omitempty"`
	Category    string             `json:"category"`
	Subcategory string             `json:"subcategory"`
	Price       any                `json:"price"`
	Size        string             `json:"size,omitempty"`
	Nutrition   map[string]float64 `json:"nutrition,omitempty"`
	Nutrients   []Nutrient         `json:"foodNutrients,omitempty"`
}

// MapToRawProduct converts a catalog row to a raw product
func MapToRawProduct(row Row) domain.RawProduct {
	title := strings.TrimSpace(row.Title)
	if title == "" {
		title = strings.TrimSpace(row.Name)
	}

	return domain.RawProduct{
		Title:       title,
		Brand:       strings.TrimSpace(row.Brand),
		Category:    strings.TrimSpace(row.Category),
		Subcategory: strings.TrimSpace(row.Subcategory),
		Price:       row.Price,
		Size:        strings.TrimSpace(row.Size),
		Nutrition:   mergeNutrition(row.Nutrition, row.Nutrients),
	}
}

// mergeNutrition folds the nutrient list into the flat map
func mergeNutrition(flat map[string]float64, list []Nutrient) map[string]float64 {
	if len(flat) == 0 && len(list) == 0 {
		return nil
	}

	out := make(map[string]float64, len(flat)+len(list))
	for _, n := range list {
		if key, ok := nutrientKeys[n.NutrientID]; ok {
			out[key] = n.Value
		}
	}
	for k, v := range flat {
		out[k] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// FindNutrientValue finds a specific nutrient value by id
func FindNutrientValue(nutrients []Nutrient, nutrientID int) float64 {
	for _, nutrient := range nutrients {
		if nutrient.NutrientID == nutrientID {
			return nutrient.Value
		}
	}
	return 0.0
}
