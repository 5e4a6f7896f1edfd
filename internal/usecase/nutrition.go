package usecase

import (
	"strings"

	"github.com/cartwise/backend/internal/domain"
)

// healthDeltaThreshold is the minimum health score difference that counts
// as better or worse
const healthDeltaThreshold = 0.5

// nutritionKeyAliases maps the spellings found in catalog rows to nutrition fields
var nutritionKeyAliases = map[string]string{
	"calories": "calories", "energy": "calories", "kcal": "calories", "energy_kcal": "calories",
	"protein": "protein", "protein_g": "protein", "proteins": "protein",
	"fat": "fat", "total_fat": "fat", "fat_g": "fat", "totalfat": "fat",
	"saturated_fat": "saturatedFat", "sat_fat": "saturatedFat", "saturatedfat": "saturatedFat", "saturates": "saturatedFat",
	"sugar": "sugar", "sugars": "sugar", "sugar_g": "sugar", "total_sugars": "sugar",
	"fiber": "fiber", "fibre": "fiber", "dietary_fiber": "fiber", "fiber_g": "fiber",
	"sodium": "sodium", "sodium_mg": "sodium", "salt_mg": "sodium",
}

// ParseNutrition converts a raw nutrition map into domain.Nutrition.
// Keys are matched case-insensitively with spaces and dashes folded to
// underscores. Known is set when at least one field was recognized.
func ParseNutrition(raw map[string]float64) domain.Nutrition {
	result := domain.Nutrition{}
	if len(raw) == 0 {
		return result
	}

	for key, value := range raw {
		normalized := strings.ToLower(strings.TrimSpace(key))
		normalized = strings.NewReplacer(" ", "_", "-", "_").Replace(normalized)

		field, ok := nutritionKeyAliases[normalized]
		if !ok {
			continue
		}
		if value < 0 {
			value = 0
		}

		switch field {
		case "calories":
			result.Calories = value
		case "protein":
			result.Protein = value
		case "fat":
			result.Fat = value
		case "saturatedFat":
			result.SaturatedFat = value
		case "sugar":
			result.Sugar = value
		case "fiber":
			result.Fiber = value
		case "sodium":
			result.Sodium = value
		}
		result.Known = true
	}

	return result
}

// CompareHealth returns +1 when replacement is healthier than source, -1 when
// it is less healthy and 0 when the difference is small or either side has
// no nutrition data
func CompareHealth(source, replacement domain.Nutrition) int {
	if !source.Known || !replacement.Known {
		return 0
	}

	delta := replacement.HealthScore() - source.HealthScore()
	switch {
	case delta > healthDeltaThreshold:
		return 1
	case delta < -healthDeltaThreshold:
		return -1
	default:
		return 0
	}
}
