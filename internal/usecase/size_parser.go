package usecase

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/cartwise/backend/internal/domain"
)

// sizePatternRegex matches a quantity with its unit, optionally prefixed by
// a multipack count ("6 x 330 ml")
var sizePatternRegex = regexp.MustCompile(
	`(?i)(?:(\d+(?:\.\d+)?)\s*[x×]\s*)?(\d+(?:\.\d+)?)\s*(fl\.?\s*oz|ounces?|oz|pounds?|lbs?|kilograms?|kg|milligrams?|mg|grams?|g|milliliters?|ml|liters?|litres?|l|gallons?|gal|quarts?|qt|pints?|pt|count|ct|pack|pk|each|ea|pieces?|pcs?)\b`,
)

// packOfRegex matches "pack of 6"
var packOfRegex = regexp.MustCompile(`(?i)\bpack\s+of\s+(\d+)\b`)

// unitConversion maps a unit spelling to its base unit and multiplier
type unitConversion struct {
	canonical string
	base      string
	factor    float64
}

var unitConversions = map[string]unitConversion{
	"oz": {"oz", domain.UnitGrams, 28.3495}, "ounce": {"oz", domain.UnitGrams, 28.3495}, "ounces": {"oz", domain.UnitGrams, 28.3495},
	"lb": {"lb", domain.UnitGrams, 453.592}, "lbs": {"lb", domain.UnitGrams, 453.592},
	"pound": {"lb", domain.UnitGrams, 453.592}, "pounds": {"lb", domain.UnitGrams, 453.592},
	"kg": {"kg", domain.UnitGrams, 1000}, "kilogram": {"kg", domain.UnitGrams, 1000}, "kilograms": {"kg", domain.UnitGrams, 1000},
	"g": {"g", domain.UnitGrams, 1}, "gram": {"g", domain.UnitGrams, 1}, "grams": {"g", domain.UnitGrams, 1},
	"mg": {"mg", domain.UnitGrams, 0.001}, "milligram": {"mg", domain.UnitGrams, 0.001}, "milligrams": {"mg", domain.UnitGrams, 0.001},
	"fl oz": {"fl oz", domain.UnitMilliliter, 29.5735},
	"ml": {"ml", domain.UnitMilliliter, 1}, "milliliter": {"ml", domain.UnitMilliliter, 1}, "milliliters": {"ml", domain.UnitMilliliter, 1},
	"l": {"l", domain.UnitMilliliter, 1000}, "liter": {"l", domain.UnitMilliliter, 1000}, "liters": {"l", domain.UnitMilliliter, 1000},
	"litre": {"l", domain.UnitMilliliter, 1000}, "litres": {"l", domain.UnitMilliliter, 1000},
	"gal": {"gal", domain.UnitMilliliter, 3785.41}, "gallon": {"gal", domain.UnitMilliliter, 3785.41}, "gallons": {"gal", domain.UnitMilliliter, 3785.41},
	"qt": {"qt", domain.UnitMilliliter, 946.353}, "quart": {"qt", domain.UnitMilliliter, 946.353}, "quarts": {"qt", domain.UnitMilliliter, 946.353},
	"pt": {"pt", domain.UnitMilliliter, 473.176}, "pint": {"pt", domain.UnitMilliliter, 473.176}, "pints": {"pt", domain.UnitMilliliter, 473.176},
	"count": {"count", domain.UnitCount, 1}, "ct": {"count", domain.UnitCount, 1},
	"pack": {"count", domain.UnitCount, 1}, "pk": {"count", domain.UnitCount, 1},
	"each": {"count", domain.UnitCount, 1}, "ea": {"count", domain.UnitCount, 1},
	"piece": {"count", domain.UnitCount, 1}, "pieces": {"count", domain.UnitCount, 1},
	"pc": {"count", domain.UnitCount, 1}, "pcs": {"count", domain.UnitCount, 1},
}

// ParseSize parses a size string such as "16 oz", "1.5 L", "6 x 330 ml",
// "12 ct" or "12 pack 12 fl oz" into a normalized size. A weight or volume
// wins over a count; a count next to a weight or volume is treated as a
// multipack multiplier. Unparseable input returns the zero Size.
func ParseSize(raw string) domain.Size {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.Size{}
	}

	var measure, count *domain.Size
	multiplier := 1.0

	for _, m := range sizePatternRegex.FindAllStringSubmatch(raw, -1) {
		value, err := strconv.ParseFloat(m[2], 64)
		if err != nil || value <= 0 {
			continue
		}

		unit := normalizeUnitSpelling(m[3])
		conv, ok := unitConversions[unit]
		if !ok {
			continue
		}

		size := domain.Size{
			Value:      value,
			Unit:       conv.canonical,
			Normalized: value * conv.factor,
			BaseUnit:   conv.base,
		}

		if conv.base == domain.UnitCount {
			if count == nil {
				count = &size
			}
			continue
		}

		if measure == nil {
			if m[1] != "" {
				if n, err := strconv.ParseFloat(m[1], 64); err == nil && n > 0 {
					multiplier = n
				}
			}
			measure = &size
		}
	}

	if measure == nil && count == nil {
		if m := packOfRegex.FindStringSubmatch(raw); m != nil {
			if n, err := strconv.ParseFloat(m[1], 64); err == nil && n > 0 {
				return domain.Size{Value: n, Unit: "count", Normalized: n, BaseUnit: domain.UnitCount}
			}
		}
		return domain.Size{}
	}

	if measure == nil {
		return *count
	}

	if multiplier == 1 && count != nil {
		multiplier = count.Value
	}
	measure.Normalized *= multiplier
	return *measure
}

// normalizeUnitSpelling lowercases a unit and folds "fl. oz"/"fl  oz" to "fl oz"
func normalizeUnitSpelling(unit string) string {
	unit = strings.ToLower(strings.TrimSpace(unit))
	if strings.HasPrefix(unit, "fl") {
		return "fl oz"
	}
	return unit
}

// SizeRatio returns replacement/source normalized size, or 0 when either
// size is unknown or the base units differ
func SizeRatio(source, replacement domain.Size) float64 {
	if !source.Known() || !replacement.Known() {
		return 0
	}
	if source.BaseUnit != replacement.BaseUnit {
		return 0
	}
	return replacement.Normalized / source.Normalized
}

// priceForRegex matches multi-buy prices like "2 for $5"
var priceForRegex = regexp.MustCompile(`(?i)(\d+)\s*for\s*\$?\s*(\d+(?:\.\d+)?)`)

// priceNumberRegex matches the first decimal number in a price string
var priceNumberRegex = regexp.MustCompile(`\d+(?:\.\d+)?`)

// ParsePrice converts a raw catalog price ("$3.49", "3,49", "2 for $5", 3.49)
// to a float. It returns false when no positive price can be read.
func ParsePrice(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, v > 0
	case float32:
		return float64(v), v > 0
	case int:
		return float64(v), v > 0
	case int64:
		return float64(v), v > 0
	case string:
		return parsePriceString(v)
	case interface{ String() string }:
		return parsePriceString(v.String())
	default:
		return 0, false
	}
}

func parsePriceString(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	if m := priceForRegex.FindStringSubmatch(s); m != nil {
		qty, err1 := strconv.ParseFloat(m[1], 64)
		total, err2 := strconv.ParseFloat(m[2], 64)
		if err1 == nil && err2 == nil && qty > 0 && total > 0 {
			return total / qty, true
		}
	}

	// "3,49" uses a decimal comma; "1,299.00" uses a thousands separator
	if strings.Contains(s, ",") {
		if strings.Contains(s, ".") {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.ReplaceAll(s, ",", ".")
		}
	}

	m := priceNumberRegex.FindString(s)
	if m == "" {
		return 0, false
	}
	value, err := strconv.ParseFloat(m, 64)
	if err != nil || value <= 0 {
		return 0, false
	}
	return value, true
}
