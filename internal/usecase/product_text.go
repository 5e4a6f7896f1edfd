package usecase

import (
	"regexp"
	"strings"

	"github.com/cartwise/backend/internal/domain"
	"github.com/cartwise/backend/internal/logging"
)

// TextPreprocessor builds the text that gets embedded for a product
type TextPreprocessor struct {
	enableDebugLogging bool
}

// Compiled regex patterns for product text cleanup
var (
	// Matches size/quantity patterns like "128 fl oz", "12 oz", "1.5 liter", "2 lb"
	sizeQuantityPattern = regexp.MustCompile(`(?i)\b\d+\.?\d*\s*(fl\.?\s*)?oz\b|\b\d+\.?\d*\s*(fl\s*)?ounces?\b|\b\d+\.?\d*\s*lbs?\b|\b\d+\.?\d*\s*pounds?\b|\b\d+\.?\d*\s*ml\b|\b\d+\.?\d*\s*l\b|\b\d+\.?\d*\s*liters?\b|\b\d+\.?\d*\s*gallons?\b|\b\d+\.?\d*\s*quarts?\b|\b\d+\.?\d*\s*pints?\b|\b\d+\.?\d*\s*kg\b|\b\d+\.?\d*\s*grams?\b|\b\d+\.?\d*\s*g\b`)

	// Matches pack/count patterns like "12 pack", "pack of 6", "6-pack", "24 count", "6 ct"
	packCountPattern = regexp.MustCompile(`(?i)\b\d+[-\s]*(pack|pk|count|ct)\b|\bpack\s*of\s*\d+\b|\b\d+\s*cans?\b|\b\d+\s*bottles?\b|\b\d+\s*pouches?\b|\b\d+\s*bars?\b|\b\d+\s*pieces?\b`)

	orphanPunctuationPattern = regexp.MustCompile(`\s+[,\-;:]+\s+|[,\-;:]+\s*$|^\s*[,\-;:]+`)

	multiSpacePattern = regexp.MustCompile(`\s+`)
)

// textNoiseWords are marketing and packaging terms that carry no product meaning
var textNoiseWords = map[string]bool{
	// Marketing terms
	"bonus": true, "new": true, "improved": true, "delicious": true,
	"tasty": true, "favorite": true, "special": true, "best": true,

	// Size descriptors
	"size": true, "family": true, "jumbo": true, "giant": true, "mini": true,

	// Packaging terms
	"package": true, "box": true, "bag": true, "bottle": true, "can": true,
	"jar": true, "tub": true, "carton": true, "sleeve": true, "pouch": true,

	// Generic terms
	"item": true, "product": true, "brand": true,
}

// NewTextPreprocessor creates a new text preprocessor
func NewTextPreprocessor(enableDebugLogging bool) *TextPreprocessor {
	return &TextPreprocessor{
		enableDebugLogging: enableDebugLogging,
	}
}

// CleanTitle removes size, pack counts and noise words from a product title
func (p *TextPreprocessor) CleanTitle(title string) string {
	if title == "" {
		return ""
	}

	cleaned := sizeQuantityPattern.ReplaceAllString(title, " ")
	cleaned = packCountPattern.ReplaceAllString(cleaned, " ")
	cleaned = removeNoiseWords(cleaned)
	cleaned = orphanPunctuationPattern.ReplaceAllString(cleaned, " ")
	cleaned = multiSpacePattern.ReplaceAllString(cleaned, " ")
	return strings.TrimSpace(cleaned)
}

// EmbeddingText returns the text embedded for a product: cleaned title,
// brand (when not already in the title) and the category path
func (p *TextPreprocessor) EmbeddingText(product domain.Product) string {
	parts := []string{p.CleanTitle(product.Title)}

	if product.Brand != "" && !strings.Contains(strings.ToLower(parts[0]), strings.ToLower(product.Brand)) {
		parts = append(parts, strings.ToLower(product.Brand))
	}
	if product.Subcategory != "" {
		parts = append(parts, strings.ToLower(product.Subcategory))
	}
	if product.Category != "" {
		parts = append(parts, strings.ToLower(product.Category))
	}

	text := strings.Join(parts, " | ")

	if p.enableDebugLogging {
		logging.Debug().Str("title", product.Title).Str("text", text).Msg("[TEXT] embedding text")
	}

	return text
}

// removeNoiseWords lowercases s and drops noise words
func removeNoiseWords(s string) string {
	words := strings.Fields(strings.ToLower(s))
	kept := make([]string, 0, len(words))

	for _, word := range words {
		cleanWord := strings.Trim(word, ",.!?;:-'\"")
		if !textNoiseWords[cleanWord] {
			kept = append(kept, word)
		}
	}

	return strings.Join(kept, " ")
}

// containsAnyPhrase reports whether text contains any of the phrases as
// whole words (phrases may span several words)
func containsAnyPhrase(text string, phrases []string) bool {
	padded := " " + strings.Join(tokenize(text), " ") + " "
	for _, phrase := range phrases {
		if strings.Contains(padded, " "+phrase+" ") {
			return true
		}
	}
	return false
}
