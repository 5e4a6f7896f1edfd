package usecase

import (
	"regexp"
	"strings"
)

// Package-level compiled regex pattern for performance
var punctuationRegex = regexp.MustCompile(`[^\w\s]`)

// categoryStopWords are filler words in category names ("Bread & Bakery Products")
var categoryStopWords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true,
	"of": true, "in": true, "for": true, "with": true, "to": true,
	"other": true, "misc": true, "miscellaneous": true, "general": true,
	"products": true, "product": true, "items": true, "goods": true,
}

// CategoryMatchConfig holds configuration for loose category matching
type CategoryMatchConfig struct {
	MinOverlap        float64 // Fraction of the shorter name's tokens that must match
	FuzzyEditDistance int
}

// CategoryMatcher decides whether two category names refer to the same
// broad aisle ("Snacks & Chips" vs "Snack Foods")
type CategoryMatcher struct {
	minOverlap        float64
	fuzzyEditDistance int
}

// NewCategoryMatcher creates a category matcher with the given configuration
func NewCategoryMatcher(config CategoryMatchConfig) *CategoryMatcher {
	overlap := config.MinOverlap
	if overlap <= 0 || overlap > 1 {
		overlap = 0.5
	}

	fuzzyDist := config.FuzzyEditDistance
	if fuzzyDist <= 0 {
		fuzzyDist = 1
	}

	return &CategoryMatcher{
		minOverlap:        overlap,
		fuzzyEditDistance: fuzzyDist,
	}
}

// Matches reports whether two category names loosely match
func (m *CategoryMatcher) Matches(a, b string) bool {
	return m.Score(a, b) >= m.minOverlap
}

// Score returns a [0,1] overlap score between two category names.
// Identical names and names where one contains the other score 1; otherwise
// the score is the fraction of the shorter token list found in the longer
// one, counting near-identical tokens ("snack"/"snacks") as matches.
func (m *CategoryMatcher) Score(a, b string) float64 {
	aLower := strings.TrimSpace(strings.ToLower(a))
	bLower := strings.TrimSpace(strings.ToLower(b))
	if aLower == "" || bLower == "" {
		return 0
	}
	if aLower == bLower || strings.Contains(aLower, bLower) || strings.Contains(bLower, aLower) {
		return 1
	}

	aTokens := tokenize(aLower)
	bTokens := tokenize(bLower)
	if len(aTokens) == 0 || len(bTokens) == 0 {
		return 0
	}

	shorter, longer := aTokens, bTokens
	if len(longer) < len(shorter) {
		shorter, longer = longer, shorter
	}

	matched := 0
	for _, s := range shorter {
		for _, l := range longer {
			if s == l || fuzzyTokenMatch(s, l, m.fuzzyEditDistance) {
				matched++
				break
			}
		}
	}

	return float64(matched) / float64(len(shorter))
}

// tokenize splits a string into normalized lowercase tokens.
// Removes punctuation, stop words and pure numeric tokens.
func tokenize(s string) []string {
	cleaned := punctuationRegex.ReplaceAllString(strings.ToLower(s), " ")
	words := strings.Fields(cleaned)

	var tokens []string
	for _, word := range words {
		if len(word) <= 1 {
			continue
		}
		if categoryStopWords[word] {
			continue
		}
		if isNumeric(word) {
			continue
		}
		tokens = append(tokens, word)
	}

	return tokens
}

// isNumeric checks if a string contains only digits
func isNumeric(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(s) > 0
}

// fuzzyTokenMatch checks if two tokens are similar within the edit distance threshold
func fuzzyTokenMatch(token1, token2 string, threshold int) bool {
	if token1 == token2 {
		return true
	}

	// Only apply fuzzy matching to tokens > 4 chars to avoid false positives
	if len(token1) < 4 || len(token2) < 4 {
		return false
	}

	lenDiff := len(token1) - len(token2)
	if lenDiff < 0 {
		lenDiff = -lenDiff
	}
	if lenDiff > threshold {
		return false
	}

	return levenshteinDistance(token1, token2) <= threshold
}

// levenshteinDistance calculates the edit distance between two strings
func levenshteinDistance(s1, s2 string) int {
	if len(s1) == 0 {
		return len(s2)
	}
	if len(s2) == 0 {
		return len(s1)
	}

	r1 := []rune(s1)
	r2 := []rune(s2)
	m := len(r1)
	n := len(r2)

	// Two rows instead of the full matrix
	prev := make([]int, n+1)
	curr := make([]int, n+1)

	for j := 0; j <= n; j++ {
		prev[j] = j
	}

	for i := 1; i <= m; i++ {
		curr[0] = i
		for j := 1; j <= n; j++ {
			cost := 0
			if r1[i-1] != r2[j-1] {
				cost = 1
			}
			curr[j] = min(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}

	return prev[n]
}
