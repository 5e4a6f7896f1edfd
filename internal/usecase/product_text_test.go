package usecase

import (
	"testing"

	"github.com/cartwise/backend/internal/domain"
)

func TestNewTextPreprocessor(t *testing.T) {
	t.Run("creates preprocessor with debug logging disabled", func(t *testing.T) {
		p := NewTextPreprocessor(false)
		if p.enableDebugLogging {
			t.Error("expected debug logging to be disabled")
		}
	})

	t.Run("creates preprocessor with debug logging enabled", func(t *testing.T) {
		p := NewTextPreprocessor(true)
		if !p.enableDebugLogging {
			t.Error("expected debug logging to be enabled")
		}
	})
}

func TestCleanTitle(t *testing.T) {
	p := NewTextPreprocessor(false)

	testCases := []struct {
		name  string
		title string
		want  string
	}{
		{"removes size in fl oz", "Coca-Cola, 12 fl oz", "coca-cola"},
		{"removes size in oz", "Cheerios Cereal, 18 oz", "cheerios cereal"},
		{"removes pack count", "Coca-Cola Soda Pop, 6 pack", "coca-cola soda pop"},
		{"removes lb weight", "Tyson Chicken Breasts, 2.5 lb", "tyson chicken breasts"},
		{"removes noise words", "New Improved Jumbo Bag Pretzels", "pretzels"},
		{"keeps plain titles", "Whole Milk", "whole milk"},
		{"empty input", "", ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := p.CleanTitle(tc.title); got != tc.want {
				t.Errorf("CleanTitle(%q) = %q, want %q", tc.title, got, tc.want)
			}
		})
	}
}

func TestEmbeddingText(t *testing.T) {
	p := NewTextPreprocessor(false)

	t.Run("joins title brand and category path", func(t *testing.T) {
		product := domain.Product{Title: "Whole Milk, 128 fl oz", Brand: "Horizon", Subcategory: "Milk", Category: "Dairy"}
		want := "whole milk | horizon | milk | dairy"
		if got := p.EmbeddingText(product); got != want {
			t.Errorf("EmbeddingText() = %q, want %q", got, want)
		}
	})

	t.Run("skips brand already in title", func(t *testing.T) {
		product := domain.Product{Title: "Horizon Organic Milk", Brand: "Horizon", Subcategory: "Milk", Category: "Dairy"}
		want := "horizon organic milk | milk | dairy"
		if got := p.EmbeddingText(product); got != want {
			t.Errorf("EmbeddingText() = %q, want %q", got, want)
		}
	})

	t.Run("omits empty fields", func(t *testing.T) {
		product := domain.Product{Title: "Bananas"}
		if got := p.EmbeddingText(product); got != "bananas" {
			t.Errorf("EmbeddingText() = %q, want %q", got, "bananas")
		}
	})
}

func TestRemoveNoiseWords(t *testing.T) {
	testCases := []struct {
		input string
		want  string
	}{
		{"family size box cereal", "cereal"},
		{"new improved chips", "chips"},
		{"", ""},
		{"chicken breast", "chicken breast"},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			if got := removeNoiseWords(tc.input); got != tc.want {
				t.Errorf("removeNoiseWords(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestContainsAnyPhrase(t *testing.T) {
	testCases := []struct {
		text    string
		phrases []string
		want    bool
	}{
		{"Grass-Fed Ground Beef", []string{"grass fed"}, true},
		{"Great Value Whole Milk", []string{"great value"}, true},
		{"Organically Grown Apples", []string{"organic"}, false},
		{"Organic Apples", []string{"premium", "organic"}, true},
		{"Whole Milk", []string{"organic"}, false},
		{"", []string{"organic"}, false},
	}

	for _, tc := range testCases {
		t.Run(tc.text, func(t *testing.T) {
			if got := containsAnyPhrase(tc.text, tc.phrases); got != tc.want {
				t.Errorf("containsAnyPhrase(%q, %v) = %v, want %v", tc.text, tc.phrases, got, tc.want)
			}
		})
	}
}
