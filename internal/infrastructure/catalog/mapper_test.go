package catalog

import (
	"testing"
)

func TestMapToRawProduct(t *testing.T) {
	tests := []struct {
		name  string
		row   Row
		check func(t *testing.T, row Row)
	}{
		{
			name: "trims fields and keeps price as given",
			row:  Row{Title: "  Whole Milk ", Brand: " Horizon ", Category: "Dairy", Subcategory: "Milk", Price: "$3.49", Size: " 1 gal "},
			check: func(t *testing.T, row Row) {
				raw := MapToRawProduct(row)
				if raw.Title != "Whole Milk" || raw.Brand != "Horizon" || raw.Size != "1 gal" {
					t.Errorf("MapToRawProduct() = %+v", raw)
				}
				if raw.Price != "$3.49" {
					t.Errorf("Price = %v, want $3.49", raw.Price)
				}
				if raw.Nutrition != nil {
					t.Errorf("Nutrition = %v, want nil", raw.Nutrition)
				}
			},
		},
		{
			name: "falls back to name",
			row:  Row{Name: "Bananas", Category: "Produce", Subcategory: "Fruit", Price: 1.0},
			check: func(t *testing.T, row Row) {
				if raw := MapToRawProduct(row); raw.Title != "Bananas" {
					t.Errorf("Title = %q, want Bananas", raw.Title)
				}
			},
		},
		{
			name: "maps nutrient ids",
			row: Row{Title: "Greek Yogurt", Nutrients: []Nutrient{
				{NutrientID: NutrientIDEnergy, Value: 59},
				{NutrientID: NutrientIDProtein, Value: 10.2},
				{NutrientID: NutrientIDSugars, Value: 3.2},
				{NutrientID: NutrientIDSodium, Value: 36},
				{NutrientID: 9999, Value: 1},
			}},
			check: func(t *testing.T, row Row) {
				n := MapToRawProduct(row).Nutrition
				want := map[string]float64{"calories": 59, "protein": 10.2, "sugar": 3.2, "sodium": 36}
				if len(n) != len(want) {
					t.Fatalf("Nutrition = %v, want %v", n, want)
				}
				for k, v := range want {
					if n[k] != v {
						t.Errorf("Nutrition[%s] = %v, want %v", k, n[k], v)
					}
				}
			},
		},
		{
			name: "flat map wins over nutrient list",
			row: Row{
				Title:     "Cheddar",
				Nutrition: map[string]float64{"protein": 25},
				Nutrients: []Nutrient{{NutrientID: NutrientIDProtein, Value: 20}, {NutrientID: NutrientIDFiber, Value: 0}},
			},
			check: func(t *testing.T, row Row) {
				n := MapToRawProduct(row).Nutrition
				if n["protein"] != 25 {
					t.Errorf("protein = %v, want 25", n["protein"])
				}
				if _, ok := n["fiber"]; !ok {
					t.Error("fiber from nutrient list missing")
				}
			},
		},
		{
			name: "unknown nutrients only",
			row:  Row{Title: "Water", Nutrients: []Nutrient{{NutrientID: 1, Value: 1}}},
			check: func(t *testing.T, row Row) {
				if n := MapToRawProduct(row).Nutrition; n != nil {
					t.Errorf("Nutrition = %v, want nil", n)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, tt.row)
		})
	}
}

func TestFindNutrientValue(t *testing.T) {
	nutrients := []Nutrient{
		{NutrientID: NutrientIDEnergy, Value: 165},
		{NutrientID: NutrientIDProtein, Value: 31},
	}

	tests := []struct {
		name       string
		nutrientID int
		expected   float64
	}{
		{"find energy", NutrientIDEnergy, 165},
		{"find protein", NutrientIDProtein, 31},
		{"nutrient not found", 9999, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FindNutrientValue(nutrients, tt.nutrientID); got != tt.expected {
				t.Errorf("FindNutrientValue() = %v, want %v", got, tt.expected)
			}
		})
	}
}
