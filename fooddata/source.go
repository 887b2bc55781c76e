// Package fooddata resolves food names and barcodes to range-based nutrition
// estimates using a primary raw-ingredient database (USDA FoodData Central),
// a fallback packaged-food database (Open Food Facts) and a shared TTL cache.
package fooddata

import (
	"context"
	"math"
	"strings"

	"mealwise"
)

// NameSource looks up nutrition by food name. A miss is reported as a
// mealwise NotFound error.
type NameSource interface {
	LookupByName(ctx context.Context, name string) (mealwise.NutritionEstimate, error)
}

// BarcodeSource looks up a packaged product by its barcode.
type BarcodeSource interface {
	LookupByBarcode(ctx context.Context, code string) (mealwise.NutritionEstimate, error)
}

// FallbackSource is a source that supports both name and barcode lookups.
type FallbackSource interface {
	NameSource
	BarcodeSource
}

const (
	primaryBand  = 0.10
	fallbackBand = 0.05
)

// record is a point-valued nutrient record as returned by a source.
type record struct {
	name     string
	calories float64
	protein  float64
	carbs    float64
	fat      float64
	fiber    *float64
	sugars   *float64
	sodiumMg *float64
	serving  string
	perGrams float64
}

func (r record) empty() bool {
	return r.calories == 0 && r.protein == 0 && r.carbs == 0 && r.fat == 0
}

// estimate widens the record into ranges of ±band.
func (r record) estimate(source mealwise.Source, band float64) mealwise.NutritionEstimate {
	opt := func(v *float64) *mealwise.Range {
		if v == nil {
			return nil
		}
		b := mealwise.Band(*v, band).Round()
		return &b
	}
	return mealwise.NutritionEstimate{
		Name:     r.name,
		Calories: mealwise.Band(r.calories, band).Round(),
		Macros: mealwise.Macros{
			Protein: mealwise.Band(r.protein, band).Round(),
			Carbs:   mealwise.Band(r.carbs, band).Round(),
			Fat:     mealwise.Band(r.fat, band).Round(),
		},
		Fiber:    opt(r.fiber),
		Sugars:   opt(r.sugars),
		Sodium:   opt(r.sodiumMg),
		Source:   source,
		Serving:  r.serving,
		PerGrams: r.perGrams,
	}
}

// normalizeKey lower-cases a name and collapses its whitespace.
func normalizeKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
