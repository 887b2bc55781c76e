package agents

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"mealwise"
	"mealwise/fooddata"
)

// FoodResolver resolves a single food or barcode.
type FoodResolver interface {
	Lookup(ctx context.Context, q fooddata.Query) (mealwise.NutritionEstimate, error)
}

// Nutrition turns detected foods into a meal-level nutrition range.
type Nutrition struct {
	resolver      FoodResolver
	lookupTimeout time.Duration
}

func NewNutrition(resolver FoodResolver, lookupTimeout time.Duration) *Nutrition {
	return &Nutrition{resolver: resolver, lookupTimeout: lookupTimeout}
}

// Estimate resolves every food, scales it by its portion and sums the
// ranges. Unresolved foods contribute a wide default estimate.
func (n *Nutrition) Estimate(ctx context.Context, foods []mealwise.FoodItem) mealwise.AgentResult[mealwise.NutritionEstimate] {
	return mealwise.Invoke("nutrition.estimate", func() (mealwise.NutritionEstimate, float64, error) {
		items := make([]mealwise.ItemNutrition, 0, len(foods))
		for _, f := range foods {
			items = append(items, n.item(ctx, f))
		}
		est := SumItems(items)
		if !est.IsValid() {
			return est, 0, mealwise.NewProviderError("nutrition.estimate", "invalid range after aggregation", nil)
		}
		return est, itemSourceScore(items), nil
	})
}

// FromBarcode resolves a barcode directly into a one-item estimate. The
// returned food is the synthetic item standing in for vision output.
func (n *Nutrition) FromBarcode(ctx context.Context, code string) (mealwise.AgentResult[mealwise.NutritionEstimate], mealwise.FoodItem) {
	var food mealwise.FoodItem
	res := mealwise.Invoke("nutrition.barcode", func() (mealwise.NutritionEstimate, float64, error) {
		est, err := n.lookup(ctx, fooddata.Query{Barcode: code})
		if err != nil {
			return est, 0, err
		}

		name := est.Name
		if name == "" {
			name = code
		}
		portion := est.Serving
		if portion == "" {
			portion = "1 serving"
		}
		food = mealwise.FoodItem{Name: name, Portion: portion, Confidence: mealwise.ConfidenceHigh, Synthetic: true}

		item := est
		item.Items = nil
		est.Source = mealwise.SourceSyntheticBarcode
		est.Items = []mealwise.ItemNutrition{{Food: food, Estimate: item, Resolved: true}}
		return est, 0.5, nil
	})
	return res, food
}

func (n *Nutrition) item(ctx context.Context, f mealwise.FoodItem) mealwise.ItemNutrition {
	est, err := n.lookup(ctx, fooddata.Query{Name: f.Name})
	resolved := err == nil
	if err != nil {
		slog.Info("NUTRITION: Using default estimate", "food", f.Name, "kind", mealwise.KindOf(err))
		est = DefaultEstimate(f.Name)
	}

	lo, hi := PortionFactor(f.Portion, est.PerGrams)
	scaled := mealwise.NutritionEstimate{
		Name:     est.Name,
		Calories: est.Calories.Scale(lo, hi).Round(),
		Macros:   est.Macros.Scale(lo, hi),
		Fiber:    scalePtr(est.Fiber, lo, hi),
		Sugars:   scalePtr(est.Sugars, lo, hi),
		Sodium:   scalePtr(est.Sodium, lo, hi),
		Source:   est.Source,
		CacheHit: est.CacheHit,
		Serving:  f.Portion,
	}
	scaled.Macros = mealwise.Macros{
		Protein: scaled.Macros.Protein.Round(),
		Carbs:   scaled.Macros.Carbs.Round(),
		Fat:     scaled.Macros.Fat.Round(),
	}
	return mealwise.ItemNutrition{Food: f, Estimate: scaled, Resolved: resolved}
}

func (n *Nutrition) lookup(ctx context.Context, q fooddata.Query) (mealwise.NutritionEstimate, error) {
	if n.lookupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.lookupTimeout)
		defer cancel()
	}
	return n.resolver.Lookup(ctx, q)
}

// SumItems builds the meal-level estimate. Minimums and maximums are summed
// independently; ranges are never averaged.
func SumItems(items []mealwise.ItemNutrition) mealwise.NutritionEstimate {
	total := mealwise.NutritionEstimate{Source: mealwise.SourceDefault, Items: items}
	if len(items) == 0 {
		return total
	}

	names := make([]string, 0, len(items))
	allCached := true
	for i, it := range items {
		e := it.Estimate
		total.Calories = total.Calories.Add(e.Calories)
		total.Macros = total.Macros.Add(e.Macros)
		total.Fiber = addPtr(total.Fiber, e.Fiber)
		total.Sugars = addPtr(total.Sugars, e.Sugars)
		total.Sodium = addPtr(total.Sodium, e.Sodium)
		if i == 0 {
			total.Source = e.Source
		} else {
			total.Source = total.Source.Weaker(e.Source)
		}
		allCached = allCached && e.CacheHit
		names = append(names, it.Food.Name)
	}
	total.Name = strings.Join(names, ", ")
	total.CacheHit = allCached
	return total
}

// DefaultEstimate is a deliberately wide per-100 g guess for foods neither
// source knows.
func DefaultEstimate(name string) mealwise.NutritionEstimate {
	return mealwise.NutritionEstimate{
		Name:     name,
		Calories: mealwise.Range{Min: 100, Max: 250},
		Macros: mealwise.Macros{
			Protein: mealwise.Range{Min: 2, Max: 10},
			Carbs:   mealwise.Range{Min: 5, Max: 30},
			Fat:     mealwise.Range{Min: 2, Max: 12},
		},
		Source:   mealwise.SourceDefault,
		PerGrams: 100,
	}
}

// SourceFactor scores how much an estimate's provenance can be trusted.
func SourceFactor(s mealwise.Source) float64 {
	switch s {
	case mealwise.SourcePrimary:
		return 1.0
	case mealwise.SourceFallback:
		return 0.7
	case mealwise.SourceSyntheticBarcode:
		return 0.5
	}
	return 0.2
}

func itemSourceScore(items []mealwise.ItemNutrition) float64 {
	if len(items) == 0 {
		return 0
	}
	var sum float64
	for _, it := range items {
		sum += SourceFactor(it.Estimate.Source)
	}
	return sum / float64(len(items))
}

func scalePtr(r *mealwise.Range, lo, hi float64) *mealwise.Range {
	if r == nil {
		return nil
	}
	s := r.Scale(lo, hi).Round()
	return &s
}

func addPtr(a, b *mealwise.Range) *mealwise.Range {
	switch {
	case a == nil && b == nil:
		return nil
	case a == nil:
		c := *b
		return &c
	case b == nil:
		return a
	}
	c := a.Add(*b)
	return &c
}
