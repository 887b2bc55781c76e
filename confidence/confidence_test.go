package confidence

import (
	"testing"

	"mealwise"

	"github.com/stretchr/testify/assert"
)

func foods(levels ...mealwise.ConfidenceLevel) []mealwise.FoodItem {
	out := make([]mealwise.FoodItem, 0, len(levels))
	for i, l := range levels {
		out = append(out, mealwise.FoodItem{Name: string(rune('a' + i)), Confidence: l})
	}
	return out
}

func visionOK(ambiguity float64, f []mealwise.FoodItem) mealwise.AgentResult[mealwise.VisionOutput] {
	return mealwise.Succeeded(mealwise.VisionOutput{Foods: f, AmbiguityScore: ambiguity}, 0, 0)
}

func nutritionFrom(sources ...mealwise.Source) mealwise.AgentResult[mealwise.NutritionEstimate] {
	est := mealwise.NutritionEstimate{Source: mealwise.SourcePrimary}
	for _, s := range sources {
		est.Items = append(est.Items, mealwise.ItemNutrition{Estimate: mealwise.NutritionEstimate{Source: s}})
		est.Source = est.Source.Weaker(s)
	}
	return mealwise.Succeeded(est, 0, 0)
}

var personalized = mealwise.Succeeded(mealwise.PersonalizationContext{}, 0.8, 0)

func TestAggregate(t *testing.T) {
	tests := []struct {
		name          string
		vision        mealwise.AgentResult[mealwise.VisionOutput]
		nutrition     mealwise.AgentResult[mealwise.NutritionEstimate]
		personal      mealwise.AgentResult[mealwise.PersonalizationContext]
		want          float64
		wantLevel     mealwise.ConfidenceLevel
		wantAmbiguous bool
	}{
		{
			name:      "all high, primary, clear",
			vision:    visionOK(0, foods(mealwise.ConfidenceHigh, mealwise.ConfidenceHigh)),
			nutrition: nutritionFrom(mealwise.SourcePrimary, mealwise.SourcePrimary),
			personal:  personalized,
			want:      0.5*0.9 + 0.2*1 + 0.3*1,
			wantLevel: mealwise.ConfidenceHigh,
		},
		{
			name:      "mixed with fallback",
			vision:    visionOK(0.2, foods(mealwise.ConfidenceHigh, mealwise.ConfidenceMedium)),
			nutrition: nutritionFrom(mealwise.SourcePrimary, mealwise.SourceFallback),
			personal:  personalized,
			want:      0.5*0.75 + 0.2*0.8 + 0.3*0.85,
			wantLevel: mealwise.ConfidenceHigh,
		},
		{
			name:          "vision failed",
			vision:        mealwise.Failed[mealwise.VisionOutput](mealwise.NewProviderError("v", "down", nil), 0),
			nutrition:     nutritionFrom(),
			personal:      personalized,
			want:          0,
			wantLevel:     mealwise.ConfidenceMedium,
			wantAmbiguous: true,
		},
		{
			name:   "barcode",
			vision: visionOK(0, []mealwise.FoodItem{{Name: "Granola Bar", Confidence: mealwise.ConfidenceHigh, Synthetic: true}}),
			nutrition: mealwise.Succeeded(mealwise.NutritionEstimate{
				Source: mealwise.SourceSyntheticBarcode,
				Items:  []mealwise.ItemNutrition{{Estimate: mealwise.NutritionEstimate{Source: mealwise.SourceFallback}}},
			}, 0.5, 0),
			personal:  personalized,
			want:      0.5*0.9 + 0.2*1 + 0.3*0.5,
			wantLevel: mealwise.ConfidenceHigh,
		},
		{
			name:      "personalization failed",
			vision:    visionOK(0, foods(mealwise.ConfidenceHigh)),
			nutrition: nutritionFrom(mealwise.SourcePrimary),
			personal:  mealwise.Failed[mealwise.PersonalizationContext](mealwise.NewProviderError("p", "db", nil), 0),
			want:      (0.5*0.9 + 0.2 + 0.3) * 0.9,
			wantLevel: mealwise.ConfidenceHigh,
		},
		{
			name:          "ambiguous image",
			vision:        visionOK(0.8, foods(mealwise.ConfidenceLow, mealwise.ConfidenceHigh)),
			nutrition:     nutritionFrom(mealwise.SourcePrimary, mealwise.SourcePrimary),
			personal:      personalized,
			want:          0.5*0.6 + 0.2*0.2 + 0.3,
			wantLevel:     mealwise.ConfidenceLow,
			wantAmbiguous: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewDefault().Aggregate(tt.vision, tt.nutrition, tt.personal)

			assert.InDelta(t, tt.want, got.Overall, 1e-3)
			assert.Equal(t, tt.wantLevel, got.Level)
			assert.Equal(t, tt.wantAmbiguous, got.Ambiguous)
		})
	}
}

func TestAggregate_MonotonicInItemConfidence(t *testing.T) {
	levels := []mealwise.ConfidenceLevel{mealwise.ConfidenceLow, mealwise.ConfidenceMedium, mealwise.ConfidenceHigh}
	agg := NewDefault()
	nutrition := nutritionFrom(mealwise.SourcePrimary, mealwise.SourceFallback, mealwise.SourceDefault)

	for _, a := range levels {
		for _, b := range levels {
			for i, c := range levels[:len(levels)-1] {
				raised := levels[i+1]
				base := agg.Aggregate(visionOK(0.3, foods(a, b, c)), nutrition, personalized)
				up := agg.Aggregate(visionOK(0.3, foods(a, b, raised)), nutrition, personalized)
				assert.GreaterOrEqual(t, up.Overall, base.Overall, "%s,%s,%s -> %s", a, b, c, raised)
			}
		}
	}
}

func TestAggregate_MonotonicInAmbiguityAndSource(t *testing.T) {
	agg := NewDefault()
	f := foods(mealwise.ConfidenceMedium)

	prev := 2.0
	for amb := 0.0; amb <= 1.0; amb += 0.1 {
		got := agg.Aggregate(visionOK(amb, f), nutritionFrom(mealwise.SourcePrimary), personalized).Overall
		assert.LessOrEqual(t, got, prev)
		prev = got
	}

	primary := agg.Aggregate(visionOK(0.2, f), nutritionFrom(mealwise.SourcePrimary), personalized).Overall
	fallback := agg.Aggregate(visionOK(0.2, f), nutritionFrom(mealwise.SourceFallback), personalized).Overall
	missing := agg.Aggregate(visionOK(0.2, f), nutritionFrom(mealwise.SourceDefault), personalized).Overall
	assert.Greater(t, primary, fallback)
	assert.Greater(t, fallback, missing)
}

func TestLevel(t *testing.T) {
	assert.Equal(t, mealwise.ConfidenceMedium, Level(nil))
	assert.Equal(t, mealwise.ConfidenceHigh, Level(foods(mealwise.ConfidenceHigh, mealwise.ConfidenceMedium)))
	assert.Equal(t, mealwise.ConfidenceMedium, Level(foods(mealwise.ConfidenceHigh, mealwise.ConfidenceMedium, mealwise.ConfidenceMedium)))
	assert.Equal(t, mealwise.ConfidenceLow, Level(foods(mealwise.ConfidenceHigh, mealwise.ConfidenceLow)))
}
