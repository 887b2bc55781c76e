// Package confidence combines per-stage results into one overall score for
// a meal analysis.
package confidence

import (
	"math"

	"mealwise"
	"mealwise/agents"
)

// Weights of the three components. They should sum to 1.
type Weights struct {
	Items   float64
	Clarity float64
	Source  float64
}

var DefaultWeights = Weights{Items: 0.5, Clarity: 0.2, Source: 0.3}

const (
	// personalizationPenalty scales the score when the day's context could
	// not be built.
	personalizationPenalty = 0.9
	ambiguityThreshold     = 0.6
	lowScoreThreshold      = 0.4
)

type Components struct {
	Items   float64 `json:"items"`
	Clarity float64 `json:"clarity"`
	Source  float64 `json:"source"`
}

type Result struct {
	Overall    float64                  `json:"overall"`
	Level      mealwise.ConfidenceLevel `json:"level"`
	Ambiguous  bool                     `json:"ambiguous"`
	Components Components               `json:"components"`
}

type Aggregator struct {
	weights Weights
}

func New(w Weights) *Aggregator {
	return &Aggregator{weights: w}
}

func NewDefault() *Aggregator {
	return New(DefaultWeights)
}

// Aggregate scores an analysis. A failed vision stage contributes no item
// or clarity credit; a failed nutrition stage contributes no source credit.
func (a *Aggregator) Aggregate(
	vision mealwise.AgentResult[mealwise.VisionOutput],
	nutrition mealwise.AgentResult[mealwise.NutritionEstimate],
	personalization mealwise.AgentResult[mealwise.PersonalizationContext],
) Result {
	var c Components
	ambiguity := 1.0
	var foods []mealwise.FoodItem
	if vision.Success {
		v := vision.Get()
		foods = v.Foods
		c.Items = ItemScore(foods)
		ambiguity = v.AmbiguityScore
	}
	c.Clarity = 1 - clamp(ambiguity)
	if nutrition.Success {
		c.Source = SourceScore(nutrition.Get())
	}

	overall := a.weights.Items*c.Items + a.weights.Clarity*c.Clarity + a.weights.Source*c.Source
	if !personalization.Success {
		overall *= personalizationPenalty
	}
	overall = math.Round(clamp(overall)*1000) / 1000

	return Result{
		Overall:    overall,
		Level:      Level(foods),
		Ambiguous:  ambiguity >= ambiguityThreshold || overall < lowScoreThreshold,
		Components: c,
	}
}

// ItemScore is the mean per-food confidence (low 0.3, medium 0.6, high 0.9).
func ItemScore(foods []mealwise.FoodItem) float64 {
	if len(foods) == 0 {
		return 0
	}
	var sum float64
	for _, f := range foods {
		sum += f.Confidence.Score()
	}
	return sum / float64(len(foods))
}

// SourceScore rates where the nutrition numbers came from. A barcode-only
// estimate scores as synthetic; otherwise each item's source is averaged.
func SourceScore(est mealwise.NutritionEstimate) float64 {
	if est.Source == mealwise.SourceSyntheticBarcode {
		return agents.SourceFactor(mealwise.SourceSyntheticBarcode)
	}
	if len(est.Items) == 0 {
		return 0
	}
	var sum float64
	for _, it := range est.Items {
		sum += agents.SourceFactor(it.Estimate.Source)
	}
	return sum / float64(len(est.Items))
}

// Level is a categorical summary of item confidence: any low item makes the
// meal low, at least half high makes it high.
func Level(foods []mealwise.FoodItem) mealwise.ConfidenceLevel {
	if len(foods) == 0 {
		return mealwise.ConfidenceMedium
	}
	high := 0
	for _, f := range foods {
		switch f.Confidence {
		case mealwise.ConfidenceLow:
			return mealwise.ConfidenceLow
		case mealwise.ConfidenceHigh:
			high++
		}
	}
	if 2*high >= len(foods) {
		return mealwise.ConfidenceHigh
	}
	return mealwise.ConfidenceMedium
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
