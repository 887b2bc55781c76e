package mealwise

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"
)

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type SlackClient interface {
	PostMessage(ctx context.Context, channel string, message string) error
}

// MealStore persists analysed meals and user feedback.
type MealStore interface {
	SaveMeal(ctx context.Context, meal Meal) (string, error)
	LoadRecentMeals(ctx context.Context, userID string, since time.Time) ([]Meal, error)
	SaveFeedback(ctx context.Context, fb Feedback) (string, error)
	LoadFeedback(ctx context.Context, userID string, since time.Time) ([]Feedback, error)
}

// Archive stores opaque blobs such as meal images and pipeline traces.
type Archive interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
}

type MealContext string

const (
	ContextHomemade   MealContext = "homemade"
	ContextRestaurant MealContext = "restaurant"
	ContextSnack      MealContext = "snack"
	ContextMeal       MealContext = "meal"
)

// ParseMealContext returns the context tag for s, or "" when s is not a known tag.
func ParseMealContext(s string) MealContext {
	switch c := MealContext(strings.ToLower(strings.TrimSpace(s))); c {
	case ContextHomemade, ContextRestaurant, ContextSnack, ContextMeal:
		return c
	}
	return ""
}

type ConfidenceLevel string

const (
	ConfidenceLow    ConfidenceLevel = "low"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceHigh   ConfidenceLevel = "high"
)

// ParseConfidenceLevel maps free text to a level, defaulting to medium.
func ParseConfidenceLevel(s string) ConfidenceLevel {
	switch c := ConfidenceLevel(strings.ToLower(strings.TrimSpace(s))); c {
	case ConfidenceLow, ConfidenceMedium, ConfidenceHigh:
		return c
	}
	return ConfidenceMedium
}

// Score is the numeric weight of a level used by confidence aggregation.
func (c ConfidenceLevel) Score() float64 {
	switch c {
	case ConfidenceLow:
		return 0.3
	case ConfidenceMedium:
		return 0.6
	case ConfidenceHigh:
		return 0.9
	}
	return 0
}

type EnergyTag string

const (
	EnergyLow    EnergyTag = "low"
	EnergyMedium EnergyTag = "medium"
	EnergyHigh   EnergyTag = "high"
)

func ParseEnergyTag(s string) EnergyTag {
	switch e := EnergyTag(strings.ToLower(strings.TrimSpace(s))); e {
	case EnergyLow, EnergyMedium, EnergyHigh:
		return e
	}
	return ""
}

// AnalysisRequest is one meal analysis call. It is passed by value and never mutated.
type AnalysisRequest struct {
	RequestID  string      `json:"request_id"`
	UserID     string      `json:"user_id"`
	Image      []byte      `json:"-"`
	ImageMIME  string      `json:"image_mime,omitempty"`
	Barcode    string      `json:"barcode,omitempty"`
	Context    MealContext `json:"context,omitempty"`
	Note       string      `json:"note,omitempty"`
	EnergyTag  EnergyTag   `json:"energy_tag,omitempty"`
	Profile    *Profile    `json:"profile,omitempty"`
	ReceivedAt time.Time   `json:"received_at"`
}

// FoodItem is one detected (or synthesized) food. Lists keep detection order.
type FoodItem struct {
	Name       string          `json:"name"`
	Portion    string          `json:"portion"`
	Confidence ConfidenceLevel `json:"confidence"`
	Synthetic  bool            `json:"synthetic,omitempty"`
}

// Range is a closed interval. Nutrition quantities are always ranges.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Band returns v widened by frac on both sides, floored at zero.
func Band(v, frac float64) Range {
	if v < 0 || math.IsNaN(v) {
		v = 0
	}
	return Range{Min: math.Max(0, v*(1-frac)), Max: v * (1 + frac)}
}

func (r Range) Valid() bool {
	if math.IsNaN(r.Min) || math.IsNaN(r.Max) || math.IsInf(r.Max, 0) {
		return false
	}
	return r.Min >= 0 && r.Min <= r.Max
}

func (r Range) Add(o Range) Range {
	return Range{Min: r.Min + o.Min, Max: r.Max + o.Max}
}

// Scale multiplies the lower bound by lo and the upper bound by hi.
func (r Range) Scale(lo, hi float64) Range {
	return Range{Min: r.Min * lo, Max: r.Max * hi}
}

func (r Range) Mid() float64 {
	return (r.Min + r.Max) / 2
}

// Round rounds both bounds to one decimal place.
func (r Range) Round() Range {
	return Range{Min: math.Round(r.Min*10) / 10, Max: math.Round(r.Max*10) / 10}
}

type Macros struct {
	Protein Range `json:"protein_g"`
	Carbs   Range `json:"carbs_g"`
	Fat     Range `json:"fat_g"`
}

func (m Macros) Add(o Macros) Macros {
	return Macros{
		Protein: m.Protein.Add(o.Protein),
		Carbs:   m.Carbs.Add(o.Carbs),
		Fat:     m.Fat.Add(o.Fat),
	}
}

func (m Macros) Scale(lo, hi float64) Macros {
	return Macros{
		Protein: m.Protein.Scale(lo, hi),
		Carbs:   m.Carbs.Scale(lo, hi),
		Fat:     m.Fat.Scale(lo, hi),
	}
}

// Source is the provenance of a nutrition estimate.
type Source string

const (
	SourcePrimary          Source = "primary-source"
	SourceFallback         Source = "fallback-source"
	SourceSyntheticBarcode Source = "synthetic-barcode"
	SourceDefault          Source = "default"
)

// rank orders sources from most to least trusted.
func (s Source) rank() int {
	switch s {
	case SourcePrimary:
		return 0
	case SourceFallback:
		return 1
	case SourceSyntheticBarcode:
		return 2
	}
	return 3
}

// Weaker returns the less trusted of s and o.
func (s Source) Weaker(o Source) Source {
	if o.rank() > s.rank() {
		return o
	}
	return s
}

// NutritionEstimate is a range-based nutrition record for one food or one meal.
type NutritionEstimate struct {
	Name     string          `json:"name,omitempty"`
	Calories Range           `json:"calories"`
	Macros   Macros          `json:"macros"`
	Fiber    *Range          `json:"fiber_g,omitempty"`
	Sugars   *Range          `json:"sugars_g,omitempty"`
	Sodium   *Range          `json:"sodium_mg,omitempty"`
	Source   Source          `json:"source"`
	CacheHit bool            `json:"cache_hit"`
	Serving  string          `json:"serving,omitempty"`
	PerGrams float64         `json:"per_grams,omitempty"`
	Items    []ItemNutrition `json:"items,omitempty"`
}

// IsValid reports whether every range in the estimate, including item breakdowns, is well formed.
func (n NutritionEstimate) IsValid() bool {
	for _, r := range []Range{n.Calories, n.Macros.Protein, n.Macros.Carbs, n.Macros.Fat} {
		if !r.Valid() {
			return false
		}
	}
	for _, r := range []*Range{n.Fiber, n.Sugars, n.Sodium} {
		if r != nil && !r.Valid() {
			return false
		}
	}
	for _, it := range n.Items {
		if !it.Estimate.IsValid() {
			return false
		}
	}
	return true
}

// ItemNutrition is the per-food contribution to a meal-level estimate.
type ItemNutrition struct {
	Food     FoodItem          `json:"food"`
	Estimate NutritionEstimate `json:"estimate"`
	Resolved bool              `json:"resolved"`
}

type VisionOutput struct {
	Foods           []FoodItem  `json:"foods"`
	BarcodeDetected string      `json:"barcode_detected,omitempty"`
	AmbiguityScore  float64     `json:"ambiguity_score"`
	ContextApplied  MealContext `json:"context_applied,omitempty"`
}

type BalanceStatus string

const (
	BalanceUnderFueled    BalanceStatus = "under_fueled"
	BalanceRoughlyAligned BalanceStatus = "roughly_aligned"
	BalanceSlightlyOver   BalanceStatus = "slightly_over"
)

func (b BalanceStatus) Emoji() string {
	switch b {
	case BalanceUnderFueled:
		return "🔵"
	case BalanceSlightlyOver:
		return "🟠"
	}
	return "🟢"
}

// PersonalizationContext is the profile-relative view of today's intake.
type PersonalizationContext struct {
	Profile       Profile             `json:"profile"`
	PriorMeals    []NutritionEstimate `json:"prior_meals,omitempty"`
	Cumulative    Range               `json:"cumulative_calories"`
	Expected      Range               `json:"expected_calories"`
	Remaining     Range               `json:"remaining_estimate"`
	BalanceStatus BalanceStatus       `json:"balance_status"`
	DailyContext  string              `json:"daily_context"`
}

type WellnessOutput struct {
	Message         string   `json:"message"`
	Suggestions     []string `json:"suggestions"`
	Emoji           string   `json:"emoji_indicator"`
	DisclaimerShown bool     `json:"disclaimer_shown"`
	Replaced        bool     `json:"replaced,omitempty"`
}

// Meal is the persisted record of one analysis.
type Meal struct {
	ID            string            `json:"id"`
	UserID        string            `json:"user_id"`
	CreatedAt     time.Time         `json:"created_at"`
	Context       MealContext       `json:"context,omitempty"`
	Note          string            `json:"note,omitempty"`
	EnergyTag     EnergyTag         `json:"energy_tag,omitempty"`
	Barcode       string            `json:"barcode,omitempty"`
	Foods         []FoodItem        `json:"foods"`
	Nutrition     NutritionEstimate `json:"nutrition"`
	BalanceStatus BalanceStatus     `json:"balance_status"`
	Wellness      WellnessOutput    `json:"wellness"`
	Confidence    float64           `json:"confidence"`
	Ambiguous     bool              `json:"ambiguous"`
	ImageKey      string            `json:"image_key,omitempty"`
}

type FeedbackType string

const (
	FeedbackAccurate       FeedbackType = "accurate"
	FeedbackPortionBigger  FeedbackType = "portion_bigger"
	FeedbackPortionSmaller FeedbackType = "portion_smaller"
	FeedbackWrongFood      FeedbackType = "wrong_food"
)

func (f FeedbackType) Valid() bool {
	switch f {
	case FeedbackAccurate, FeedbackPortionBigger, FeedbackPortionSmaller, FeedbackWrongFood:
		return true
	}
	return false
}

type Feedback struct {
	ID        string       `json:"id"`
	MealID    string       `json:"meal_id"`
	UserID    string       `json:"user_id"`
	Type      FeedbackType `json:"feedback_type"`
	Comment   string       `json:"comment,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

const Disclaimer = "This app provides general wellness insights, not medical advice."

// AnalysisResponse is returned for every analysis, degraded or not.
type AnalysisResponse struct {
	RequestID       string                              `json:"request_id"`
	MealID          string                              `json:"meal_id,omitempty"`
	State           string                              `json:"state"`
	Path            []string                            `json:"path"`
	Vision          AgentResult[VisionOutput]           `json:"vision"`
	Nutrition       AgentResult[NutritionEstimate]      `json:"nutrition"`
	Personalization AgentResult[PersonalizationContext] `json:"personalization"`
	Wellness        AgentResult[WellnessOutput]         `json:"wellness"`
	Confidence      float64                             `json:"confidence"`
	Ambiguous       bool                                `json:"ambiguous"`
	Degraded        bool                                `json:"degraded"`
	DegradedStages  []string                            `json:"degraded_stages,omitempty"`
	Message         string                              `json:"message"`
	Emoji           string                              `json:"emoji_indicator"`
	Suggestions     []string                            `json:"suggestions"`
	Disclaimer      string                              `json:"disclaimer"`
	CreatedAt       time.Time                           `json:"created_at"`
}
