package tools

import (
	"context"
	"slices"
	"time"

	"mealwise"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"
)

type RecordFeedback struct{ store mealwise.MealStore }

func NewRecordFeedback(store mealwise.MealStore) *RecordFeedback {
	return &RecordFeedback{store: store}
}

func (t *RecordFeedback) Name() string  { return "record_feedback" }
func (t *RecordFeedback) Title() string { return "Record Meal Feedback" }
func (t *RecordFeedback) Description() string {
	return "Records whether an analysed meal was accurate, or whether the portion or food was off."
}

func (t *RecordFeedback) InputSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"meal_id": stringSchema("Id returned when the meal was analysed"),
			"feedback_type": {
				Type: "string",
				Enum: []any{"accurate", "portion_bigger", "portion_smaller", "wrong_food"},
			},
			"comment": stringSchema("Optional free-text comment"),
		},
		Required: []string{"meal_id", "feedback_type"},
	}
}

func (t *RecordFeedback) OutputSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"feedback_id": {Type: "string"},
			"meal_id":     {Type: "string"},
		},
		Required: []string{"feedback_id", "meal_id"},
	}
}

func (t *RecordFeedback) Run(ctx context.Context, input map[string]any) (map[string]any, error) {
	var params struct {
		MealID  string `json:"meal_id"`
		Type    string `json:"feedback_type"`
		Comment string `json:"comment"`
	}
	if err := decodeInput(input, &params); err != nil {
		return nil, mealwise.NewDecodeError("tools.record_feedback", "invalid parameters", err)
	}

	id, err := t.store.SaveFeedback(ctx, mealwise.Feedback{
		MealID:    params.MealID,
		Type:      mealwise.FeedbackType(params.Type),
		Comment:   params.Comment,
		CreatedAt: time.Now(),
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"feedback_id": id, "meal_id": params.MealID}, nil
}

const (
	defaultRecentDays  = 7
	maxRecentDays      = 30
	defaultRecentLimit = 20
)

type RecentMeals struct {
	store mealwise.MealStore
	now   func() time.Time
}

func NewRecentMeals(store mealwise.MealStore) *RecentMeals {
	return &RecentMeals{store: store, now: time.Now}
}

func (t *RecentMeals) Name() string  { return "recent_meals" }
func (t *RecentMeals) Title() string { return "Recent Meals" }
func (t *RecentMeals) Description() string {
	return "Lists the user's most recent meals, newest first, with foods and calorie ranges."
}

func (t *RecentMeals) InputSchema() *jsonschema.Schema {
	one := 1.0
	maxDays := float64(maxRecentDays)
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"user_id": stringSchema("User whose meals are listed"),
			"days":    {Type: "integer", Minimum: &one, Maximum: &maxDays},
			"limit":   {Type: "integer", Minimum: &one},
		},
		Required: []string{"user_id"},
	}
}

func (t *RecentMeals) OutputSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"meals": {
				Type: "array",
				Items: &jsonschema.Schema{
					Type: "object",
					Properties: map[string]*jsonschema.Schema{
						"id":             {Type: "string"},
						"created_at":     {Type: "string"},
						"foods":          {Type: "array", Items: &jsonschema.Schema{Type: "string"}},
						"calories":       rangeSchema(),
						"balance_status": {Type: "string"},
						"confidence":     {Type: "number"},
					},
					Required: []string{"id", "created_at", "foods", "calories"},
				},
			},
		},
		Required: []string{"meals"},
	}
}

type mealSummary struct {
	ID            string                 `json:"id"`
	CreatedAt     time.Time              `json:"created_at"`
	Foods         []string               `json:"foods"`
	Calories      mealwise.Range         `json:"calories"`
	BalanceStatus mealwise.BalanceStatus `json:"balance_status,omitempty"`
	Confidence    float64                `json:"confidence"`
}

func (t *RecentMeals) Run(ctx context.Context, input map[string]any) (map[string]any, error) {
	var params struct {
		UserID string `json:"user_id"`
		Days   int    `json:"days"`
		Limit  int    `json:"limit"`
	}
	if err := decodeInput(input, &params); err != nil {
		return nil, mealwise.NewDecodeError("tools.recent_meals", "invalid parameters", err)
	}
	if params.UserID == "" {
		return nil, mealwise.NewDecodeError("tools.recent_meals", "user_id is required", nil)
	}
	if params.Days <= 0 {
		params.Days = defaultRecentDays
	}
	params.Days = min(params.Days, maxRecentDays)
	if params.Limit <= 0 {
		params.Limit = defaultRecentLimit
	}

	meals, err := t.store.LoadRecentMeals(ctx, params.UserID, t.now().AddDate(0, 0, -params.Days))
	if err != nil {
		return nil, err
	}
	slices.Reverse(meals)
	if len(meals) > params.Limit {
		meals = meals[:params.Limit]
	}

	out := make([]mealSummary, 0, len(meals))
	for _, m := range meals {
		names := make([]string, 0, len(m.Foods))
		for _, f := range m.Foods {
			names = append(names, f.Name)
		}
		out = append(out, mealSummary{
			ID:            m.ID,
			CreatedAt:     m.CreatedAt,
			Foods:         names,
			Calories:      m.Nutrition.Calories,
			BalanceStatus: m.BalanceStatus,
			Confidence:    m.Confidence,
		})
	}
	return toMap(struct {
		Meals []mealSummary `json:"meals"`
	}{Meals: out})
}
