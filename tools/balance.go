package tools

import (
	"context"

	"mealwise"
	"mealwise/summary"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"
)

type DailyBalance struct{ summaries *summary.Service }

func NewDailyBalance(s *summary.Service) *DailyBalance { return &DailyBalance{summaries: s} }

func (t *DailyBalance) Name() string  { return "daily_balance" }
func (t *DailyBalance) Title() string { return "Today's Energy Balance" }
func (t *DailyBalance) Description() string {
	return "Sums today's logged meals into a calorie range and compares it with the expected range for the user's activity level and goal."
}

func (t *DailyBalance) InputSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"user_id":        stringSchema("User whose meals are summarized"),
			"activity_level": {Type: "string", Enum: []any{"low", "medium", "high"}},
			"goal":           {Type: "string", Enum: []any{"maintain", "gain_energy", "reduce_excess"}},
		},
		Required: []string{"user_id"},
	}
}

func (t *DailyBalance) OutputSchema() *jsonschema.Schema {
	zero := 0.0
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"date":              {Type: "string"},
			"total_calories":    rangeSchema(),
			"expected_calories": rangeSchema(),
			"balance_status":    {Type: "string", Enum: []any{"under_fueled", "roughly_aligned", "slightly_over"}},
			"emoji_indicator":   {Type: "string"},
			"reasoning":         {Type: "string"},
			"meals_count":       {Type: "integer", Minimum: &zero},
		},
		Required: []string{"date", "total_calories", "balance_status", "reasoning", "meals_count"},
	}
}

func (t *DailyBalance) Run(ctx context.Context, input map[string]any) (map[string]any, error) {
	var params struct {
		UserID        string `json:"user_id"`
		ActivityLevel string `json:"activity_level"`
		Goal          string `json:"goal"`
	}
	if err := decodeInput(input, &params); err != nil {
		return nil, mealwise.NewDecodeError("tools.daily_balance", "invalid parameters", err)
	}
	if params.UserID == "" {
		return nil, mealwise.NewDecodeError("tools.daily_balance", "user_id is required", nil)
	}

	var profile *mealwise.Profile
	if params.ActivityLevel != "" || params.Goal != "" {
		p := mealwise.Profile{ActivityLevel: mealwise.ActivityLevel(params.ActivityLevel), Goal: mealwise.Goal(params.Goal)}
		if err := p.Validate(); err != nil {
			return nil, mealwise.NewDecodeError("tools.daily_balance", err.Error(), nil)
		}
		profile = &p
	}

	balance, err := t.summaries.Today(ctx, params.UserID, profile)
	if err != nil {
		return nil, err
	}
	return toMap(balance)
}

type WeeklySummary struct{ summaries *summary.Service }

func NewWeeklySummary(s *summary.Service) *WeeklySummary { return &WeeklySummary{summaries: s} }

func (t *WeeklySummary) Name() string  { return "weekly_summary" }
func (t *WeeklySummary) Title() string { return "Weekly Meal Summary" }
func (t *WeeklySummary) Description() string {
	return "Groups the last seven days of meals by date with per-day meal counts and calorie ranges."
}

func (t *WeeklySummary) InputSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"user_id": stringSchema("User whose meals are summarized"),
		},
		Required: []string{"user_id"},
	}
}

func (t *WeeklySummary) OutputSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"week_start": {Type: "string"},
			"week_end":   {Type: "string"},
			"days": {
				Type: "array",
				Items: &jsonschema.Schema{
					Type: "object",
					Properties: map[string]*jsonschema.Schema{
						"date":           {Type: "string"},
						"meals_count":    {Type: "integer"},
						"total_calories": rangeSchema(),
					},
					Required: []string{"date", "meals_count", "total_calories"},
				},
			},
			"total_meals": {Type: "integer"},
		},
		Required: []string{"week_start", "week_end", "days", "total_meals"},
	}
}

func (t *WeeklySummary) Run(ctx context.Context, input map[string]any) (map[string]any, error) {
	var params struct {
		UserID string `json:"user_id"`
	}
	if err := decodeInput(input, &params); err != nil {
		return nil, mealwise.NewDecodeError("tools.weekly_summary", "invalid parameters", err)
	}
	if params.UserID == "" {
		return nil, mealwise.NewDecodeError("tools.weekly_summary", "user_id is required", nil)
	}

	week, err := t.summaries.Week(ctx, params.UserID)
	if err != nil {
		return nil, err
	}
	return toMap(week)
}

type WeeklyReflection struct{ summaries *summary.Service }

func NewWeeklyReflection(s *summary.Service) *WeeklyReflection {
	return &WeeklyReflection{summaries: s}
}

func (t *WeeklyReflection) Name() string  { return "weekly_reflection" }
func (t *WeeklyReflection) Title() string { return "Weekly Reflection" }
func (t *WeeklyReflection) Description() string {
	return "Reflects on the last seven days of meals: wins worth celebrating, up to three patterns and one gentle focus for next week."
}

func (t *WeeklyReflection) InputSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"user_id": stringSchema("User whose week is reviewed"),
			"goal":    stringSchema("Optional free-text goal, e.g. 'more consistent breakfasts'"),
		},
		Required: []string{"user_id"},
	}
}

func (t *WeeklyReflection) OutputSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"week_incomplete":    {Type: "boolean"},
			"reflection_summary": {Type: "string"},
			"patterns_discovered": {
				Type: "array",
				Items: &jsonschema.Schema{
					Type: "object",
					Properties: map[string]*jsonschema.Schema{
						"pattern":       {Type: "string"},
						"confidence":    {Type: "number"},
						"days_observed": {Type: "integer"},
						"positive":      {Type: "boolean"},
					},
				},
			},
			"wins_this_week":     {Type: "array", Items: &jsonschema.Schema{Type: "string"}},
			"gentle_focus":       {Type: "string"},
			"motivation_score":   {Type: "number"},
			"week_trend":         {Type: "string", Enum: []any{"improving", "stable", "declining"}},
			"reflection_message": {Type: "string"},
		},
		Required: []string{"patterns_discovered", "wins_this_week", "reflection_message"},
	}
}

func (t *WeeklyReflection) Run(ctx context.Context, input map[string]any) (map[string]any, error) {
	var params struct {
		UserID string `json:"user_id"`
		Goal   string `json:"goal"`
	}
	if err := decodeInput(input, &params); err != nil {
		return nil, mealwise.NewDecodeError("tools.weekly_reflection", "invalid parameters", err)
	}
	if params.UserID == "" {
		return nil, mealwise.NewDecodeError("tools.weekly_reflection", "user_id is required", nil)
	}

	res, err := t.summaries.Reflection(ctx, params.UserID, params.Goal)
	if err != nil {
		return nil, err
	}
	return toMap(res)
}
