// Package summary builds the read-only balance views over stored meals.
package summary

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"mealwise"
	"mealwise/agents"
)

const dateLayout = "2006-01-02"

// DailyBalance is today's intake against the profile's expected range.
type DailyBalance struct {
	Date          string                 `json:"date"`
	Calories      mealwise.Range         `json:"total_calories"`
	Expected      mealwise.Range         `json:"expected_calories"`
	BalanceStatus mealwise.BalanceStatus `json:"balance_status"`
	Emoji         string                 `json:"emoji_indicator"`
	Reasoning     string                 `json:"reasoning"`
	MealsCount    int                    `json:"meals_count"`
}

type Day struct {
	Date       string         `json:"date"`
	MealsCount int            `json:"meals_count"`
	Calories   mealwise.Range `json:"total_calories"`
}

type WeeklySummary struct {
	WeekStart  string `json:"week_start"`
	WeekEnd    string `json:"week_end"`
	Days       []Day  `json:"days"`
	TotalMeals int    `json:"total_meals"`
}

// Service reads meals from a store. It never writes.
type Service struct {
	meals  agents.MealLoader
	policy agents.BalancePolicy
	now    func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithPolicy(p agents.BalancePolicy) Option {
	return func(s *Service) { s.policy = p }
}

func NewService(meals agents.MealLoader, opts ...Option) *Service {
	s := &Service{meals: meals, policy: agents.DefaultPolicy{}, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Today(ctx context.Context, userID string, profile *mealwise.Profile) (DailyBalance, error) {
	p := mealwise.DefaultProfile()
	if profile != nil {
		p = *profile
	}
	if p.ActivityLevel == "" {
		p.ActivityLevel = mealwise.ActivityMedium
	}

	start := agents.StartOfDay(s.now())
	meals, err := s.meals.LoadRecentMeals(ctx, userID, start)
	if err != nil {
		return DailyBalance{}, fmt.Errorf("failed to load today's meals: %w", err)
	}

	expected := s.policy.Expected(p)
	out := DailyBalance{
		Date:       start.Format(dateLayout),
		Expected:   expected,
		MealsCount: len(meals),
	}
	if len(meals) == 0 {
		out.BalanceStatus = mealwise.BalanceUnderFueled
		out.Emoji = out.BalanceStatus.Emoji()
		out.Reasoning = "No meals logged today yet. Remember to nourish yourself!"
		return out, nil
	}

	for _, m := range meals {
		out.Calories = out.Calories.Add(m.Nutrition.Calories)
	}
	out.Calories = out.Calories.Round()
	out.BalanceStatus = s.policy.Status(out.Calories, expected)
	out.Emoji = out.BalanceStatus.Emoji()
	out.Reasoning = balanceReasoning(out.BalanceStatus, p.ActivityLevel)

	slog.Info("SUMMARY: Daily balance computed", "user_id", userID, "meals", len(meals), "status", out.BalanceStatus)
	return out, nil
}

func balanceReasoning(status mealwise.BalanceStatus, level mealwise.ActivityLevel) string {
	switch status {
	case mealwise.BalanceUnderFueled:
		return fmt.Sprintf("Based on your %s activity level, you may want to consider more nourishment today.", level)
	case mealwise.BalanceSlightlyOver:
		return "You've had a good amount of energy intake today. Listen to your body about what feels right."
	}
	return fmt.Sprintf("Your energy intake looks balanced for your %s activity level. Nice work!", level)
}

// Week groups the last seven days of meals by calendar date, oldest first.
// Days without meals are omitted.
func (s *Service) Week(ctx context.Context, userID string) (WeeklySummary, error) {
	now := s.now()
	since := now.AddDate(0, 0, -7)
	meals, err := s.meals.LoadRecentMeals(ctx, userID, since)
	if err != nil {
		return WeeklySummary{}, fmt.Errorf("failed to load week's meals: %w", err)
	}

	out := WeeklySummary{
		WeekStart:  since.Format(dateLayout),
		WeekEnd:    now.Format(dateLayout),
		Days:       []Day{},
		TotalMeals: len(meals),
	}
	index := map[string]int{}
	for _, m := range meals {
		key := m.CreatedAt.In(now.Location()).Format(dateLayout)
		i, ok := index[key]
		if !ok {
			i = len(out.Days)
			index[key] = i
			out.Days = append(out.Days, Day{Date: key})
		}
		out.Days[i].MealsCount++
		out.Days[i].Calories = out.Days[i].Calories.Add(m.Nutrition.Calories)
	}
	for i := range out.Days {
		out.Days[i].Calories = out.Days[i].Calories.Round()
	}
	return out, nil
}

type feedbackLoader interface {
	LoadFeedback(ctx context.Context, userID string, since time.Time) ([]mealwise.Feedback, error)
}

// Reflection looks back over the last seven days. The seven days before
// that decide the trend. Feedback is used when the loader also stores it.
func (s *Service) Reflection(ctx context.Context, userID, goal string) (agents.ReflectionResult, error) {
	now := s.now()
	weekStart := now.AddDate(0, 0, -7)
	meals, err := s.meals.LoadRecentMeals(ctx, userID, weekStart.AddDate(0, 0, -7))
	if err != nil {
		return agents.ReflectionResult{}, fmt.Errorf("failed to load meals for reflection: %w", err)
	}

	var thisWeek, lastWeek []mealwise.Meal
	for _, m := range meals {
		if m.CreatedAt.Before(weekStart) {
			lastWeek = append(lastWeek, m)
			continue
		}
		thisWeek = append(thisWeek, m)
	}

	var feedback []mealwise.Feedback
	if fl, ok := s.meals.(feedbackLoader); ok {
		if feedback, err = fl.LoadFeedback(ctx, userID, weekStart); err != nil {
			return agents.ReflectionResult{}, fmt.Errorf("failed to load feedback for reflection: %w", err)
		}
	}

	week := agents.NewHistory(thisWeek, feedback, now)
	var prior *agents.History
	if len(lastWeek) > 0 {
		h := agents.NewHistory(lastWeek, nil, weekStart)
		prior = &h
	}

	res := agents.WeeklyReflection{}.Reflect(week, prior, goal)
	slog.Info("SUMMARY: Weekly reflection computed", "user_id", userID, "meals", res.MealsCount, "incomplete", res.Incomplete)
	return res, nil
}

// Text renders the summary for chat notifications.
func (w WeeklySummary) Text(userID string) string {
	msg := fmt.Sprintf("Weekly summary for %s (%s to %s): %d meals logged.", userID, w.WeekStart, w.WeekEnd, w.TotalMeals)
	for _, d := range w.Days {
		msg += fmt.Sprintf("\n• %s: %d meals, %.0f-%.0f kcal", d.Date, d.MealsCount, d.Calories.Min, d.Calories.Max)
	}
	return msg
}
