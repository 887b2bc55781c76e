package agents

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"mealwise"
)

// MealLoader is the slice of the meal store personalization needs.
type MealLoader interface {
	LoadRecentMeals(ctx context.Context, userID string, since time.Time) ([]mealwise.Meal, error)
}

type PersonalizationInput struct {
	UserID    string
	Profile   *mealwise.Profile
	Nutrition mealwise.NutritionEstimate
	Now       time.Time
}

// Personalization places the current meal within the user's day.
type Personalization struct {
	meals  MealLoader
	policy BalancePolicy
}

func NewPersonalization(meals MealLoader, policy BalancePolicy) *Personalization {
	if policy == nil {
		policy = DefaultPolicy{}
	}
	return &Personalization{meals: meals, policy: policy}
}

func (p *Personalization) Personalize(ctx context.Context, in PersonalizationInput) mealwise.AgentResult[mealwise.PersonalizationContext] {
	return mealwise.Invoke("personalization", func() (mealwise.PersonalizationContext, float64, error) {
		return p.personalize(ctx, in)
	})
}

func (p *Personalization) personalize(ctx context.Context, in PersonalizationInput) (mealwise.PersonalizationContext, float64, error) {
	profile := mealwise.DefaultProfile()
	confidence := 0.6
	if in.Profile != nil {
		profile = *in.Profile
		confidence = 0.8
	}
	if profile.ActivityLevel == "" {
		profile.ActivityLevel = mealwise.ActivityMedium
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	var prior []mealwise.NutritionEstimate
	if p.meals != nil && in.UserID != "" {
		meals, err := p.meals.LoadRecentMeals(ctx, in.UserID, StartOfDay(now))
		if err != nil {
			return mealwise.PersonalizationContext{}, 0, mealwise.NewProviderError("personalization.load", "load today's meals", err)
		}
		for _, m := range meals {
			if m.CreatedAt.After(now) {
				continue
			}
			prior = append(prior, m.Nutrition)
		}
	}

	cumulative := in.Nutrition.Calories
	for _, est := range prior {
		cumulative = cumulative.Add(est.Calories)
	}

	expected := p.policy.Expected(profile)
	status := p.policy.Status(cumulative, expected)
	remaining := mealwise.Range{
		Min: math.Max(0, expected.Min-cumulative.Max),
		Max: math.Max(0, expected.Max-cumulative.Min),
	}

	pc := mealwise.PersonalizationContext{
		Profile:       profile,
		PriorMeals:    prior,
		Cumulative:    cumulative.Round(),
		Expected:      expected,
		Remaining:     remaining.Round(),
		BalanceStatus: status,
		DailyContext:  dailyContext(len(prior)+1, profile, status),
	}

	slog.Info("PERSONALIZATION: Balance computed",
		"user_id", in.UserID,
		"meals_today", len(prior)+1,
		"status", status)
	return pc, confidence, nil
}

// StartOfDay is midnight of t's calendar day in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func dailyContext(meals int, p mealwise.Profile, status mealwise.BalanceStatus) string {
	count := "This is your first meal logged today"
	if meals > 1 {
		count = fmt.Sprintf("You've logged %d meals today", meals)
	}

	var read string
	switch status {
	case mealwise.BalanceUnderFueled:
		read = "there is plenty of room to keep fueling your day"
	case mealwise.BalanceSlightlyOver:
		read = "today's intake is running a little above your usual rhythm"
	default:
		read = "today's intake sits comfortably in your usual range"
	}
	return fmt.Sprintf("%s, and for a %s activity level %s.", count, p.ActivityLevel, read)
}
