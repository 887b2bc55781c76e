package agents

import (
	"fmt"
	"math"
	"strings"
	"time"

	"mealwise"
)

type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDeclining Trend = "declining"
)

const reflectionMinMeals = 5

var slotNames = [...]string{"breakfast", "lunch", "dinner", "snack"}

type Pattern struct {
	Pattern      string  `json:"pattern"`
	Confidence   float64 `json:"confidence"`
	DaysObserved int     `json:"days_observed"`
	Positive     bool    `json:"positive"`
}

type ReflectionResult struct {
	Incomplete bool      `json:"week_incomplete,omitempty"`
	Summary    string    `json:"reflection_summary,omitempty"`
	Patterns   []Pattern `json:"patterns_discovered"`
	Wins       []string  `json:"wins_this_week"`
	Focus      string    `json:"gentle_focus,omitempty"`
	Motivation float64   `json:"motivation_score"`
	Trend      Trend     `json:"week_trend,omitempty"`
	Message    string    `json:"reflection_message"`
	DaysActive int       `json:"days_active"`
	MealsCount int       `json:"meals_logged"`
}

// WeeklyReflection looks back over one week of meals for wins, a few
// patterns and a single focus for the week ahead.
type WeeklyReflection struct{}

// Reflect summarises week. prior is the week before it, if known, and only
// feeds the trend.
func (WeeklyReflection) Reflect(week History, prior *History, goal string) ReflectionResult {
	days := week.DaysTracked()
	res := ReflectionResult{
		Patterns:   []Pattern{},
		Wins:       []string{},
		DaysActive: days,
		MealsCount: len(week.Meals),
	}
	if len(week.Meals) < reflectionMinMeals {
		res.Incomplete = true
		res.Message = "Keep logging! We need one week of data to find patterns."
		return res
	}

	res.Patterns = discoverPatterns(week, days)
	res.Wins = weeklyWins(days, len(week.Meals), acceptedSuggestions(week), goal)
	res.Focus = weeklyFocus(res.Patterns)
	res.Motivation = motivation(res.Patterns, res.Wins, days)
	res.Trend = TrendStable
	if prior != nil {
		res.Trend = weekTrend(days, prior.DaysTracked())
	}
	res.Summary = weekSummary(days, len(week.Meals))
	res.Message = reflectionMessage(res)
	return res
}

func discoverPatterns(h History, days int) []Pattern {
	var bySlot [len(slotNames)][]mealwise.Meal
	datesBySlot := [len(slotNames)]map[string]struct{}{{}, {}, {}, {}}
	for _, m := range h.Meals {
		slot := mealSlot(float64(m.CreatedAt.Hour()))
		bySlot[slot] = append(bySlot[slot], m)
		datesBySlot[slot][m.CreatedAt.Format(time.DateOnly)] = struct{}{}
	}

	var patterns []Pattern
	for slot, meals := range bySlot {
		if len(meals) <= 2 {
			continue
		}
		if corr := highEnergyShare(meals); corr > 0.6 {
			patterns = append(patterns, Pattern{
				Pattern:      fmt.Sprintf("Energy is highest on days with %s", slotNames[slot]),
				Confidence:   math.Min(0.95, 0.6+corr),
				DaysObserved: len(meals),
				Positive:     true,
			})
		}
	}

	for slot := range lateSlot {
		if skipped := max(0, days-len(datesBySlot[slot])); skipped > 0 {
			patterns = append(patterns, Pattern{
				Pattern:      fmt.Sprintf("Skipping %s often leads to energy dips", slotNames[slot]),
				Confidence:   math.Min(0.90, 0.5+float64(skipped)*0.15),
				DaysObserved: skipped,
			})
		}
	}

	if days > 3 {
		best, count := -1, 0
		for slot := range lateSlot {
			if n := len(bySlot[slot]); n > count {
				best, count = slot, n
			}
		}
		if best >= 0 {
			patterns = append(patterns, Pattern{
				Pattern:      fmt.Sprintf("You consistently logged %s", slotNames[best]),
				Confidence:   0.85,
				DaysObserved: days,
				Positive:     true,
			})
		}
	}

	if len(patterns) > 3 {
		patterns = patterns[:3]
	}
	return patterns
}

func highEnergyShare(meals []mealwise.Meal) float64 {
	high := 0
	for _, m := range meals {
		if m.EnergyTag == mealwise.EnergyHigh {
			high++
		}
	}
	return float64(high) / float64(len(meals))
}

// acceptedSuggestions counts feedback confirming an estimate.
func acceptedSuggestions(h History) int {
	n := 0
	for _, fb := range h.Feedback {
		if fb.Type == mealwise.FeedbackAccurate {
			n++
		}
	}
	return n
}

func weeklyWins(days, meals, accepted int, goal string) []string {
	wins := []string{}
	switch {
	case days >= 5:
		wins = append(wins, fmt.Sprintf("Logged %d out of 7 days, that's real consistency!", days))
	case days >= 3:
		wins = append(wins, fmt.Sprintf("Active %d days this week, you're building the habit!", days))
	}
	switch {
	case meals >= 15:
		wins = append(wins, fmt.Sprintf("Captured %d meals, great data!", meals))
	case meals >= 10:
		wins = append(wins, fmt.Sprintf("Logged %d meals, solid commitment!", meals))
	}
	switch {
	case accepted >= 3:
		wins = append(wins, fmt.Sprintf("Tried %d suggestions, you're open to growth!", accepted))
	case accepted >= 1:
		wins = append(wins, "Accepted suggestions this week, that takes flexibility!")
	}
	goal = strings.ToLower(goal)
	switch {
	case strings.Contains(goal, "energy") && days > 4:
		wins = append(wins, "Tracking energy patterns is how you improve!")
	case strings.Contains(goal, "consisten") && days >= 6:
		wins = append(wins, "Amazing consistency this week!")
	}
	if len(wins) > 3 {
		wins = wins[:3]
	}
	return wins
}

func weeklyFocus(patterns []Pattern) string {
	if len(patterns) == 0 {
		return "Keep logging consistently!"
	}
	for _, p := range patterns {
		if !p.Positive {
			for _, slot := range slotNames[:lateSlot] {
				if strings.Contains(strings.ToLower(p.Pattern), slot) {
					return fmt.Sprintf("Try consistent %s timing next week", slot)
				}
			}
			continue
		}
		if strings.Contains(strings.ToLower(p.Pattern), "energy") {
			return "Keep up what's working with your energy!"
		}
	}
	return "Continue with what you're doing, you're on a good path!"
}

func motivation(patterns []Pattern, wins []string, days int) float64 {
	positive := 0
	for _, p := range patterns {
		if p.Positive {
			positive++
		}
	}
	score := 0.5
	score += math.Min(0.25, float64(days)/7*0.25)
	score += math.Min(0.15, float64(len(wins))/3*0.15)
	score += math.Min(0.10, float64(positive)/3*0.10)
	return math.Round(math.Min(1, score)*100) / 100
}

func weekTrend(days, priorDays int) Trend {
	switch {
	case days > priorDays+1:
		return TrendImproving
	case days < priorDays-1:
		return TrendDeclining
	}
	return TrendStable
}

func weekSummary(days, meals int) string {
	switch {
	case days >= 6 && meals >= 15:
		return "Strong week, you're crushing consistency"
	case days >= 4 && meals >= 10:
		return "Solid week with good logging habits"
	case days >= 3:
		return "Getting started with your tracking habit"
	}
	return "Week in progress, keep building"
}

func reflectionMessage(r ReflectionResult) string {
	var b strings.Builder
	b.WriteString("Weekly reflection\n\n")
	b.WriteString(r.Summary + ". Here's what stood out:\n\n")
	if len(r.Wins) > 0 {
		b.WriteString("Wins:\n")
		for _, w := range r.Wins {
			b.WriteString("• " + w + "\n")
		}
		b.WriteString("\n")
	}
	if len(r.Patterns) > 0 {
		b.WriteString("Patterns we noticed:\n")
		for _, p := range r.Patterns {
			fmt.Fprintf(&b, "• %s (observed %d times)\n", p.Pattern, p.DaysObserved)
		}
		b.WriteString("\n")
	}
	b.WriteString("Focus for next week: " + r.Focus + "\n\n")
	b.WriteString("You're building something real here. Keep going. 💚")
	return b.String()
}
