package agents

import (
	"context"
	"fmt"
	"strings"
)

type Strategy string

const (
	StrategyCalorieFocused   Strategy = "calorie_focused"
	StrategyMealTiming       Strategy = "meal_timing_focused"
	StrategyIntuitiveEating  Strategy = "intuitive_eating_focused"
	StrategyMealRegularity   Strategy = "meal_regularity_focused"
	StrategyMinimalTracking  Strategy = "minimal_tracking"
	StrategyTrendOnly        Strategy = "trend_only_summaries"
	StrategyHabitStacking    Strategy = "habit_stacking"
	StrategyGoalAligned      Strategy = "goal_aligned_tracking"
	StrategyAdaptiveBalanced Strategy = "adaptive_balanced"
)

var strategyImpacts = map[Strategy]string{
	StrategyMealTiming:       "Focus on consistent meal timing rather than calories. Expected: Higher acceptance, better energy patterns.",
	StrategyIntuitiveEating:  "Trust body signals. Log less, feel more. Expected: Higher engagement, reduced anxiety.",
	StrategyMinimalTracking:  "Simplify logging to essentials only. Expected: Rebuild habit, reduce overwhelm.",
	StrategyTrendOnly:        "Weekly summaries instead of daily detail. Expected: Lower friction, maintained insights.",
	StrategyHabitStacking:    "Tie healthy eating to existing habits. Expected: Higher intervention success, easier adoption.",
	StrategyGoalAligned:      "Every log aligned to stated goal. Expected: Higher perceived relevance, better acceptance.",
	StrategyAdaptiveBalanced: "Continue with current balanced approach. Expected: Steady improvement.",
}

// Impact describes what switching to s is expected to change.
func (s Strategy) Impact() string {
	if impact, ok := strategyImpacts[s]; ok {
		return impact
	}
	return "Strategy adapted for better alignment with your needs."
}

const strategyMinDays = 2

type StrategyResult struct {
	Switch       bool     `json:"strategy_switch"`
	Current      Strategy `json:"current_strategy"`
	Recommended  Strategy `json:"new_strategy,omitempty"`
	Trigger      string   `json:"trigger,omitempty"`
	Metric       string   `json:"trigger_metric,omitempty"`
	Value        float64  `json:"trigger_value,omitempty"`
	Threshold    float64  `json:"threshold,omitempty"`
	Confidence   float64  `json:"confidence"`
	Impact       string   `json:"expected_impact,omitempty"`
	Reasoning    []string `json:"adaptation_reasoning"`
	DaysObserved int      `json:"days_on_strategy"`
}

// StrategyAdapter decides whether the coaching strategy should change based
// on how the user is responding to it.
type StrategyAdapter struct {
	// Current is the strategy in effect; empty means calorie focused.
	Current Strategy
}

func (StrategyAdapter) Name() string { return "strategy_adapter" }

func (s StrategyAdapter) Analyze(_ context.Context, in SecondaryInput) (SecondaryResult, error) {
	res := s.Evaluate(in.History, in.Profile.GoalText())
	return SecondaryResult{Agent: s.Name(), Confidence: res.Confidence, Output: res}, nil
}

type strategyCheck struct {
	metric     string
	trigger    string
	value      float64
	threshold  float64
	confidence float64
	below      bool
	reasons    []string
}

func (s StrategyAdapter) Evaluate(h History, goal string) StrategyResult {
	current := s.Current
	if current == "" {
		current = StrategyCalorieFocused
	}
	days := h.DaysTracked()
	res := StrategyResult{Current: current, DaysObserved: days}
	if days < strategyMinDays {
		res.Confidence = 0.3
		res.Reasoning = []string{fmt.Sprintf("Insufficient data for adaptation decision (%d of %d days)", days, strategyMinDays)}
		return res
	}

	acceptance := h.AcceptanceRate()
	engagement := h.EngagementTrend()
	logging := h.LoggingFrequency()
	success := h.InterventionSuccessRate()

	checks := []strategyCheck{
		{
			metric: "acceptance_rate", trigger: "Low user acceptance of suggestions",
			value: acceptance, threshold: 0.4, confidence: 0.85, below: acceptance < 0.4,
			reasons: []string{
				fmt.Sprintf("Only %.0f%% of estimates were marked accurate", acceptance*100),
				"Strategy likely too aggressive or misaligned",
			},
		},
		{
			metric: "engagement_trend", trigger: "Disengagement trend detected",
			value: engagement, threshold: -0.2, confidence: 0.78, below: engagement < -0.2,
			reasons: []string{"Engagement trending downward", "Current strategy may be causing overwhelm"},
		},
		{
			metric: "logging_frequency", trigger: "Logging burden causing disengagement",
			value: logging, threshold: 1.0, confidence: 0.82, below: logging < 1.0,
			reasons: []string{fmt.Sprintf("Logging only %.1f meals per day", logging), "Reduce detail to rebuild habit"},
		},
		{
			metric: "intervention_success_rate", trigger: "Interventions not working for this user",
			value: success, threshold: 0.35, confidence: 0.75, below: success < 0.35,
			reasons: []string{fmt.Sprintf("Interventions only succeed %.0f%% of the time", success*100), "Different approach needed"},
		},
	}

	for _, c := range checks {
		if !c.below {
			continue
		}
		next := recommendStrategy(current, c.metric, strings.ToLower(goal))
		res.Switch = true
		res.Recommended = next
		res.Trigger = c.trigger
		res.Metric = c.metric
		res.Value = c.value
		res.Threshold = c.threshold
		res.Confidence = c.confidence
		res.Impact = next.Impact()
		res.Reasoning = c.reasons
		return res
	}

	res.Confidence = 0.7
	res.Reasoning = []string{
		"Current strategy performing adequately",
		fmt.Sprintf("Acceptance: %.0f%%, Engagement: %+.0f%%", acceptance*100, engagement*100),
	}
	return res
}

func recommendStrategy(current Strategy, metric, goal string) Strategy {
	switch metric {
	case "acceptance_rate":
		if !strings.Contains(string(current), "calorie") {
			break
		}
		switch {
		case strings.Contains(goal, "energy"), strings.Contains(goal, "mood"):
			return StrategyMealTiming
		case strings.Contains(goal, "intuitive"):
			return StrategyIntuitiveEating
		}
		return StrategyMealRegularity
	case "engagement_trend":
		return StrategyMinimalTracking
	case "logging_frequency":
		return StrategyTrendOnly
	case "intervention_success_rate":
		if strings.Contains(goal, "consisten") {
			return StrategyHabitStacking
		}
		return StrategyGoalAligned
	}
	return StrategyAdaptiveBalanced
}
