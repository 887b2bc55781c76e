package agents

import (
	"context"
	"strings"

	"mealwise"
)

type ActionType string

const (
	ActionNutritional   ActionType = "nutritional_intervention"
	ActionStressRelief  ActionType = "stress_relief"
	ActionConsistency   ActionType = "consistency_maintenance"
	ActionNormalization ActionType = "normalization"
)

type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyModerate Urgency = "moderate"
	UrgencyHigh     Urgency = "high"
)

type NextActionResult struct {
	Action         string             `json:"action"`
	Type           ActionType         `json:"action_type"`
	Urgency        Urgency            `json:"urgency"`
	Confidence     float64            `json:"confidence"`
	GoalAlignment  float64            `json:"goal_alignment"`
	HoursSinceLast float64            `json:"hours_since_last_meal"`
	Energy         mealwise.EnergyTag `json:"energy"`
	Signals        []string           `json:"signals,omitempty"`
	Reasoning      string             `json:"reasoning"`
}

// NextAction picks the single most useful thing to do after this meal.
type NextAction struct{}

func (NextAction) Name() string { return "next_action" }

func (n NextAction) Analyze(_ context.Context, in SecondaryInput) (SecondaryResult, error) {
	res := n.Decide(in)
	return SecondaryResult{Agent: n.Name(), Confidence: res.Confidence, Output: res}, nil
}

func (NextAction) Decide(in SecondaryInput) NextActionResult {
	energy := in.Profile.RecentEnergy
	if energy == "" {
		energy = in.Meal.EnergyTag
	}
	if energy == "" {
		energy = mealwise.EnergyMedium
	}

	hours := 12.0
	prev, hasPrev := in.History.Previous(in.Meal.ID, in.Meal.CreatedAt)
	if hasPrev {
		hours = in.Meal.CreatedAt.Sub(prev.CreatedAt).Hours()
	}

	goal := strings.ToLower(in.Profile.GoalText())
	res := NextActionResult{HoursSinceLast: hours, Energy: energy}
	stress := stressSignals(in, prev, hasPrev)

	switch {
	case hours > 5 || (energy == mealwise.EnergyLow && hours > 3):
		res.Action = "Have a balanced meal or substantial snack in the next 30 minutes"
		res.Type = ActionNutritional
		res.Urgency = UrgencyHigh
		res.Confidence = 0.85
		res.Reasoning = "It has been a while since your last meal."
	case len(stress) > 0:
		res.Signals = stress
		res.Action = "Take a break from logging today. Focus on intuitive eating and reset tomorrow"
		res.Type = ActionStressRelief
		res.Urgency = UrgencyModerate
		res.Confidence = 0.78
		res.Reasoning = "Recent patterns suggest logging may be adding pressure."
	case focusesOnConsistency(goal):
		res.Action = "Log this meal and note how you feel afterward"
		res.Type = ActionConsistency
		res.Urgency = UrgencyModerate
		res.Confidence = 0.82
		res.Reasoning = "Small, steady check-ins support your goal."
	default:
		res.Action = "Continue with your meal. You're on track"
		res.Type = ActionNormalization
		res.Urgency = UrgencyLow
		res.Confidence = 0.88
		res.Reasoning = "Nothing needs changing right now."
	}
	res.GoalAlignment = actionGoalAlignment(goal, res.Action)
	return res
}

func stressSignals(in SecondaryInput, prev mealwise.Meal, hasPrev bool) []string {
	var signals []string
	drift := DriftDetector{}.Detect(in.History)
	if drift.Detected && drift.Type == DriftLoggingDecline {
		signals = append(signals, "logging has dropped off")
	}
	if hasPrev && prev.CreatedAt.Hour() > 21 {
		signals = append(signals, "last meal was late at night")
	}
	if drift.Detected && drift.Type == DriftEnergyIrregularity {
		signals = append(signals, "energy has been irregular")
	}
	if len(signals) > 2 {
		signals = signals[:2]
	}
	return signals
}

func focusesOnConsistency(goal string) bool {
	if goal == "" || goal == string(mealwise.GoalMaintain) {
		return true
	}
	for _, w := range []string{"energy", "focus", "mood", "consistent"} {
		if strings.Contains(goal, w) {
			return true
		}
	}
	return false
}

func actionGoalAlignment(goal, action string) float64 {
	action = strings.ToLower(action)
	switch {
	case goal == "":
		return 0.7
	case strings.Contains(goal, "energy") && strings.Contains(action, "energy"):
		return 0.95
	case strings.Contains(goal, "consistent") && strings.Contains(action, "log"):
		return 0.90
	case strings.Contains(goal, "intuitive") && strings.Contains(action, "reset"):
		return 0.92
	}
	return 0.80
}
