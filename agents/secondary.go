package agents

import (
	"context"
	"time"

	"mealwise"
)

// SecondaryInput is what every analytics agent sees after a meal has been
// analysed: the persisted meal, the rolling history that includes it and the
// profile in effect.
type SecondaryInput struct {
	Meal    mealwise.Meal
	History History
	Profile mealwise.Profile
	Now     time.Time
}

type SecondaryResult struct {
	Agent      string  `json:"agent"`
	Confidence float64 `json:"confidence"`
	Output     any     `json:"output"`
}

// SecondaryAgent is a deterministic analytics agent run off the request path.
type SecondaryAgent interface {
	Name() string
	Analyze(ctx context.Context, in SecondaryInput) (SecondaryResult, error)
}

// SecondaryAgents returns one instance of each analytics agent.
func SecondaryAgents() []SecondaryAgent {
	return []SecondaryAgent{
		DriftDetector{},
		NextAction{},
		StrategyAdapter{},
		EnergyIntervention{},
		GoalGuardian{},
	}
}
