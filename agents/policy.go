package agents

import "mealwise"

// BalancePolicy maps a profile to an expected daily calorie range and
// classifies cumulative intake against it. Implementations must be
// deterministic and monotonic: more intake never moves the status away from
// slightly_over.
type BalancePolicy interface {
	Expected(p mealwise.Profile) mealwise.Range
	Status(cumulative, expected mealwise.Range) mealwise.BalanceStatus
}

// DefaultPolicy uses activity-level baselines adjusted by goal.
type DefaultPolicy struct{}

var _ BalancePolicy = DefaultPolicy{}

const (
	underFueledRatio  = 0.7
	slightlyOverRatio = 1.1
)

func (DefaultPolicy) Expected(p mealwise.Profile) mealwise.Range {
	base := 2000.0
	switch p.ActivityLevel {
	case mealwise.ActivityLow:
		base = 1800
	case mealwise.ActivityMedium:
		base = 2200
	case mealwise.ActivityHigh:
		base = 2600
	}

	switch p.Goal {
	case mealwise.GoalGainEnergy:
		base *= 1.1
	case mealwise.GoalReduceExcess:
		base *= 0.9
	}
	return mealwise.Band(base, 0.1).Round()
}

func (DefaultPolicy) Status(cumulative, expected mealwise.Range) mealwise.BalanceStatus {
	mid := expected.Mid()
	if mid <= 0 {
		return mealwise.BalanceRoughlyAligned
	}

	ratio := cumulative.Mid() / mid
	switch {
	case ratio < underFueledRatio:
		return mealwise.BalanceUnderFueled
	case ratio > slightlyOverRatio:
		return mealwise.BalanceSlightlyOver
	}
	return mealwise.BalanceRoughlyAligned
}
