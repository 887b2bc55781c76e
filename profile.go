package mealwise

import (
	"fmt"
	"slices"
)

var (
	AgeRanges    = []string{"12-17", "18-25", "26-35", "36-45", "46-55", "55+"}
	HeightRanges = []string{"150-160cm", "160-170cm", "170-180cm", "180-190cm", "190-200cm", "200+cm"}
	WeightRanges = []string{"40-50kg", "50-60kg", "60-70kg", "70-80kg", "80-90kg", "90-100kg", "100+kg"}
)

type ActivityLevel string

const (
	ActivityLow    ActivityLevel = "low"
	ActivityMedium ActivityLevel = "medium"
	ActivityHigh   ActivityLevel = "high"
)

type Goal string

const (
	GoalMaintain     Goal = "maintain"
	GoalGainEnergy   Goal = "gain_energy"
	GoalReduceExcess Goal = "reduce_excess"
)

// Profile holds banded user attributes. Exact values are never stored.
type Profile struct {
	AgeRange      string        `json:"age_range,omitempty"`
	HeightRange   string        `json:"height_range,omitempty"`
	WeightRange   string        `json:"weight_range,omitempty"`
	ActivityLevel ActivityLevel `json:"activity_level,omitempty"`
	Goal          Goal          `json:"goal,omitempty"`
	GoalStatement string        `json:"goal_statement,omitempty"`
	RecentEnergy  EnergyTag     `json:"recent_energy,omitempty"`
}

// DefaultProfile describes a moderately active adult with no stated goal.
func DefaultProfile() Profile {
	return Profile{ActivityLevel: ActivityMedium, Goal: GoalMaintain}
}

// Validate checks that every populated field is one of the known bands.
func (p Profile) Validate() error {
	if p.AgeRange != "" && !slices.Contains(AgeRanges, p.AgeRange) {
		return fmt.Errorf("invalid age range %q", p.AgeRange)
	}
	if p.HeightRange != "" && !slices.Contains(HeightRanges, p.HeightRange) {
		return fmt.Errorf("invalid height range %q", p.HeightRange)
	}
	if p.WeightRange != "" && !slices.Contains(WeightRanges, p.WeightRange) {
		return fmt.Errorf("invalid weight range %q", p.WeightRange)
	}
	switch p.ActivityLevel {
	case "", ActivityLow, ActivityMedium, ActivityHigh:
	default:
		return fmt.Errorf("invalid activity level %q", p.ActivityLevel)
	}
	switch p.Goal {
	case "", GoalMaintain, GoalGainEnergy, GoalReduceExcess:
	default:
		return fmt.Errorf("invalid goal %q", p.Goal)
	}
	return nil
}

// GoalText is the free-text goal when present, otherwise the goal tag.
func (p Profile) GoalText() string {
	if p.GoalStatement != "" {
		return p.GoalStatement
	}
	return string(p.Goal)
}
