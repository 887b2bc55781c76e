package agents

import (
	"context"
	"fmt"
	"math"
)

type DriftType string

const (
	DriftNone                DriftType = "none"
	DriftMealSkipping        DriftType = "meal_skipping"
	DriftLoggingDecline      DriftType = "logging_decline"
	DriftEnergyIrregularity  DriftType = "energy_irregularity"
	DriftTimingInstability   DriftType = "timing_instability"
	DriftInsufficientHistory DriftType = "insufficient_history"
)

const (
	driftMinMeals = 5
	driftMinDays  = 5
)

var driftSuggestions = map[DriftType]string{
	DriftMealSkipping:       "A lightweight strategy for consistently skipped meals",
	DriftLoggingDecline:     "Try a simpler logging approach to reduce friction",
	DriftEnergyIrregularity: "Focus on meal regularity to stabilize your energy",
	DriftTimingInstability:  "Set one anchor meal to build consistency around",
}

type DriftResult struct {
	Detected     bool      `json:"drift_detected"`
	Type         DriftType `json:"drift_type"`
	Severity     float64   `json:"severity"`
	Confidence   float64   `json:"confidence"`
	DaysObserved int       `json:"days_observed"`
	Pattern      string    `json:"pattern,omitempty"`
	Suggestion   string    `json:"suggestion,omitempty"`
	Reasoning    string    `json:"reasoning"`
}

type driftSignal struct {
	kind     DriftType
	severity float64
	pattern  string
}

// DriftDetector looks for behavioural patterns that drift away from a
// sustainable routine.
type DriftDetector struct{}

func (DriftDetector) Name() string { return "drift_detector" }

func (d DriftDetector) Analyze(_ context.Context, in SecondaryInput) (SecondaryResult, error) {
	res := d.Detect(in.History)
	return SecondaryResult{Agent: d.Name(), Confidence: res.Confidence, Output: res}, nil
}

func (DriftDetector) Detect(h History) DriftResult {
	days := h.DaysTracked()
	if len(h.Meals) < driftMinMeals {
		return DriftResult{
			Type:         DriftInsufficientHistory,
			DaysObserved: days,
			Confidence:   0.3,
			Reasoning:    fmt.Sprintf("Need at least %d meals to look for patterns (have %d).", driftMinMeals, len(h.Meals)),
		}
	}
	if days < driftMinDays {
		return DriftResult{
			Type:         DriftNone,
			DaysObserved: days,
			Confidence:   0.5,
			Reasoning:    fmt.Sprintf("Only %d days tracked so far; patterns need %d.", days, driftMinDays),
		}
	}

	var signals []driftSignal
	skipped := max(0, 3*days-len(h.Meals))
	if skipped > 3 {
		signals = append(signals, driftSignal{
			kind:     DriftMealSkipping,
			severity: math.Min(float64(skipped)/7, 1),
			pattern:  fmt.Sprintf("About %d meals fewer than expected over %d days", skipped, days),
		})
	}
	if f := h.LoggingFrequency(); f < 1.5 {
		signals = append(signals, driftSignal{
			kind:     DriftLoggingDecline,
			severity: math.Max(0, 1-f),
			pattern:  fmt.Sprintf("Logging %.1f meals per day", f),
		})
	}
	if share, ok := h.LowEnergyShare(); ok && share > 0.4 {
		signals = append(signals, driftSignal{
			kind:     DriftEnergyIrregularity,
			severity: math.Min((share-0.3)/0.4, 1),
			pattern:  fmt.Sprintf("%.0f%% of tagged meals came with low energy", share*100),
		})
	}
	if stability := h.TimingStability(); stability < 0.6 {
		signals = append(signals, driftSignal{
			kind:     DriftTimingInstability,
			severity: 1 - stability,
			pattern:  "Meal times vary widely from day to day",
		})
	}

	if len(signals) == 0 {
		return DriftResult{
			Type:         DriftNone,
			DaysObserved: days,
			Confidence:   0.7,
			Reasoning:    "Meal patterns look steady.",
		}
	}

	top := signals[0]
	for _, s := range signals[1:] {
		if s.severity > top.severity {
			top = s
		}
	}
	return DriftResult{
		Detected:     true,
		Type:         top.kind,
		Severity:     math.Round(top.severity*100) / 100,
		Confidence:   math.Min(0.95, 0.6+0.3*top.severity),
		DaysObserved: days,
		Pattern:      top.pattern,
		Suggestion:   driftSuggestions[top.kind],
		Reasoning:    fmt.Sprintf("%s over the last %d days.", top.pattern, days),
	}
}

// Notable reports whether a drift result is worth notifying about.
func (r DriftResult) Notable() bool {
	return r.Detected && r.Severity >= 0.5
}
