package agents

import (
	"context"
	"fmt"
	"testing"
	"time"

	"mealwise"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day0 = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

type mealSpec struct {
	day    int
	hour   int
	kcal   float64
	energy mealwise.EnergyTag
}

func buildHistory(specs []mealSpec, feedback ...mealwise.FeedbackType) History {
	meals := make([]mealwise.Meal, 0, len(specs))
	var last time.Time
	for i, s := range specs {
		at := day0.AddDate(0, 0, s.day).Add(time.Duration(s.hour) * time.Hour)
		meals = append(meals, mealwise.Meal{
			ID:        fmt.Sprintf("m%d", i),
			UserID:    "u1",
			CreatedAt: at,
			EnergyTag: s.energy,
			Nutrition: mealwise.NutritionEstimate{Calories: mealwise.Range{Min: s.kcal * 0.9, Max: s.kcal * 1.1}},
		})
		if at.After(last) {
			last = at
		}
	}
	fbs := make([]mealwise.Feedback, 0, len(feedback))
	for i, f := range feedback {
		fbs = append(fbs, mealwise.Feedback{ID: fmt.Sprintf("f%d", i), Type: f})
	}
	return NewHistory(meals, fbs, last.Add(time.Minute))
}

// regularDays logs breakfast, lunch and dinner at fixed times.
func regularDays(days int) []mealSpec {
	var specs []mealSpec
	for d := 0; d < days; d++ {
		specs = append(specs,
			mealSpec{day: d, hour: 8, kcal: 450, energy: mealwise.EnergyHigh},
			mealSpec{day: d, hour: 13, kcal: 650, energy: mealwise.EnergyMedium},
			mealSpec{day: d, hour: 19, kcal: 700, energy: mealwise.EnergyMedium},
		)
	}
	return specs
}

func TestHistory_Metrics(t *testing.T) {
	h := buildHistory([]mealSpec{
		{day: 0, hour: 8, energy: mealwise.EnergyLow},
		{day: 0, hour: 12, energy: mealwise.EnergyHigh},
		{day: 4, hour: 9},
		{day: 5, hour: 8, energy: mealwise.EnergyLow},
	}, mealwise.FeedbackAccurate, mealwise.FeedbackWrongFood, mealwise.FeedbackPortionBigger, mealwise.FeedbackAccurate)

	assert.Equal(t, 3, h.DaysTracked())
	assert.InDelta(t, 4.0/6, h.LoggingFrequency(), 1e-9)
	share, ok := h.LowEnergyShare()
	require.True(t, ok)
	assert.InDelta(t, 2.0/3, share, 1e-9)
	assert.InDelta(t, 1.0/3, h.AverageEnergy(), 1e-9)
	assert.InDelta(t, 0.5, h.AcceptanceRate(), 1e-9)
	assert.InDelta(t, 0.75, h.InterventionSuccessRate(), 1e-9)
	assert.Equal(t, 3, h.LoggingGapDays())

	prev, ok := h.Previous("m3", h.Meals[3].CreatedAt)
	require.True(t, ok)
	assert.Equal(t, "m2", prev.ID)
}

func TestHistory_Defaults(t *testing.T) {
	h := NewHistory(nil, nil, day0)

	assert.Zero(t, h.DaysTracked())
	assert.InDelta(t, 0.5, h.AcceptanceRate(), 1e-9)
	assert.InDelta(t, 0.6, h.InterventionSuccessRate(), 1e-9)
	assert.InDelta(t, 0.5, h.AverageEnergy(), 1e-9)
	assert.InDelta(t, 1.0, h.TimingStability(), 1e-9)
	assert.Zero(t, h.EngagementTrend())
	_, ok := h.Previous("x", day0)
	assert.False(t, ok)
}

func TestHistory_TimingStabilityBySlot(t *testing.T) {
	steady := buildHistory(regularDays(5))
	assert.InDelta(t, 1.0, steady.TimingStability(), 1e-9)

	erratic := buildHistory([]mealSpec{
		{day: 0, hour: 6}, {day: 1, hour: 11}, {day: 2, hour: 6}, {day: 3, hour: 11},
	})
	assert.Less(t, erratic.TimingStability(), 0.6)
}

func TestDriftDetector_Detect(t *testing.T) {
	tests := []struct {
		name         string
		specs        []mealSpec
		wantDetected bool
		wantType     DriftType
		wantNotable  bool
	}{
		{
			name:     "too few meals",
			specs:    regularDays(1),
			wantType: DriftInsufficientHistory,
		},
		{
			name:     "too few days",
			specs:    regularDays(3),
			wantType: DriftNone,
		},
		{
			name:     "steady routine",
			specs:    regularDays(6),
			wantType: DriftNone,
		},
		{
			name: "one meal a day",
			specs: []mealSpec{
				{day: 0, hour: 12}, {day: 1, hour: 12}, {day: 2, hour: 12},
				{day: 3, hour: 12}, {day: 4, hour: 12}, {day: 5, hour: 12},
			},
			wantDetected: true,
			wantType:     DriftMealSkipping,
			wantNotable:  true,
		},
		{
			name: "mostly low energy",
			specs: []mealSpec{
				{day: 0, hour: 8, energy: mealwise.EnergyLow}, {day: 0, hour: 13, energy: mealwise.EnergyLow}, {day: 0, hour: 19},
				{day: 1, hour: 8, energy: mealwise.EnergyLow}, {day: 1, hour: 13, energy: mealwise.EnergyLow}, {day: 1, hour: 19},
				{day: 2, hour: 8, energy: mealwise.EnergyLow}, {day: 2, hour: 13, energy: mealwise.EnergyMedium}, {day: 2, hour: 19},
				{day: 3, hour: 8, energy: mealwise.EnergyLow}, {day: 3, hour: 13}, {day: 3, hour: 19},
				{day: 4, hour: 8, energy: mealwise.EnergyLow}, {day: 4, hour: 13}, {day: 4, hour: 19},
			},
			wantDetected: true,
			wantType:     DriftEnergyIrregularity,
			wantNotable:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := DriftDetector{}.Detect(buildHistory(tt.specs))

			assert.Equal(t, tt.wantDetected, res.Detected)
			assert.Equal(t, tt.wantType, res.Type)
			assert.Equal(t, tt.wantNotable, res.Notable())
			assert.LessOrEqual(t, res.Confidence, 0.95)
			if res.Detected {
				assert.NotEmpty(t, res.Suggestion)
				assert.InDelta(t, min(0.95, 0.6+0.3*res.Severity), res.Confidence, 0.01)
			}
		})
	}
}

func TestNextAction_Decide(t *testing.T) {
	at := func(day, hour int) time.Time {
		return day0.AddDate(0, 0, day).Add(time.Duration(hour) * time.Hour)
	}
	meal := func(id string, t time.Time, energy mealwise.EnergyTag) mealwise.Meal {
		return mealwise.Meal{ID: id, CreatedAt: t, EnergyTag: energy}
	}

	tests := []struct {
		name      string
		meals     []mealwise.Meal
		current   mealwise.Meal
		profile   mealwise.Profile
		wantType  ActionType
		wantUrg   Urgency
		wantAlign float64
	}{
		{
			name:      "first meal in a long while",
			current:   meal("c", at(0, 12), ""),
			wantType:  ActionNutritional,
			wantUrg:   UrgencyHigh,
			wantAlign: 0.7,
		},
		{
			name:      "low energy after a gap",
			meals:     []mealwise.Meal{meal("p", at(0, 8), "")},
			current:   meal("c", at(0, 12), mealwise.EnergyLow),
			wantType:  ActionNutritional,
			wantUrg:   UrgencyHigh,
			wantAlign: 0.7,
		},
		{
			name:      "late previous meal",
			meals:     []mealwise.Meal{meal("p", at(0, 22), "")},
			current:   meal("c", at(0, 23), ""),
			wantType:  ActionStressRelief,
			wantUrg:   UrgencyModerate,
			wantAlign: 0.7,
		},
		{
			name:      "consistency goal",
			meals:     []mealwise.Meal{meal("p", at(0, 10), "")},
			current:   meal("c", at(0, 12), ""),
			profile:   mealwise.Profile{GoalStatement: "Be consistent with logging"},
			wantType:  ActionConsistency,
			wantUrg:   UrgencyModerate,
			wantAlign: 0.90,
		},
		{
			name:      "intuitive goal",
			meals:     []mealwise.Meal{meal("p", at(0, 10), "")},
			current:   meal("c", at(0, 12), ""),
			profile:   mealwise.Profile{GoalStatement: "Intuitive eating"},
			wantType:  ActionNormalization,
			wantUrg:   UrgencyLow,
			wantAlign: 0.80,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHistory(append(tt.meals, tt.current), nil, tt.current.CreatedAt)

			res := NextAction{}.Decide(SecondaryInput{Meal: tt.current, History: h, Profile: tt.profile})

			assert.Equal(t, tt.wantType, res.Type)
			assert.Equal(t, tt.wantUrg, res.Urgency)
			assert.InDelta(t, tt.wantAlign, res.GoalAlignment, 1e-9)
			assert.NotEmpty(t, res.Action)
		})
	}
}

func TestStrategyAdapter_Evaluate(t *testing.T) {
	tests := []struct {
		name       string
		specs      []mealSpec
		feedback   []mealwise.FeedbackType
		goal       string
		current    Strategy
		wantSwitch bool
		wantNext   Strategy
		wantMetric string
	}{
		{
			name:  "not enough days",
			specs: regularDays(1),
		},
		{
			name:  "performing adequately",
			specs: regularDays(4),
			feedback: []mealwise.FeedbackType{
				mealwise.FeedbackAccurate, mealwise.FeedbackAccurate, mealwise.FeedbackPortionBigger,
			},
		},
		{
			name:       "low acceptance with energy goal",
			specs:      regularDays(4),
			feedback:   []mealwise.FeedbackType{mealwise.FeedbackWrongFood, mealwise.FeedbackPortionSmaller, mealwise.FeedbackPortionBigger},
			goal:       "More energy in the afternoon",
			wantSwitch: true,
			wantNext:   StrategyMealTiming,
			wantMetric: "acceptance_rate",
		},
		{
			name:       "low acceptance without calorie strategy",
			specs:      regularDays(4),
			feedback:   []mealwise.FeedbackType{mealwise.FeedbackWrongFood},
			current:    StrategyHabitStacking,
			wantSwitch: true,
			wantNext:   StrategyAdaptiveBalanced,
			wantMetric: "acceptance_rate",
		},
		{
			name: "logging collapse",
			specs: []mealSpec{
				{day: 0, hour: 8}, {day: 2, hour: 8}, {day: 4, hour: 8}, {day: 6, hour: 8},
			},
			feedback:   []mealwise.FeedbackType{mealwise.FeedbackAccurate},
			wantSwitch: true,
			wantNext:   StrategyTrendOnly,
			wantMetric: "logging_frequency",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := StrategyAdapter{Current: tt.current}.Evaluate(buildHistory(tt.specs, tt.feedback...), tt.goal)

			assert.Equal(t, tt.wantSwitch, res.Switch)
			assert.NotEmpty(t, res.Reasoning)
			if !tt.wantSwitch {
				return
			}
			assert.Equal(t, tt.wantNext, res.Recommended)
			assert.Equal(t, tt.wantMetric, res.Metric)
			assert.Equal(t, tt.wantNext.Impact(), res.Impact)
		})
	}
}

func TestEnergyIntervention_Assess(t *testing.T) {
	t.Run("no stress", func(t *testing.T) {
		res := EnergyIntervention{}.Assess(buildHistory(regularDays(3)))

		assert.False(t, res.StressDetected)
		assert.Equal(t, "You're doing well. Keep it up!", res.Message)
	})

	t.Run("stress tiers", func(t *testing.T) {
		specs := []mealSpec{
			{day: 0, hour: 8, kcal: 250, energy: mealwise.EnergyLow},
			{day: 0, hour: 21, kcal: 900, energy: mealwise.EnergyLow},
			{day: 4, hour: 9, kcal: 200, energy: mealwise.EnergyLow},
			{day: 4, hour: 13, kcal: 300, energy: mealwise.EnergyMedium},
		}

		res := EnergyIntervention{}.Assess(buildHistory(specs))

		require.True(t, res.StressDetected)
		// low energy 0.3 + light meals 0.2 + late heavy 0.15 + gap 0.2
		assert.InDelta(t, 0.85, res.StressLevel, 1e-9)
		assert.Equal(t, InterventionSignificant, res.Type)
		assert.Len(t, res.Indicators, 4)
		assert.True(t, res.Disclaimer)
		require.NotNil(t, res.Tone)
		assert.True(t, res.Tone.Compassionate, "harmful words: %v", res.Tone.HarmfulWords)
		assert.InDelta(t, 1.0, res.CompassionScore, 1e-9)
		require.NotNil(t, res.Safety)
		assert.False(t, res.Safety.Any())
	})
}

func TestCheckTone(t *testing.T) {
	tone := CheckTone("That was a bad choice and a failure.")
	assert.False(t, tone.Compassionate)
	assert.ElementsMatch(t, []string{"bad", "failure"}, tone.HarmfulWords)

	tone = CheckTone("I understand. Take a gentle break and rest.")
	assert.True(t, tone.Compassionate)
	assert.InDelta(t, 4.0/5, tone.Score, 1e-9)
}

func TestCheckSafety(t *testing.T) {
	flags := CheckSafety("You must restrict calories; this will definitely cure it.")
	assert.True(t, flags.MedicalLanguage)
	assert.True(t, flags.ShameLanguage)
	assert.True(t, flags.OverConfident)
	assert.True(t, flags.EatingTrigger)
	assert.False(t, CheckSafety("Enjoy your lunch.").Any())
}

func TestGoalGuardian_Review(t *testing.T) {
	h := buildHistory(regularDays(7))

	tests := []struct {
		name        string
		goal        string
		rec         string
		kind        RecommendationType
		wantAligned bool
		wantModify  bool
		wantMod     string
		wantAffirm  string
	}{
		{
			name:        "no goal",
			rec:         "anything",
			wantAligned: true,
		},
		{
			name:        "aligned energy advice",
			goal:        "More energy and focus",
			rec:         "Keep your energy and focus steady and stay alert, awake, full of vigor and vitality.",
			kind:        RecommendationInsight,
			wantAligned: true,
			wantAffirm:  "🔋",
		},
		{
			name:       "restriction against energy goal",
			goal:       "more energy",
			rec:        "Restrict snacks after lunch",
			kind:       RecommendationAction,
			wantModify: true,
			wantMod:    "consider snacks after lunch while maintaining your energy levels.",
			wantAffirm: "🔋",
		},
		{
			name:       "calorie counting against intuitive goal",
			goal:       "intuitive eating",
			rec:        "Count calories at every meal",
			kind:       RecommendationInsight,
			wantModify: true,
			wantMod:    "Focus on how you feel after this meal rather than the calorie count.",
			wantAffirm: "🧘",
		},
		{
			name:       "interventions are not rewritten",
			goal:       "build a consistent habit",
			rec:        "Take a break",
			kind:       RecommendationIntervention,
			wantAffirm: "💪",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := GoalGuardian{}.Review(tt.goal, tt.rec, tt.kind, h)

			assert.Equal(t, tt.wantAligned, res.Aligned)
			assert.Equal(t, tt.wantModify, res.Modify)
			if tt.wantMod != "" {
				assert.Equal(t, tt.wantMod, res.Modification)
			}
			if tt.wantAffirm != "" {
				assert.Contains(t, res.Affirmation, tt.wantAffirm)
			}
			assert.GreaterOrEqual(t, res.Score, 0.0)
			assert.LessOrEqual(t, res.Score, 1.0)
		})
	}
}

func TestGoalGuardian_Progress(t *testing.T) {
	h := buildHistory(regularDays(7))

	assert.InDelta(t, 1.0, goalProgress("consistent habit", h), 1e-9)
	assert.InDelta(t, 2.0/3, goalProgress("more energy", h), 1e-9)
	assert.InDelta(t, 1.0, goalProgress("balance", h), 1e-9)
	assert.InDelta(t, 0.5, goalProgress("feel good", h), 1e-9)
	assert.Contains(t, goalAffirmation("consistent habit", 1), "crushing")
}

func TestSecondaryAgents_Analyze(t *testing.T) {
	h := buildHistory(regularDays(6))
	in := SecondaryInput{
		Meal:    h.Meals[len(h.Meals)-1],
		History: h,
		Profile: mealwise.Profile{GoalStatement: "steady energy"},
		Now:     h.Now,
	}

	seen := map[string]bool{}
	for _, a := range SecondaryAgents() {
		res, err := a.Analyze(context.Background(), in)
		require.NoError(t, err, a.Name())
		assert.Equal(t, a.Name(), res.Agent)
		assert.NotNil(t, res.Output)
		assert.GreaterOrEqual(t, res.Confidence, 0.0)
		assert.LessOrEqual(t, res.Confidence, 1.0)
		seen[res.Agent] = true
	}
	assert.Len(t, seen, 5)
}
