package agents

import (
	"context"
	"fmt"
	"math"
	"strings"
)

type InterventionType string

const (
	InterventionGentle      InterventionType = "gentle_reassurance"
	InterventionMild        InterventionType = "mild_support"
	InterventionSignificant InterventionType = "significant_support"
)

type ToneCheck struct {
	Compassionate   bool     `json:"compassionate"`
	Score           float64  `json:"compassion_score"`
	HarmfulWords    []string `json:"harmful_words,omitempty"`
	SupportiveWords []string `json:"compassionate_words,omitempty"`
}

type SafetyFlags struct {
	MedicalLanguage bool `json:"medical_language"`
	ShameLanguage   bool `json:"shame_language"`
	OverConfident   bool `json:"over_confident"`
	EatingTrigger   bool `json:"eating_disorder_trigger"`
}

func (f SafetyFlags) Any() bool {
	return f.MedicalLanguage || f.ShameLanguage || f.OverConfident || f.EatingTrigger
}

type EnergyResult struct {
	StressDetected  bool             `json:"stress_detected"`
	StressLevel     float64          `json:"stress_level"`
	Indicators      []string         `json:"indicators,omitempty"`
	Type            InterventionType `json:"intervention_type,omitempty"`
	Action          string           `json:"suggested_action,omitempty"`
	Message         string           `json:"message"`
	Tone            *ToneCheck       `json:"tone_check,omitempty"`
	CompassionScore float64          `json:"compassion_score,omitempty"`
	Safety          *SafetyFlags     `json:"safety_flags,omitempty"`
	Disclaimer      bool             `json:"medical_disclaimer"`
}

var (
	harmfulWords       = []string{"bad", "failure", "wrong", "lazy", "undisciplined", "sick", "disease", "disorder", "dangerous", "urgent"}
	compassionateWords = []string{"understand", "support", "care", "gentle", "rest", "break", "reset", "okay", "notice", "observed"}
)

// EnergyIntervention watches for signs of stress or overwhelm in eating
// patterns and proposes a low-pressure response.
type EnergyIntervention struct{}

func (EnergyIntervention) Name() string { return "energy_intervention" }

func (e EnergyIntervention) Analyze(_ context.Context, in SecondaryInput) (SecondaryResult, error) {
	res := e.Assess(in.History)
	conf := 0.6
	if res.StressDetected {
		conf = 0.6 + 0.3*res.StressLevel
	}
	return SecondaryResult{Agent: e.Name(), Confidence: conf, Output: res}, nil
}

func (EnergyIntervention) Assess(h History) EnergyResult {
	level, indicators := stressIndicators(h)
	if len(indicators) == 0 {
		return EnergyResult{Message: "You're doing well. Keep it up!"}
	}

	kind, action := interventionFor(level)
	msg := interventionMessage(indicators, action)
	tone := CheckTone(msg)
	flags := CheckSafety(msg)
	return EnergyResult{
		StressDetected:  true,
		StressLevel:     math.Round(level*100) / 100,
		Indicators:      indicators,
		Type:            kind,
		Action:          action,
		Message:         msg,
		Tone:            &tone,
		CompassionScore: CompassionScore(msg),
		Safety:          &flags,
		Disclaimer:      true,
	}
}

func stressIndicators(h History) (float64, []string) {
	var (
		level      float64
		indicators []string
	)
	if share, ok := h.LowEnergyShare(); ok && share > 0.5 {
		indicators = append(indicators, fmt.Sprintf("Low energy tagged %.0f%% of meals", share*100))
		level += 0.3
	}
	if len(h.Meals) > 3 {
		if sd := math.Sqrt(h.TimingVariance()); sd > 3.5 {
			indicators = append(indicators, fmt.Sprintf("Meal timing varies significantly (%.1f hours std dev)", sd))
			level += 0.25
		}
	}

	light, heavyLate := 0, 0
	for _, m := range h.Meals {
		kcal := m.Nutrition.Calories.Mid()
		if kcal < 400 {
			light++
		}
		if m.CreatedAt.Hour() >= 20 && kcal > 600 {
			heavyLate++
		}
	}
	if len(h.Meals) > 0 && float64(light) > float64(len(h.Meals))*0.4 {
		indicators = append(indicators, "Several light meals in a row")
		level += 0.2
	}
	if heavyLate > 0 {
		indicators = append(indicators, "Heavy meals late at night")
		level += 0.15
	}
	if gap := h.LoggingGapDays(); gap > 2 {
		indicators = append(indicators, fmt.Sprintf("A %d day gap between logged meals", gap))
		level += 0.2
	}
	return math.Min(level, 1), indicators
}

func interventionFor(level float64) (InterventionType, string) {
	switch {
	case level < 0.3:
		return InterventionGentle, "Take a breath. You're doing your best."
	case level < 0.6:
		return InterventionMild, "Want to simplify your approach for a few days?"
	}
	return InterventionSignificant, "You seem overwhelmed. Want to reset tomorrow with something simpler?"
}

func interventionMessage(indicators []string, action string) string {
	var b strings.Builder
	b.WriteString("I've noticed a few things:\n")
	for _, ind := range indicators[:min(3, len(indicators))] {
		b.WriteString("• " + ind + "\n")
	}
	b.WriteString("\nThis doesn't mean anything has gone off track. Sometimes life gets busy, energy fluctuates, or we need a break from tracking.\n\n")
	b.WriteString(action + "\n\n")
	b.WriteString("Remember: this is about your wellness, not perfection.\nNo judgment. Just support.\n\n")
	b.WriteString("[Important: This is general wellness support, not medical advice. If you're concerned about your health, please consult a doctor.]")
	return b.String()
}

// CheckTone counts harmful and compassionate words in msg.
func CheckTone(msg string) ToneCheck {
	lower := strings.ToLower(msg)
	var tone ToneCheck
	for _, w := range harmfulWords {
		if containsWord(lower, w) {
			tone.HarmfulWords = append(tone.HarmfulWords, w)
		}
	}
	for _, w := range compassionateWords {
		if strings.Contains(lower, w) {
			tone.SupportiveWords = append(tone.SupportiveWords, w)
		}
	}
	h, c := len(tone.HarmfulWords), len(tone.SupportiveWords)
	tone.Score = float64(c) / float64(h+c+1)
	tone.Compassionate = h == 0 && c > 2
	return tone
}

// CompassionScore awards a quarter each for validation, offering options,
// a no-judgment statement and a disclaimer.
func CompassionScore(msg string) float64 {
	lower := strings.ToLower(msg)
	var score float64
	if containsAny(lower, "understand", "noticed", "observed") {
		score += 0.25
	}
	if containsAny(lower, "want", "would", "option") {
		score += 0.25
	}
	if containsAny(lower, "judgment", "not wrong") {
		score += 0.25
	}
	if containsAny(lower, "not medical", "consult") {
		score += 0.25
	}
	return score
}

func CheckSafety(msg string) SafetyFlags {
	lower := strings.ToLower(msg)
	return SafetyFlags{
		MedicalLanguage: containsAny(lower, "diagnose", "treat", "cure", "disease"),
		ShameLanguage:   containsAny(lower, "should", "must", "need to", "obligated"),
		OverConfident:   containsAny(lower, "100%", "definitely"),
		EatingTrigger:   containsAny(lower, "restrict", "calories", "limit", "cut back"),
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// containsWord matches w as a whole word so that "bad" does not match "badge".
func containsWord(s, w string) bool {
	for _, f := range strings.FieldsFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r == '\'')
	}) {
		if f == w {
			return true
		}
	}
	return false
}
