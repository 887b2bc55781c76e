package agents

import (
	"context"
	"fmt"
	"math"
	"strings"
)

type RecommendationType string

const (
	RecommendationAction       RecommendationType = "action"
	RecommendationInsight      RecommendationType = "insight"
	RecommendationIntervention RecommendationType = "intervention"
)

var goalCategories = [][]string{
	{"energy", "focus", "alert", "awake", "vigor", "vitality"},
	{"consistent", "habit", "routine", "regular", "daily"},
	{"intuitive", "feel", "listen", "trust", "signal"},
	{"balance", "moderate", "sustainable", "realistic"},
	{"well", "health", "support", "sustain", "thrive"},
}

type GoalResult struct {
	Aligned      bool     `json:"aligned_with_goal"`
	Score        float64  `json:"alignment_score"`
	Goal         string   `json:"goal,omitempty"`
	Assessment   string   `json:"assessment,omitempty"`
	Keywords     []string `json:"aligned_keywords,omitempty"`
	Misaligned   []string `json:"misaligned_elements,omitempty"`
	Modify       bool     `json:"should_modify"`
	Modification string   `json:"modification,omitempty"`
	Progress     float64  `json:"goal_progress"`
	Affirmation  string   `json:"affirm_goal,omitempty"`
	Message      string   `json:"message,omitempty"`
}

// GoalGuardian checks that what the user is told serves the goal they set.
type GoalGuardian struct{}

func (GoalGuardian) Name() string { return "goal_guardian" }

// Analyze reviews the wellness message delivered with the meal.
func (g GoalGuardian) Analyze(_ context.Context, in SecondaryInput) (SecondaryResult, error) {
	res := g.Review(in.Profile.GoalStatement, in.Meal.Wellness.Message, RecommendationInsight, in.History)
	return SecondaryResult{Agent: g.Name(), Confidence: math.Max(res.Score, 0.5), Output: res}, nil
}

func (GoalGuardian) Review(goal, recommendation string, kind RecommendationType, h History) GoalResult {
	goal = strings.ToLower(strings.TrimSpace(goal))
	if goal == "" {
		return GoalResult{
			Aligned: true,
			Message: "No goal set yet. Set a goal to get personalized guidance.",
		}
	}
	rec := strings.ToLower(recommendation)

	keywords := goalKeywords(goal)
	var matched []string
	for _, kw := range keywords {
		if strings.Contains(rec, kw) {
			matched = append(matched, kw)
		}
	}
	misaligned := goalMisalignment(goal, rec)

	score := float64(len(matched)) / float64(len(keywords))
	if len(misaligned) > 0 {
		score *= 0.7
	}
	if kind == RecommendationAction && score < 0.6 {
		score -= 0.1
	}
	score = clampUnit(score)

	res := GoalResult{
		Aligned:    score > 0.7,
		Score:      math.Round(score*100) / 100,
		Goal:       goal,
		Assessment: goalAssessment(goal, matched, misaligned),
		Keywords:   matched,
		Misaligned: misaligned,
		Progress:   goalProgress(goal, h),
	}
	if score < 0.7 && (kind == RecommendationAction || kind == RecommendationInsight) {
		res.Modify = true
		res.Modification = modifyRecommendation(goal, rec)
	}
	res.Affirmation = goalAffirmation(goal, res.Progress)
	return res
}

func goalKeywords(goal string) []string {
	var keywords []string
	for _, cat := range goalCategories {
		for _, w := range cat {
			if strings.Contains(goal, w) {
				keywords = append(keywords, cat...)
				break
			}
		}
	}
	if len(keywords) == 0 {
		return []string{"wellness", "support"}
	}
	return keywords
}

func goalMisalignment(goal, rec string) []string {
	var out []string
	if strings.Contains(goal, "intuitive") && strings.Contains(rec, "calories") && strings.Contains(rec, "count") {
		out = append(out, "Rigid calorie counting contradicts intuitive eating")
	}
	if containsAny(goal, "sustainable", "realistic") && containsAny(rec, "must", "always", "never", "extreme", "strict", "discipline") {
		out = append(out, "Extreme advice contradicts sustainable approach")
	}
	if strings.Contains(goal, "energy") && containsAny(rec, "restrict", "fewer", "cut back") {
		out = append(out, "Restriction contradicts energy goals")
	}
	if containsAny(rec, "failure", "bad", "undisciplined", "weak", "lazy") {
		out = append(out, "Shame-based language contradicts wellness")
	}
	return out
}

func modifyRecommendation(goal, rec string) string {
	switch {
	case strings.Contains(goal, "energy") && strings.Contains(rec, "restrict"):
		return strings.ReplaceAll(rec, "restrict", "consider") + " while maintaining your energy levels."
	case strings.Contains(goal, "intuitive") && strings.Contains(rec, "calories"):
		return "Focus on how you feel after this meal rather than the calorie count."
	case strings.Contains(goal, "consistent") && strings.Contains(rec, "perfect"):
		return strings.ReplaceAll(rec, "perfect", "consistent")
	}
	return fmt.Sprintf("Here's how this supports your goal (%s): %s", goal, rec)
}

func goalProgress(goal string, h History) float64 {
	switch {
	case strings.Contains(goal, "energy"):
		return h.AverageEnergy()
	case strings.Contains(goal, "consistent"), strings.Contains(goal, "habit"):
		return math.Min(float64(h.DaysTracked())/7, 1)
	case strings.Contains(goal, "balance"):
		return h.TimingStability()
	case strings.Contains(goal, "intuitive"):
		return 0.8
	}
	return 0.5
}

func goalAssessment(goal string, matched, misaligned []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Checking alignment with goal: '%s'", goal)
	if len(matched) > 0 {
		fmt.Fprintf(&b, "\n✓ Aligned keywords found: %s", strings.Join(matched, ", "))
	}
	if len(misaligned) > 0 {
		fmt.Fprintf(&b, "\n✗ Concerns: %s", strings.Join(misaligned, " | "))
	}
	if len(matched) == 0 && len(misaligned) == 0 {
		b.WriteString("\nNeutral on this recommendation.")
	}
	return b.String()
}

func goalAffirmation(goal string, progress float64) string {
	base := "You're building toward your goal."
	switch {
	case progress > 0.8:
		base = "You're crushing your goal!"
	case progress > 0.5:
		base = "You're making real progress on your goal."
	}
	switch {
	case strings.Contains(goal, "energy"):
		return base + " Keep noticing what fuels your energy. 🔋"
	case strings.Contains(goal, "consistent"):
		return base + " Consistency builds momentum. Keep going. 💪"
	case strings.Contains(goal, "balance"):
		return base + " You're finding what works for you. ⚖️"
	case strings.Contains(goal, "intuitive"):
		return base + " Trust yourself. You've got this. 🧘"
	}
	return base + " Your wellness matters. 💚"
}
