package agents

import (
	"context"
	"fmt"
	"strings"

	"mealwise"
	"mealwise/provider"
)

const maxSuggestions = 2

type WellnessInput struct {
	Foods        []mealwise.FoodItem
	Nutrition    mealwise.NutritionEstimate
	Balance      mealwise.BalanceStatus
	DailyContext string
	Profile      *mealwise.Profile
}

// Wellness writes the user-facing coaching message. Every message passes
// through the guardrail before it is returned.
type Wellness struct {
	gen   provider.Generator
	guard *Guardrail
}

func NewWellness(gen provider.Generator, guard *Guardrail) *Wellness {
	if guard == nil {
		guard = MustDefaultGuardrail()
	}
	return &Wellness{gen: gen, guard: guard}
}

type wellnessWire struct {
	Message         string   `json:"message"`
	EmojiIndicator  string   `json:"emoji_indicator"`
	Suggestions     []string `json:"suggestions"`
	DisclaimerShown *bool    `json:"disclaimer_shown"`
}

func (w *Wellness) Coach(ctx context.Context, in WellnessInput) mealwise.AgentResult[mealwise.WellnessOutput] {
	return mealwise.Invoke("wellness.coach", func() (mealwise.WellnessOutput, float64, error) {
		out, err := w.coach(ctx, in)
		if err != nil {
			return out, 0, err
		}
		if out.Replaced {
			return out, 0.5, nil
		}
		return out, 0.8, nil
	})
}

func (w *Wellness) coach(ctx context.Context, in WellnessInput) (mealwise.WellnessOutput, error) {
	status := in.Balance
	if status == "" {
		status = mealwise.BalanceRoughlyAligned
	}

	text, err := w.gen.Generate(ctx, provider.Request{
		System:     wellnessSystemPrompt,
		Prompt:     wellnessPrompt(in, status),
		Schema:     WellnessSchema(),
		SchemaName: WellnessSchemaName,
	})
	if err != nil {
		return mealwise.WellnessOutput{}, mealwise.NewProviderError("wellness.generate", "text provider failed", err)
	}

	var wire wellnessWire
	if err := provider.DecodeJSON(text, &wire); err != nil {
		return mealwise.WellnessOutput{}, mealwise.NewProviderError("wellness.decode", "malformed wellness output", err)
	}
	if strings.TrimSpace(wire.Message) == "" {
		return mealwise.WellnessOutput{}, mealwise.NewProviderError("wellness.decode", "empty message", nil)
	}

	out := mealwise.WellnessOutput{
		Emoji:           status.Emoji(),
		DisclaimerShown: true,
		Suggestions:     []string{},
	}
	out.Message, out.Replaced = w.guard.Filter(strings.TrimSpace(wire.Message))

	for _, s := range wire.Suggestions {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, bad := w.guard.Check(s); bad {
			continue
		}
		out.Suggestions = append(out.Suggestions, s)
		if len(out.Suggestions) == maxSuggestions {
			break
		}
	}
	return out, nil
}

func wellnessPrompt(in WellnessInput, status mealwise.BalanceStatus) string {
	names := make([]string, 0, 5)
	for i, f := range in.Foods {
		if i == 5 {
			break
		}
		names = append(names, f.Name)
	}
	foods := "Unable to identify"
	if len(names) > 0 {
		foods = strings.Join(names, ", ")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Create a supportive wellness message for this meal.\n\n")
	fmt.Fprintf(&b, "Foods identified: %s\n", foods)
	fmt.Fprintf(&b, "Energy balance status: %s\n", status)
	if in.DailyContext != "" {
		fmt.Fprintf(&b, "Context: %s\n", in.DailyContext)
	}
	if in.Profile != nil && in.Profile.GoalText() != "" {
		fmt.Fprintf(&b, "User goal: %s\n", in.Profile.GoalText())
	}
	fmt.Fprintf(&b, "\nUse the emoji indicator %s. Respond with JSON only.", status.Emoji())
	return b.String()
}
