package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"mealwise"
	"mealwise/provider"

	"github.com/arbovm/levenshtein"
)

// BarcodeScanner reads a barcode from an image. It backs up the vision
// model when the model does not report one.
type BarcodeScanner interface {
	Scan(ctx context.Context, img []byte) (string, error)
}

// Vision identifies foods, portions and barcodes in a meal photo.
type Vision struct {
	gen     provider.Generator
	scanner BarcodeScanner
}

type VisionOption func(*Vision)

func WithBarcodeScanner(s BarcodeScanner) VisionOption {
	return func(v *Vision) {
		v.scanner = s
	}
}

func NewVision(gen provider.Generator, opts ...VisionOption) *Vision {
	v := &Vision{gen: gen}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

type visionWire struct {
	Foods []struct {
		Name       string `json:"name"`
		Portion    string `json:"portion"`
		Confidence string `json:"confidence"`
	} `json:"foods"`
	BarcodeDetected *string         `json:"barcode_detected"`
	ImageAmbiguity  json.RawMessage `json:"image_ambiguity"`
	ContextApplied  *string         `json:"context_applied"`
}

// Interpret runs the vision model over img. The result confidence is the
// mean per-item confidence.
func (v *Vision) Interpret(ctx context.Context, img []byte, mime string, mc mealwise.MealContext) mealwise.AgentResult[mealwise.VisionOutput] {
	return mealwise.Invoke("vision.interpret", func() (mealwise.VisionOutput, float64, error) {
		out, err := v.interpret(ctx, img, mime, mc)
		if err != nil {
			return out, 0, err
		}
		return out, meanItemScore(out.Foods), nil
	})
}

func (v *Vision) interpret(ctx context.Context, img []byte, mime string, mc mealwise.MealContext) (mealwise.VisionOutput, error) {
	prompt := "Analyze this food image and identify all food items with estimated portions."
	if mc != "" {
		prompt += fmt.Sprintf("\n\nContext: this is a %s meal/food.", mc)
	}
	prompt += "\n\nRespond with JSON only."

	text, err := v.gen.Generate(ctx, provider.Request{
		System:      visionSystemPrompt,
		Prompt:      prompt,
		Image:       img,
		ImageFormat: mime,
		Schema:      VisionSchema(),
		SchemaName:  VisionSchemaName,
	})
	if err != nil {
		return mealwise.VisionOutput{}, mealwise.NewProviderError("vision.generate", "vision provider failed", err)
	}

	var w visionWire
	if err := provider.DecodeJSON(text, &w); err != nil {
		return mealwise.VisionOutput{}, mealwise.NewProviderError("vision.decode", "malformed vision output", err)
	}

	foods := make([]mealwise.FoodItem, 0, len(w.Foods))
	for _, f := range w.Foods {
		name := strings.TrimSpace(f.Name)
		if name == "" {
			continue
		}
		foods = append(foods, mealwise.FoodItem{
			Name:       name,
			Portion:    strings.TrimSpace(f.Portion),
			Confidence: mealwise.ParseConfidenceLevel(f.Confidence),
		})
	}

	out := mealwise.VisionOutput{
		Foods:          DedupeFoods(foods),
		AmbiguityScore: ParseAmbiguity(w.ImageAmbiguity),
		ContextApplied: mc,
	}
	if w.BarcodeDetected != nil {
		out.BarcodeDetected = normalizeBarcode(*w.BarcodeDetected)
	}

	if out.BarcodeDetected == "" && v.scanner != nil {
		code, err := v.scanner.Scan(ctx, img)
		switch {
		case err != nil:
			slog.Warn("VISION: Barcode scan failed", "error", err)
		case code != "":
			slog.Info("VISION: Barcode found by scanner", "barcode", code)
			out.BarcodeDetected = normalizeBarcode(code)
		}
	}

	slog.Info("VISION: Interpreted image",
		"foods", len(out.Foods),
		"ambiguity", out.AmbiguityScore,
		"barcode", out.BarcodeDetected != "")
	return out, nil
}

// ParseAmbiguity accepts a categorical level or a number in [0,1]. Anything
// else is treated as medium.
func ParseAmbiguity(raw json.RawMessage) float64 {
	const medium = 0.5
	if len(raw) == 0 {
		return medium
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "low":
			return 0.2
		case "medium":
			return medium
		case "high":
			return 0.8
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return clampUnit(f)
		}
		return medium
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return clampUnit(f)
	}
	return medium
}

// DedupeFoods drops repeated items, keeping detection order. Items are the
// same when their lower-cased name and portion match, or when the portions
// match and the names are one edit apart (e.g. "tomato" and "tomatos").
func DedupeFoods(foods []mealwise.FoodItem) []mealwise.FoodItem {
	out := make([]mealwise.FoodItem, 0, len(foods))
	for _, f := range foods {
		name := strings.ToLower(strings.TrimSpace(f.Name))
		portion := strings.ToLower(strings.TrimSpace(f.Portion))

		dup := -1
		for i, kept := range out {
			if strings.ToLower(kept.Portion) != portion {
				continue
			}
			keptName := strings.ToLower(kept.Name)
			if sameFood(keptName, name) {
				dup = i
				break
			}
		}

		if dup < 0 {
			out = append(out, f)
			continue
		}
		if f.Confidence.Score() > out[dup].Confidence.Score() {
			out[dup].Confidence = f.Confidence
		}
	}
	return out
}

// sameFood treats plurals and single-character typos as one food. Very short
// names only match their plural so "tea" and "pea" stay apart.
func sameFood(a, b string) bool {
	if a == b || a+"s" == b || b+"s" == a {
		return true
	}
	return len(a) >= 4 && len(b) >= 4 && levenshtein.Distance(a, b) <= 1
}

func normalizeBarcode(s string) string {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "null") || strings.EqualFold(s, "none") {
		return ""
	}
	return strings.ReplaceAll(s, " ", "")
}

func meanItemScore(foods []mealwise.FoodItem) float64 {
	if len(foods) == 0 {
		return 0
	}
	var sum float64
	for _, f := range foods {
		sum += f.Confidence.Score()
	}
	return sum / float64(len(foods))
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
