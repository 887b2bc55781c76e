package tools

import (
	"context"
	"strings"
	"time"

	"mealwise"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"
)

type AnalyzeBarcode struct{ analyzer BarcodeAnalyzer }

func NewAnalyzeBarcode(a BarcodeAnalyzer) *AnalyzeBarcode { return &AnalyzeBarcode{analyzer: a} }

func (t *AnalyzeBarcode) Name() string  { return "analyze_barcode" }
func (t *AnalyzeBarcode) Title() string { return "Analyze Packaged Food Barcode" }
func (t *AnalyzeBarcode) Description() string {
	return "Looks up a packaged food by barcode, logs it as a meal and returns its nutrition range with a short wellness note."
}

func (t *AnalyzeBarcode) InputSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"user_id": stringSchema("User the meal is logged for"),
			"barcode": stringSchema("EAN/UPC digits printed under the bars"),
			"context": {Type: "string", Enum: []any{"homemade", "restaurant", "snack", "meal"}},
			"note":    stringSchema("Optional free-text note"),
		},
		Required: []string{"barcode"},
	}
}

func (t *AnalyzeBarcode) OutputSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"request_id":     {Type: "string"},
			"meal_id":        {Type: "string"},
			"food":           {Type: "string"},
			"calories":       rangeSchema(),
			"protein_g":      rangeSchema(),
			"balance_status": {Type: "string", Enum: []any{"under_fueled", "roughly_aligned", "slightly_over"}},
			"message":        {Type: "string"},
			"emoji":          {Type: "string"},
			"confidence":     {Type: "number"},
			"degraded":       {Type: "boolean"},
			"disclaimer":     {Type: "string"},
		},
		Required: []string{"request_id", "calories", "message", "confidence", "disclaimer"},
	}
}

func (t *AnalyzeBarcode) Run(ctx context.Context, input map[string]any) (map[string]any, error) {
	var params struct {
		UserID  string `json:"user_id"`
		Barcode string `json:"barcode"`
		Context string `json:"context"`
		Note    string `json:"note"`
	}
	if err := decodeInput(input, &params); err != nil {
		return nil, mealwise.NewDecodeError("tools.analyze_barcode", "invalid parameters", err)
	}
	params.Barcode = strings.TrimSpace(params.Barcode)
	if params.Barcode == "" {
		return nil, mealwise.NewDecodeError("tools.analyze_barcode", "barcode is required", nil)
	}

	resp, err := t.analyzer.AnalyzeBarcode(ctx, mealwise.AnalysisRequest{
		UserID:     params.UserID,
		Barcode:    params.Barcode,
		Context:    mealwise.ParseMealContext(params.Context),
		Note:       params.Note,
		ReceivedAt: time.Now(),
	})
	if err != nil {
		return nil, err
	}

	out := struct {
		RequestID  string                 `json:"request_id"`
		MealID     string                 `json:"meal_id,omitempty"`
		Food       string                 `json:"food,omitempty"`
		Calories   mealwise.Range         `json:"calories"`
		Protein    mealwise.Range         `json:"protein_g"`
		Status     mealwise.BalanceStatus `json:"balance_status,omitempty"`
		Message    string                 `json:"message"`
		Emoji      string                 `json:"emoji"`
		Confidence float64                `json:"confidence"`
		Degraded   bool                   `json:"degraded"`
		Disclaimer string                 `json:"disclaimer"`
	}{
		RequestID:  resp.RequestID,
		MealID:     resp.MealID,
		Calories:   resp.Nutrition.Get().Calories,
		Protein:    resp.Nutrition.Get().Macros.Protein,
		Status:     resp.Personalization.Get().BalanceStatus,
		Message:    resp.Message,
		Emoji:      resp.Emoji,
		Confidence: resp.Confidence,
		Degraded:   resp.Degraded,
		Disclaimer: resp.Disclaimer,
	}
	if foods := resp.Vision.Get().Foods; len(foods) > 0 {
		out.Food = foods[0].Name
	}
	return toMap(out)
}
