package agents

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"mealwise"
	"mealwise/provider/mock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScanner struct {
	code  string
	err   error
	calls int
}

func (f *fakeScanner) Scan(ctx context.Context, img []byte) (string, error) {
	f.calls++
	return f.code, f.err
}

func TestVision_Interpret(t *testing.T) {
	v := NewVision(mock.NewLLMClient())

	res := v.Interpret(context.Background(), []byte("img"), "image/jpeg", mealwise.ContextHomemade)

	require.True(t, res.Success)
	out := res.Get()
	require.Len(t, out.Foods, 3)
	assert.Equal(t, "grilled chicken breast", out.Foods[0].Name)
	assert.Equal(t, mealwise.ConfidenceHigh, out.Foods[0].Confidence)
	assert.Empty(t, out.BarcodeDetected)
	assert.InDelta(t, 0.2, out.AmbiguityScore, 1e-9)
	assert.Equal(t, mealwise.ContextHomemade, out.ContextApplied)
	assert.InDelta(t, 0.8, res.Confidence, 1e-9)
}

func TestVision_InterpretRequest(t *testing.T) {
	gen := mock.NewLLMClient()
	v := NewVision(gen)

	v.Interpret(context.Background(), []byte("img"), "image/png", mealwise.ContextRestaurant)

	assert.Equal(t, 1, gen.Calls(VisionSchemaName))
	reqs := gen.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, []byte("img"), reqs[0].Image)
	assert.Equal(t, "image/png", reqs[0].ImageFormat)
	assert.Contains(t, reqs[0].Prompt, "restaurant")
	assert.NotNil(t, reqs[0].Schema)
}

func TestVision_InterpretBarcode(t *testing.T) {
	tests := []struct {
		name        string
		response    string
		scanner     *fakeScanner
		wantBarcode string
		wantScans   int
	}{
		{
			name:        "barcode from model",
			response:    `{"foods":[],"barcode_detected":"0123 4567 89012","image_ambiguity":"low"}`,
			scanner:     &fakeScanner{code: "999"},
			wantBarcode: "0123456789012",
			wantScans:   0,
		},
		{
			name:        "null barcode falls back to scanner",
			response:    `{"foods":[{"name":"granola bar","portion":"1 bar","confidence":"high"}],"barcode_detected":"null"}`,
			scanner:     &fakeScanner{code: "0123456789012"},
			wantBarcode: "0123456789012",
			wantScans:   1,
		},
		{
			name:        "scanner error is ignored",
			response:    `{"foods":[{"name":"apple","portion":"1 medium","confidence":"high"}]}`,
			scanner:     &fakeScanner{err: errors.New("no tesseract")},
			wantBarcode: "",
			wantScans:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := mock.NewLLMClient().WithResponse(VisionSchemaName, tt.response)
			v := NewVision(gen, WithBarcodeScanner(tt.scanner))

			res := v.Interpret(context.Background(), []byte("img"), "", "")

			require.True(t, res.Success)
			assert.Equal(t, tt.wantBarcode, res.Get().BarcodeDetected)
			assert.Equal(t, tt.wantScans, tt.scanner.calls)
		})
	}
}

func TestVision_InterpretFailures(t *testing.T) {
	tests := []struct {
		name string
		gen  *mock.LLMClient
	}{
		{
			name: "provider error",
			gen:  mock.NewLLMClient().WithError(VisionSchemaName, errors.New("throttled")),
		},
		{
			name: "malformed output",
			gen:  mock.NewLLMClient().WithResponse(VisionSchemaName, "I see a sandwich."),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := NewVision(tt.gen).Interpret(context.Background(), []byte("img"), "", "")

			assert.False(t, res.Success)
			assert.Equal(t, mealwise.ErrProvider, res.Error)
			assert.Zero(t, res.Confidence)
			assert.Nil(t, res.Value)
		})
	}
}

func TestVision_InterpretTolerantJSON(t *testing.T) {
	response := "```json\n{\"foods\":[{\"name\":\"toast\",\"portion\":\"2 slices\",\"confidence\":\"medium\"},],\"image_ambiguity\":0.9,}\n```"
	gen := mock.NewLLMClient().WithResponse(VisionSchemaName, response)

	res := NewVision(gen).Interpret(context.Background(), []byte("img"), "", "")

	require.True(t, res.Success)
	require.Len(t, res.Get().Foods, 1)
	assert.InDelta(t, 0.9, res.Get().AmbiguityScore, 1e-9)
}

func TestParseAmbiguity(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
	}{
		{`"low"`, 0.2},
		{`"Medium"`, 0.5},
		{`"HIGH"`, 0.8},
		{`0.35`, 0.35},
		{`"0.7"`, 0.7},
		{`1.8`, 1},
		{`-2`, 0},
		{`"unclear"`, 0.5},
		{`null`, 0.5},
		{``, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.InDelta(t, tt.want, ParseAmbiguity(json.RawMessage(tt.raw)), 1e-9)
		})
	}
}

func TestDedupeFoods(t *testing.T) {
	food := func(name, portion string, c mealwise.ConfidenceLevel) mealwise.FoodItem {
		return mealwise.FoodItem{Name: name, Portion: portion, Confidence: c}
	}

	tests := []struct {
		name  string
		in    []mealwise.FoodItem
		want  []string
		confs []mealwise.ConfidenceLevel
	}{
		{
			name:  "case insensitive duplicate keeps higher confidence",
			in:    []mealwise.FoodItem{food("Rice", "medium", mealwise.ConfidenceLow), food("rice", "Medium", mealwise.ConfidenceHigh)},
			want:  []string{"Rice"},
			confs: []mealwise.ConfidenceLevel{mealwise.ConfidenceHigh},
		},
		{
			name:  "one edit apart with same portion",
			in:    []mealwise.FoodItem{food("tomato", "small", mealwise.ConfidenceMedium), food("tomatos", "small", mealwise.ConfidenceMedium)},
			want:  []string{"tomato"},
			confs: []mealwise.ConfidenceLevel{mealwise.ConfidenceMedium},
		},
		{
			name:  "different portions stay apart",
			in:    []mealwise.FoodItem{food("rice", "small", mealwise.ConfidenceHigh), food("rice", "large", mealwise.ConfidenceHigh)},
			want:  []string{"rice", "rice"},
			confs: []mealwise.ConfidenceLevel{mealwise.ConfidenceHigh, mealwise.ConfidenceHigh},
		},
		{
			name:  "short names need more than one edit",
			in:    []mealwise.FoodItem{food("tea", "1 cup", mealwise.ConfidenceHigh), food("pea", "1 cup", mealwise.ConfidenceLow)},
			want:  []string{"tea", "pea"},
			confs: []mealwise.ConfidenceLevel{mealwise.ConfidenceHigh, mealwise.ConfidenceLow},
		},
		{
			name:  "order preserved",
			in:    []mealwise.FoodItem{food("egg", "2", mealwise.ConfidenceHigh), food("toast", "1 slice", mealwise.ConfidenceHigh), food("eggs", "2", mealwise.ConfidenceLow)},
			want:  []string{"egg", "toast"},
			confs: []mealwise.ConfidenceLevel{mealwise.ConfidenceHigh, mealwise.ConfidenceHigh},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DedupeFoods(tt.in)
			require.Len(t, got, len(tt.want))
			for i := range got {
				assert.Equal(t, tt.want[i], got[i].Name)
				assert.Equal(t, tt.confs[i], got[i].Confidence)
			}
		})
	}
}
