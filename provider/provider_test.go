package provider_test

import (
	"testing"

	"mealwise/provider"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{
			name:  "plain object",
			input: `{"foods": []}`,
			want:  `{"foods": []}`,
		},
		{
			name:  "markdown fence",
			input: "```json\n{\"foods\": [{\"name\": \"rice\"}]}\n```",
			want:  `{"foods": [{"name": "rice"}]}`,
		},
		{
			name:  "surrounding prose",
			input: `Here you go: {"a": 1} hope that helps`,
			want:  `{"a": 1}`,
		},
		{
			name:  "trailing commas",
			input: `{"foods": [{"name": "egg",},], "image_ambiguity": "low",}`,
			want:  `{"foods": [{"name": "egg"}], "image_ambiguity": "low"}`,
		},
		{
			name:    "no object",
			input:   "I cannot see any food.",
			wantErr: provider.ErrNoJSON,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := provider.ExtractJSON(tt.input)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	var out struct {
		Message string `json:"message"`
	}
	require.NoError(t, provider.DecodeJSON("```\n{\"message\": \"hi\",}\n```", &out))
	assert.Equal(t, "hi", out.Message)

	assert.Error(t, provider.DecodeJSON(`{"message": }`, &out))
}

func TestImageFormat(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n0000")
	assert.Equal(t, "png", provider.ImageFormat("", png))
	assert.Equal(t, "jpeg", provider.ImageFormat("image/jpeg", nil))
	assert.Equal(t, "webp", provider.ImageFormat("image/webp", nil))
	assert.Equal(t, "gif", provider.ImageFormat("IMAGE/GIF", nil))
}
