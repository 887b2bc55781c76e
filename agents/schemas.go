package agents

import "github.com/modelcontextprotocol/go-sdk/jsonschema"

const (
	VisionSchemaName   = "vision_result"
	WellnessSchemaName = "wellness_result"
)

func VisionSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"foods": {
				Type: "array",
				Items: &jsonschema.Schema{
					Type: "object",
					Properties: map[string]*jsonschema.Schema{
						"name":       {Type: "string"},
						"portion":    {Type: "string"},
						"confidence": {Type: "string", Enum: []any{"low", "medium", "high"}},
					},
					Required: []string{"name", "portion", "confidence"},
				},
			},
			"barcode_detected": {Types: []string{"string", "null"}},
			"image_ambiguity":  {Type: "string", Enum: []any{"low", "medium", "high"}},
			"context_applied":  {Types: []string{"string", "null"}},
		},
		Required: []string{"foods", "image_ambiguity"},
	}
}

func WellnessSchema() *jsonschema.Schema {
	maxSuggestions := 2
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"message":         {Type: "string"},
			"emoji_indicator": {Type: "string"},
			"suggestions": {
				Type:     "array",
				Items:    &jsonschema.Schema{Type: "string"},
				MaxItems: &maxSuggestions,
			},
			"disclaimer_shown": {Type: "boolean"},
		},
		Required: []string{"message", "suggestions"},
	}
}
