package bedrock

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"mealwise/provider"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/modelcontextprotocol/go-sdk/jsonschema"
)

const (
	// defaultModelID is an inference profile ID, not the foundation model's ID.
	// See https://docs.aws.amazon.com/bedrock/latest/userguide/inference-profiles.html.
	defaultModelID = "us.anthropic.claude-3-7-sonnet-20250219-v1:0"

	defaultMaxTokens = 1024

	// Low temperature and top_p keep structured output consistent.
	defaultTemperature = 0.2
	defaultTopP        = 0.9

	defaultSchemaName = "emit_result"
)

type bedrockRuntimeClient interface {
	Converse(context.Context, *bedrockruntime.ConverseInput, ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

type LLMOptions struct {
	ModelID     string
	MaxTokens   int32
	Temperature float32
	TopP        float32
}

// LLMClient is a provider.Generator backed by the Bedrock Converse API.
type LLMClient struct {
	brc  bedrockRuntimeClient
	opts LLMOptions
}

var _ provider.Generator = (*LLMClient)(nil)

func NewLLMClient(brc bedrockRuntimeClient, opts LLMOptions) *LLMClient {
	if opts.ModelID == "" {
		opts.ModelID = defaultModelID
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	if opts.Temperature == 0 {
		opts.Temperature = defaultTemperature
	}
	if opts.TopP == 0 {
		opts.TopP = defaultTopP
	}
	return &LLMClient{
		brc:  brc,
		opts: opts,
	}
}

// Generate sends one user turn (text plus optional image). When the request
// carries a schema the model is forced to answer through a single tool whose
// input schema is that schema, and the tool input is returned as JSON.
func (c *LLMClient) Generate(ctx context.Context, req provider.Request) (string, error) {
	slog.Info("LLM_CLIENT: Invoked", "model", c.opts.ModelID, "prompt_len", len(req.Prompt), "image_bytes", len(req.Image))

	var sys []types.SystemContentBlock
	if req.System != "" {
		sys = append(sys, &types.SystemContentBlockMemberText{Value: req.System})
	}

	msg := types.Message{Role: types.ConversationRoleUser}
	if len(req.Image) > 0 {
		msg.Content = append(msg.Content, &types.ContentBlockMemberImage{
			Value: types.ImageBlock{
				Format: types.ImageFormat(provider.ImageFormat(req.ImageFormat, req.Image)),
				Source: &types.ImageSourceMemberBytes{Value: req.Image},
			},
		})
		slog.Info("LLM_CLIENT: Added image content", "bytes", len(req.Image))
	}
	msg.Content = append(msg.Content, &types.ContentBlockMemberText{Value: req.Prompt})

	in := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(c.opts.ModelID),
		System:   sys,
		Messages: []types.Message{msg},
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens:   aws.Int32(c.opts.MaxTokens),
			Temperature: aws.Float32(c.opts.Temperature),
			TopP:        aws.Float32(c.opts.TopP),
		},
	}

	if req.Schema != nil {
		name := req.SchemaName
		if name == "" {
			name = defaultSchemaName
		}
		spec, err := buildToolSpec(name, "Return the result in this structure.", req.Schema)
		if err != nil {
			return "", err
		}
		in.ToolConfig = &types.ToolConfiguration{
			Tools:      []types.Tool{&types.ToolMemberToolSpec{Value: spec}},
			ToolChoice: &types.ToolChoiceMemberTool{Value: types.SpecificToolChoice{Name: aws.String(name)}},
		}
	}

	out, err := c.brc.Converse(ctx, in)
	if err != nil {
		slog.Error("LLM_CLIENT: Bedrock invoke failed", "error", err, "model", c.opts.ModelID)
		return "", err
	}

	attrs := []any{"stop_reason", out.StopReason}
	if out.Metrics != nil {
		attrs = append(attrs, "latency_ms", aws.ToInt64(out.Metrics.LatencyMs))
	}
	if out.Usage != nil {
		attrs = append(attrs, "input_tokens", aws.ToInt32(out.Usage.InputTokens), "output_tokens", aws.ToInt32(out.Usage.OutputTokens))
	}
	slog.Info("LLM_CLIENT: Bedrock invoke succeeded", attrs...)

	switch out.StopReason {
	case "tool_use":
		input, err := toolInputFromOutput(out)
		if err != nil {
			return "", fmt.Errorf("failed to parse tool input: %w", err)
		}
		b, err := json.Marshal(input)
		if err != nil {
			return "", fmt.Errorf("failed to encode tool input: %w", err)
		}
		slog.Info("LLM_CLIENT: Extracted structured output", "bytes", len(b))
		return string(b), nil

	case "end_turn", "stop_sequence":
		text, err := textFromOutput(out)
		if err != nil {
			return "", fmt.Errorf("failed to extract final text: %w", err)
		}
		if req.Schema != nil {
			if _, err := provider.ExtractJSON(text); err != nil {
				return "", fmt.Errorf("final output not valid JSON: %w", err)
			}
		}
		slog.Info("LLM_CLIENT: Extracted final text", "text_len", len(text))
		return text, nil

	case "max_tokens":
		slog.Warn("LLM_CLIENT: Model hit MaxTokens limit; consider increasing MaxTokens")
		return "", fmt.Errorf("model hit MaxTokens limit; consider increasing MaxTokens")

	case "guardrail_intervened", "content_filtered":
		slog.Warn("LLM_CLIENT: Model response blocked by Bedrock safety filters")
		return "", fmt.Errorf("model response blocked by Bedrock safety filters")

	default:
		return textFromOutput(out)
	}
}

// buildToolSpec constructs a ToolSpecification whose input schema is s.
func buildToolSpec(name, description string, s *jsonschema.Schema) (types.ToolSpecification, error) {
	// Round-trip through JSON so the document carries the schema's own MarshalJSON output.
	schemaJSON, err := json.Marshal(s)
	if err != nil {
		return types.ToolSpecification{}, fmt.Errorf("failed to marshal schema for %s: %w", name, err)
	}

	var schemaMap map[string]any
	if err := json.Unmarshal(schemaJSON, &schemaMap); err != nil {
		return types.ToolSpecification{}, fmt.Errorf("failed to unmarshal schema for %s: %w", name, err)
	}

	return types.ToolSpecification{
		Name:        aws.String(name),
		Description: aws.String(description),
		InputSchema: &types.ToolInputSchemaMemberJson{
			Value: document.NewLazyDocument(schemaMap),
		},
	}, nil
}

// textFromOutput returns assistant text. A text block that looks like a
// single JSON object wins; otherwise all text blocks are joined with '\n'.
func textFromOutput(out *bedrockruntime.ConverseOutput) (string, error) {
	if out == nil || out.Output == nil {
		return "", nil
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok || msg == nil || len(msg.Value.Content) == 0 {
		return "", nil
	}

	texts := make([]string, 0, len(msg.Value.Content))
	for _, cb := range msg.Value.Content {
		if t, ok := cb.(*types.ContentBlockMemberText); ok && t != nil && t.Value != "" {
			texts = append(texts, t.Value)
		}
	}
	if len(texts) == 0 {
		return "", nil
	}

	for i := len(texts) - 1; i >= 0; i-- {
		s := strings.TrimSpace(texts[i])
		if len(s) > 1 && s[0] == '{' && s[len(s)-1] == '}' {
			return s, nil
		}
	}

	if len(texts) == 1 {
		return texts[0], nil
	}
	return strings.Join(texts, "\n"), nil
}

// toolInputFromOutput returns the input of the first tool use block.
func toolInputFromOutput(out *bedrockruntime.ConverseOutput) (map[string]any, error) {
	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok || msg == nil {
		return nil, fmt.Errorf("no message in output")
	}

	for _, cb := range msg.Value.Content {
		tu, ok := cb.(*types.ContentBlockMemberToolUse)
		if !ok || tu == nil || tu.Value.Input == nil {
			continue
		}

		input, err := decodeDocument(tu.Value.Input)
		if err != nil {
			return nil, err
		}
		return normalizeInput(input).(map[string]any), nil
	}
	return nil, fmt.Errorf("no tool use block in output")
}

// decodeDocument reads a tool input document into a map. Documents built
// from Go values rather than wire JSON cannot always be unmarshaled directly,
// so those are round-tripped through their JSON encoding.
func decodeDocument(doc document.Interface) (map[string]any, error) {
	var input map[string]any
	err := doc.UnmarshalSmithyDocument(&input)
	if err != nil {
		data, merr := doc.MarshalSmithyDocument()
		if merr != nil {
			return nil, fmt.Errorf("failed to decode tool input: %w", err)
		}
		input = nil
		if err := json.Unmarshal(data, &input); err != nil {
			return nil, fmt.Errorf("failed to decode tool input: %w", err)
		}
	}
	if input == nil {
		input = map[string]any{}
	}
	return input, nil
}

// normalizeInput recursively decodes stringified JSON values, which some
// models emit for nested arrays.
func normalizeInput(val any) any {
	switch v := val.(type) {
	case string:
		s := strings.TrimSpace(v)
		if len(s) > 1 && (s[0] == '[' || s[0] == '{') {
			var decoded any
			if json.Unmarshal([]byte(s), &decoded) == nil {
				return normalizeInput(decoded)
			}
		}
		return v

	case []any:
		for i := range v {
			v[i] = normalizeInput(v[i])
		}
		return v

	case map[string]any:
		for key, val := range v {
			v[key] = normalizeInput(val)
		}
		return v

	default:
		return v
	}
}
