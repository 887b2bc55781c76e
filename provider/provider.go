// Package provider defines the capability-provider contract shared by the
// vision and text agents, plus helpers for decoding model output.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"
)

// Request is one generation call. Image is optional; when Schema is set the
// provider must return a JSON document shaped by it.
type Request struct {
	System      string
	Prompt      string
	Image       []byte
	ImageFormat string
	Schema      *jsonschema.Schema
	SchemaName  string
}

// Generator is an opaque vision/language capability.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req Request) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

var ErrNoJSON = errors.New("no JSON object in model output")

var (
	fencePattern         = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
)

// ExtractJSON pulls the outermost JSON object out of model text: markdown
// fences are stripped, surrounding prose dropped and trailing commas removed.
func ExtractJSON(text string) (string, error) {
	s := strings.TrimSpace(text)
	if m := fencePattern.FindStringSubmatch(s); m != nil {
		s = strings.TrimSpace(m[1])
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", ErrNoJSON
	}
	s = s[start : end+1]
	return trailingCommaPattern.ReplaceAllString(s, "$1"), nil
}

// DecodeJSON extracts and unmarshals the JSON object in text into v.
func DecodeJSON(text string, v any) error {
	s, err := ExtractJSON(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(s), v); err != nil {
		return fmt.Errorf("decode model output: %w", err)
	}
	return nil
}

// ImageFormat returns the short image format name (jpeg, png, gif, webp) for
// the declared MIME type, sniffing the bytes when the MIME type is empty.
func ImageFormat(mime string, img []byte) string {
	if mime == "" && len(img) > 0 {
		mime = http.DetectContentType(img)
	}
	mime = strings.ToLower(strings.TrimSpace(mime))
	switch {
	case strings.HasSuffix(mime, "png"):
		return "png"
	case strings.HasSuffix(mime, "gif"):
		return "gif"
	case strings.HasSuffix(mime, "webp"):
		return "webp"
	}
	return "jpeg"
}
