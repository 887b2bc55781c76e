// Package mock provides a deterministic provider.Generator. It is used for
// offline runs of the pipeline and as a scripted fake in tests.
package mock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"mealwise/provider"
)

// Responses keyed by provider.Request.SchemaName. The empty key is the
// answer for unstructured requests.
var defaultResponses = map[string]string{
	"vision_result":   `{"foods":[{"name":"grilled chicken breast","portion":"150g","confidence":"high"},{"name":"brown rice","portion":"medium","confidence":"medium"},{"name":"steamed broccoli","portion":"small","confidence":"high"}],"barcode_detected":null,"image_ambiguity":"low"}`,
	"wellness_result": `{"message":"This plate brings together protein, grains and greens, a steady mix for the afternoon ahead.","suggestions":["A glass of water alongside could feel refreshing","Fruit later on would round out the day nicely"],"emoji_indicator":"🟢"}`,
	"":                "Meal noted.",
}

// LLMClient answers from a response table and records every request.
type LLMClient struct {
	mu        sync.Mutex
	responses map[string]string
	errs      map[string]error
	calls     []provider.Request
}

var _ provider.Generator = (*LLMClient)(nil)

func NewLLMClient() *LLMClient {
	responses := make(map[string]string, len(defaultResponses))
	for k, v := range defaultResponses {
		responses[k] = v
	}
	return &LLMClient{responses: responses, errs: map[string]error{}}
}

// WithResponse overrides the answer for a schema name.
func (m *LLMClient) WithResponse(schemaName, body string) *LLMClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[schemaName] = body
	delete(m.errs, schemaName)
	return m
}

// WithError makes requests for a schema name fail with err.
func (m *LLMClient) WithError(schemaName string, err error) *LLMClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[schemaName] = err
	return m
}

func (m *LLMClient) Generate(ctx context.Context, req provider.Request) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	err, failing := m.errs[req.SchemaName]
	body, ok := m.responses[req.SchemaName]
	m.mu.Unlock()

	slog.Info("LLM_CLIENT: Invoked", "provider", "mock", "schema", req.SchemaName)

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if failing {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("mock: no response for %q", req.SchemaName)
	}
	return body, nil
}

// Calls returns the number of requests seen for a schema name.
func (m *LLMClient) Calls(schemaName string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.SchemaName == schemaName {
			n++
		}
	}
	return n
}

// Requests returns a copy of every request seen so far.
func (m *LLMClient) Requests() []provider.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]provider.Request(nil), m.calls...)
}
