package ollama

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"mealwise/provider"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockHTTPClient implements the HTTPClient interface for testing
type mockHTTPClient struct {
	response *http.Response
	err      error
	body     []byte
	url      string
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	m.url = req.URL.String()
	if req.Body != nil {
		m.body, _ = io.ReadAll(req.Body)
	}
	return m.response, m.err
}

// createMockResponse creates a mock HTTP response
func createMockResponse(statusCode int, body string) *http.Response {
	return &http.Response{
		StatusCode: statusCode,
		Status:     http.StatusText(statusCode),
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func TestNewClient(t *testing.T) {
	t.Run("valid client creation", func(t *testing.T) {
		c, err := NewClient(ClientOpts{BaseEndpoint: "http://localhost:11434/", ModelID: "llava", HTTPClient: &mockHTTPClient{}})
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:11434/api/chat", c.endpoint)
		assert.Equal(t, "llava", c.model)
		assert.Equal(t, 16384, c.options.NumCtx)
	})

	t.Run("missing model", func(t *testing.T) {
		_, err := NewClient(ClientOpts{BaseEndpoint: "http://localhost:11434"})
		assert.Error(t, err)
	})
}

func TestClient_Generate(t *testing.T) {
	tests := []struct {
		name     string
		response *http.Response
		httpErr  error
		want     string
		wantErr  string
	}{
		{
			name:     "returns message content",
			response: createMockResponse(http.StatusOK, `{"message":{"role":"assistant","content":"{\"foods\":[]}"}}`),
			want:     `{"foods":[]}`,
		},
		{
			name:     "non-200 status",
			response: createMockResponse(http.StatusInternalServerError, "boom"),
			wantErr:  "boom",
		},
		{
			name:     "undecodable body returned raw",
			response: createMockResponse(http.StatusOK, "not json"),
			want:     "not json",
		},
		{
			name:    "transport error",
			httpErr: assert.AnError,
			wantErr: assert.AnError.Error(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hc := &mockHTTPClient{response: tt.response, err: tt.httpErr}
			c, err := NewClient(ClientOpts{BaseEndpoint: "http://ollama", ModelID: "llava", HTTPClient: hc})
			require.NoError(t, err)

			got, err := c.Generate(context.Background(), provider.Request{Prompt: "hi"})
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClient_GenerateWireRequest(t *testing.T) {
	hc := &mockHTTPClient{response: createMockResponse(http.StatusOK, `{"message":{"content":"{}"}}`)}
	c, err := NewClient(ClientOpts{BaseEndpoint: "http://ollama", ModelID: "llava", HTTPClient: hc})
	require.NoError(t, err)

	img := []byte{0xff, 0xd8, 0xff}
	_, err = c.Generate(context.Background(), provider.Request{
		System: "You identify food.",
		Prompt: "What is this?",
		Image:  img,
		Schema: &jsonschema.Schema{Type: "object"},
	})
	require.NoError(t, err)

	var sent struct {
		Model    string          `json:"model"`
		Stream   bool            `json:"stream"`
		Format   json.RawMessage `json:"format"`
		Messages []wireMessage   `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(hc.body, &sent))

	assert.Equal(t, "http://ollama/api/chat", hc.url)
	assert.Equal(t, "llava", sent.Model)
	assert.False(t, sent.Stream)
	assert.JSONEq(t, `{"type":"object"}`, string(sent.Format))
	require.Len(t, sent.Messages, 2)
	assert.Equal(t, "system", sent.Messages[0].Role)
	assert.Equal(t, "user", sent.Messages[1].Role)
	assert.Equal(t, []string{base64.StdEncoding.EncodeToString(img)}, sent.Messages[1].Images)
}
