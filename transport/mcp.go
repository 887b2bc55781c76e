package transport

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"mealwise"
	"mealwise/tools"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"
	"github.com/gin-gonic/gin"
	"github.com/modelcontextprotocol/go-sdk/jsonschema"
)

type toolInfo struct {
	Name         string             `json:"name"`
	Title        string             `json:"title"`
	Description  string             `json:"description"`
	InputSchema  *jsonschema.Schema `json:"inputSchema"`
	OutputSchema *jsonschema.Schema `json:"outputSchema,omitempty"`
}

func listTools(registry *tools.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		all := registry.GetTools()
		out := make([]toolInfo, 0, len(all))
		for _, t := range all {
			out = append(out, toolInfo{
				Name:         t.Name(),
				Title:        t.Title(),
				Description:  t.Description(),
				InputSchema:  t.InputSchema(),
				OutputSchema: t.OutputSchema(),
			})
		}
		c.JSON(http.StatusOK, gin.H{"tools": out})
	}
}

// callTool decodes an MCP tools/call request and dispatches it to the
// registry. The tool output is returned as a single JSON text content block.
func callTool(registry *tools.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		var request protocol.CallToolRequest
		if err := json.NewDecoder(c.Request.Body).Decode(&request); err != nil {
			respondError(c, http.StatusBadRequest, "invalid JSON", err)
			return
		}

		out, err := registry.Run(c.Request.Context(), tools.Call{Name: request.Name, Input: request.Arguments})
		if err != nil {
			respondError(c, mealwise.StatusCode(err), fmt.Sprintf("tool %s failed", request.Name), err)
			return
		}

		result, err := createJSONResponse(out)
		if err != nil {
			respondError(c, http.StatusInternalServerError, "failed to encode tool output", err)
			return
		}
		slog.Info("TRANSPORT: Tool called", "tool", request.Name)
		c.JSON(http.StatusOK, result)
	}
}

func createJSONResponse(data any) (*protocol.CallToolResult, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}
	return &protocol.CallToolResult{
		Content: []protocol.Content{
			protocol.TextContent{
				Type: "text",
				Text: string(b),
			},
		},
	}, nil
}
