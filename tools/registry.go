package tools

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"mealwise"
	"mealwise/summary"
)

// BarcodeAnalyzer runs the barcode branch of the pipeline.
type BarcodeAnalyzer interface {
	AnalyzeBarcode(ctx context.Context, req mealwise.AnalysisRequest) (mealwise.AnalysisResponse, error)
}

// Registry maps tool names to implementations
type Registry map[string]Tool

// NewRegistry builds the meal-log tools over the pipeline, the summary
// views and the meal store.
func NewRegistry(analyzer BarcodeAnalyzer, summaries *summary.Service, store mealwise.MealStore) (*Registry, error) {
	if analyzer == nil || summaries == nil || store == nil {
		return nil, fmt.Errorf("tools: analyzer, summaries and store are required")
	}
	all := []Tool{
		NewAnalyzeBarcode(analyzer),
		NewDailyBalance(summaries),
		NewWeeklySummary(summaries),
		NewWeeklyReflection(summaries),
		NewRecordFeedback(store),
		NewRecentMeals(store),
	}

	registry := make(Registry, len(all))
	for _, t := range all {
		registry[t.Name()] = t
	}
	return &registry, nil
}

// GetTools returns all tools in the registry sorted by name.
func (r *Registry) GetTools() []Tool {
	tools := make([]Tool, 0, len(*r))
	for _, tool := range *r {
		tools = append(tools, tool)
	}
	slices.SortFunc(tools, func(a, b Tool) int { return strings.Compare(a.Name(), b.Name()) })
	return tools
}

// GetTool retrieves a tool by name from the registry
func (r Registry) GetTool(name string) (Tool, error) {
	tool, exists := r[name]
	if !exists {
		return nil, mealwise.NewNotFoundError("tools.get", fmt.Sprintf("tool %q not found in registry", name))
	}
	return tool, nil
}

// Run dispatches a call to the named tool.
func (r Registry) Run(ctx context.Context, call Call) (map[string]any, error) {
	tool, err := r.GetTool(call.Name)
	if err != nil {
		return nil, err
	}
	input := call.Input
	if input == nil {
		input = map[string]any{}
	}
	return tool.Run(ctx, input)
}
