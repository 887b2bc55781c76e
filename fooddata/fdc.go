package fooddata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"mealwise"
)

const defaultFDCAPIKey = "DEMO_KEY"

// FDCClient searches USDA FoodData Central. It is the primary name source.
type FDCClient struct {
	baseURL    string
	apiKey     string
	httpClient mealwise.HTTPClient
}

var _ NameSource = (*FDCClient)(nil)

func NewFDCClient(baseURL, apiKey string, httpClient mealwise.HTTPClient) *FDCClient {
	if apiKey == "" {
		apiKey = defaultFDCAPIKey
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &FDCClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

type fdcNutrient struct {
	NutrientName string  `json:"nutrientName"`
	UnitName     string  `json:"unitName"`
	Value        float64 `json:"value"`
}

type fdcFood struct {
	FDCID           int           `json:"fdcId"`
	Description     string        `json:"description"`
	DataType        string        `json:"dataType"`
	ServingSize     float64       `json:"servingSize"`
	ServingSizeUnit string        `json:"servingSizeUnit"`
	FoodNutrients   []fdcNutrient `json:"foodNutrients"`
}

type fdcSearchResponse struct {
	TotalHits int       `json:"totalHits"`
	Foods     []fdcFood `json:"foods"`
}

// LookupByName returns the first-ranked search hit. Values are per 100 g.
func (c *FDCClient) LookupByName(ctx context.Context, name string) (mealwise.NutritionEstimate, error) {
	q := url.Values{}
	q.Set("query", name)
	q.Set("pageSize", "1")
	q.Set("api_key", c.apiKey)
	endpoint := c.baseURL + "/foods/search?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return mealwise.NutritionEstimate{}, mealwise.NewProviderError("fdc.search", "build request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return mealwise.NutritionEstimate{}, mealwise.NewProviderError("fdc.search", "request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return mealwise.NutritionEstimate{}, mealwise.NewNotFoundError("fdc.search", name)
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized:
		slog.Warn("FDC: Authentication failed, check FDC_API_KEY", "status", resp.StatusCode)
		return mealwise.NutritionEstimate{}, mealwise.NewProviderError("fdc.search", resp.Status, nil)
	case resp.StatusCode != http.StatusOK:
		return mealwise.NutritionEstimate{}, mealwise.NewProviderError("fdc.search", resp.Status, nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return mealwise.NutritionEstimate{}, mealwise.NewProviderError("fdc.search", "read body", err)
	}

	var sr fdcSearchResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return mealwise.NutritionEstimate{}, mealwise.NewProviderError("fdc.search", "decode body", err)
	}
	if len(sr.Foods) == 0 {
		slog.Info("FDC: No results", "name", name)
		return mealwise.NutritionEstimate{}, mealwise.NewNotFoundError("fdc.search", name)
	}

	rec := extractFDC(sr.Foods[0])
	if rec.empty() {
		return mealwise.NutritionEstimate{}, mealwise.NewNotFoundError("fdc.search", fmt.Sprintf("%s: no nutrients", name))
	}
	slog.Info("FDC: Found nutrition data", "name", name, "match", rec.name, "data_type", sr.Foods[0].DataType)
	return rec.estimate(mealwise.SourcePrimary, primaryBand), nil
}

// extractFDC maps FDC nutrient names onto a record. Energy reported in kJ is
// converted to kcal unless a kcal value is also present.
func extractFDC(f fdcFood) record {
	rec := record{name: f.Description, perGrams: 100, serving: "100 g"}
	var haveKcal, haveFat bool

	for _, n := range f.FoodNutrients {
		name := strings.ToLower(n.NutrientName)
		unit := strings.ToLower(n.UnitName)
		v := round1(n.Value)

		switch {
		case strings.Contains(name, "energy") || strings.Contains(name, "calor"):
			if strings.Contains(unit, "kj") {
				if !haveKcal {
					rec.calories = round1(n.Value / 4.184)
				}
				continue
			}
			rec.calories = v
			haveKcal = true
		case strings.Contains(name, "protein"):
			rec.protein = v
		case strings.Contains(name, "carbohydrate"):
			rec.carbs = v
		case strings.Contains(name, "total lipid"):
			rec.fat = v
			haveFat = true
		case strings.Contains(name, "fiber"):
			rec.fiber = &v
		case strings.Contains(name, "sugar"):
			rec.sugars = &v
		case strings.Contains(name, "sodium"):
			rec.sodiumMg = &v
		case strings.Contains(name, "fat") && !strings.Contains(name, "fatty") && !haveFat:
			rec.fat = v
		}
	}
	return rec
}
