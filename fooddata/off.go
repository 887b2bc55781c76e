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

// OFFClient queries Open Food Facts. It is the fallback source for names and
// the only source for barcodes.
type OFFClient struct {
	baseURL    string
	userAgent  string
	httpClient mealwise.HTTPClient
}

var _ FallbackSource = (*OFFClient)(nil)

func NewOFFClient(baseURL string, httpClient mealwise.HTTPClient) *OFFClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OFFClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  "mealwise/1.0",
		httpClient: httpClient,
	}
}

// offNutriments holds the subset of OFF nutriment keys we read. Sodium is reported in grams.
type offNutriments struct {
	EnergyKcal100g    *float64 `json:"energy-kcal_100g"`
	EnergyKcalServing *float64 `json:"energy-kcal_serving"`
	Energy100g        *float64 `json:"energy_100g"`
	Proteins100g      *float64 `json:"proteins_100g"`
	ProteinsServing   *float64 `json:"proteins_serving"`
	Carbs100g         *float64 `json:"carbohydrates_100g"`
	CarbsServing      *float64 `json:"carbohydrates_serving"`
	Fat100g           *float64 `json:"fat_100g"`
	FatServing        *float64 `json:"fat_serving"`
	Fiber100g         *float64 `json:"fiber_100g"`
	FiberServing      *float64 `json:"fiber_serving"`
	Sugars100g        *float64 `json:"sugars_100g"`
	SugarsServing     *float64 `json:"sugars_serving"`
	Sodium100g        *float64 `json:"sodium_100g"`
	SodiumServing     *float64 `json:"sodium_serving"`
}

type offProduct struct {
	Code        string        `json:"code"`
	ProductName string        `json:"product_name"`
	Brands      string        `json:"brands"`
	ServingSize string        `json:"serving_size"`
	Nutriments  offNutriments `json:"nutriments"`
}

type offProductResponse struct {
	Status  int        `json:"status"`
	Product offProduct `json:"product"`
}

type offSearchResponse struct {
	Count    int          `json:"count"`
	Products []offProduct `json:"products"`
}

// LookupByName returns the first search hit, per 100 g.
func (c *OFFClient) LookupByName(ctx context.Context, name string) (mealwise.NutritionEstimate, error) {
	q := url.Values{}
	q.Set("search_terms", name)
	q.Set("search_simple", "1")
	q.Set("action", "process")
	q.Set("json", "1")
	q.Set("page_size", "1")

	var sr offSearchResponse
	if err := c.get(ctx, "off.search", c.baseURL+"/cgi/search.pl?"+q.Encode(), &sr); err != nil {
		return mealwise.NutritionEstimate{}, err
	}
	if len(sr.Products) == 0 {
		return mealwise.NutritionEstimate{}, mealwise.NewNotFoundError("off.search", name)
	}

	rec := extractOFF(sr.Products[0], false)
	if rec.empty() {
		return mealwise.NutritionEstimate{}, mealwise.NewNotFoundError("off.search", fmt.Sprintf("%s: no nutrients", name))
	}
	slog.Info("OFF: Found nutrition data", "name", name, "match", rec.name)
	return rec.estimate(mealwise.SourceFallback, fallbackBand), nil
}

// LookupByBarcode fetches one product. Per-serving values are preferred when
// the product declares them.
func (c *OFFClient) LookupByBarcode(ctx context.Context, code string) (mealwise.NutritionEstimate, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return mealwise.NutritionEstimate{}, mealwise.NewNotFoundError("off.product", "empty barcode")
	}

	var pr offProductResponse
	endpoint := c.baseURL + "/api/v0/product/" + url.PathEscape(code) + ".json"
	if err := c.get(ctx, "off.product", endpoint, &pr); err != nil {
		return mealwise.NutritionEstimate{}, err
	}
	if pr.Status != 1 {
		return mealwise.NutritionEstimate{}, mealwise.NewNotFoundError("off.product", code)
	}

	rec := extractOFF(pr.Product, true)
	if rec.empty() {
		return mealwise.NutritionEstimate{}, mealwise.NewNotFoundError("off.product", fmt.Sprintf("%s: no nutrients", code))
	}
	slog.Info("OFF: Found product", "barcode", code, "name", rec.name)
	return rec.estimate(mealwise.SourceFallback, fallbackBand), nil
}

func (c *OFFClient) get(ctx context.Context, op, endpoint string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return mealwise.NewProviderError(op, "build request", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return mealwise.NewProviderError(op, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return mealwise.NewNotFoundError(op, endpoint)
	}
	if resp.StatusCode != http.StatusOK {
		return mealwise.NewProviderError(op, resp.Status, nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return mealwise.NewProviderError(op, "read body", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return mealwise.NewProviderError(op, "decode body", err)
	}
	return nil
}

func extractOFF(p offProduct, preferServing bool) record {
	n := p.Nutriments
	name := strings.TrimSpace(p.ProductName)
	if name == "" {
		name = p.Code
	}

	if preferServing && n.EnergyKcalServing != nil {
		return record{
			name:     name,
			calories: round1(deref(n.EnergyKcalServing)),
			protein:  round1(deref(n.ProteinsServing)),
			carbs:    round1(deref(n.CarbsServing)),
			fat:      round1(deref(n.FatServing)),
			fiber:    roundPtr(n.FiberServing, 1),
			sugars:   roundPtr(n.SugarsServing, 1),
			sodiumMg: roundPtr(n.SodiumServing, 1000),
			serving:  p.ServingSize,
		}
	}

	kcal := deref(n.EnergyKcal100g)
	if n.EnergyKcal100g == nil && n.Energy100g != nil {
		kcal = *n.Energy100g / 4.184
	}
	return record{
		name:     name,
		calories: round1(kcal),
		protein:  round1(deref(n.Proteins100g)),
		carbs:    round1(deref(n.Carbs100g)),
		fat:      round1(deref(n.Fat100g)),
		fiber:    roundPtr(n.Fiber100g, 1),
		sugars:   roundPtr(n.Sugars100g, 1),
		sodiumMg: roundPtr(n.Sodium100g, 1000),
		serving:  "100 g",
		perGrams: 100,
	}
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func roundPtr(v *float64, mul float64) *float64 {
	if v == nil {
		return nil
	}
	r := round1(*v * mul)
	return &r
}
