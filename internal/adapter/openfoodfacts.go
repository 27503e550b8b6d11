package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/amishk599/nutrilens/internal/model"
)

const (
	openFoodFactsBaseURL  = "https://world.openfoodfacts.org"
	openFoodFactsPageSize = 10
)

// Per-100g nutriment keys used by OpenFoodFacts.
const (
	offEnergyKcal = "energy-kcal_100g"
	offProteins   = "proteins_100g"
	offCarbs      = "carbohydrates_100g"
	offFat        = "fat_100g"
)

// offSearchResponse is the top-level OpenFoodFacts search response.
type offSearchResponse struct {
	Count    int          `json:"count"`
	Products []offProduct `json:"products"`
}

type offProduct struct {
	Code        string         `json:"code"`
	ProductName string         `json:"product_name"`
	Nutriments  map[string]any `json:"nutriments"`

	// top holds every top-level product key. Some search results carry the
	// per-100g values there instead of under nutriments.
	top map[string]any
}

func (p *offProduct) UnmarshalJSON(data []byte) error {
	type plain offProduct
	if err := json.Unmarshal(data, (*plain)(p)); err != nil {
		return err
	}
	return json.Unmarshal(data, &p.top)
}

// values returns the map the product reports calories in, preferring nutriments.
func (p offProduct) values() map[string]any {
	if _, ok := nutrimentValue(p.Nutriments, offEnergyKcal); ok {
		return p.Nutriments
	}
	return p.top
}

// OpenFoodFactsAdapter queries the OpenFoodFacts product search.
type OpenFoodFactsAdapter struct {
	baseURL  string
	pageSize int
	client   *http.Client
}

// NewOpenFoodFactsAdapter creates an adapter for the OpenFoodFacts search endpoint.
// An empty baseURL selects the public instance; pageSize <= 0 selects 10.
func NewOpenFoodFactsAdapter(baseURL string, pageSize int, client *http.Client) *OpenFoodFactsAdapter {
	if baseURL == "" {
		baseURL = openFoodFactsBaseURL
	}
	if pageSize <= 0 {
		pageSize = openFoodFactsPageSize
	}
	return &OpenFoodFactsAdapter{
		baseURL:  strings.TrimRight(baseURL, "/"),
		pageSize: pageSize,
		client:   client,
	}
}

// Name identifies the source in logs.
func (a *OpenFoodFactsAdapter) Name() string { return "openfoodfacts" }

// Lookup searches products for label and returns the nutrients of the first
// product that reports calories per 100g. Returns nil when none qualify.
func (a *OpenFoodFactsAdapter) Lookup(ctx context.Context, label string) (*model.NutrientRecord, error) {
	params := url.Values{}
	params.Set("search_terms", label)
	params.Set("search_simple", "1")
	params.Set("action", "process")
	params.Set("json", "1")
	params.Set("page_size", strconv.Itoa(a.pageSize))
	endpoint := a.baseURL + "/cgi/search.pl?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("openfoodfacts search for %q: %w", label, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openfoodfacts search for %q: %w", label, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, fmt.Errorf("openfoodfacts search for %q: %w", label, err)
	}

	var offResp offSearchResponse
	if err := decodeJSON(resp.Body, &offResp); err != nil {
		return nil, fmt.Errorf("openfoodfacts search for %q: %w", label, err)
	}

	for _, p := range offResp.Products {
		values := p.values()
		if _, ok := nutrimentValue(values, offEnergyKcal); !ok {
			continue
		}
		rec := model.NutrientRecord{
			Calories: nutriment(values, offEnergyKcal),
			Protein:  nutriment(values, offProteins),
			Carbs:    nutriment(values, offCarbs),
			Fat:      nutriment(values, offFat),
		}
		return &rec, nil
	}
	return nil, nil
}

func nutriment(m map[string]any, key string) model.Nutrient {
	if v, ok := nutrimentValue(m, key); ok {
		return model.Known(v)
	}
	return model.Unknown()
}

// nutrimentValue reads a numeric nutriment. OpenFoodFacts sometimes quotes numbers.
func nutrimentValue(m map[string]any, key string) (float64, bool) {
	raw, ok := m[key]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
