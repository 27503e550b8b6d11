package adapter

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/amishk599/nutrilens/internal/model"
)

const usdaBaseURL = "https://api.nal.usda.gov/fdc/v1"

// FoodData Central nutrient numbers. Search results report them either as
// nutrientId (legacy) or as nutrientNumber next to the newer 1xxx ids.
const (
	usdaEnergy  = 208
	usdaProtein = 203
	usdaCarbs   = 205
	usdaFat     = 204
)

// usdaSearchResponse is the FoodData Central foods/search response.
type usdaSearchResponse struct {
	TotalHits int        `json:"totalHits"`
	Foods     []usdaFood `json:"foods"`
}

type usdaFood struct {
	FdcID         int64              `json:"fdcId"`
	Description   string             `json:"description"`
	FoodNutrients []usdaFoodNutrient `json:"foodNutrients"`
}

type usdaFoodNutrient struct {
	NutrientID     int      `json:"nutrientId"`
	NutrientNumber string   `json:"nutrientNumber"`
	NutrientName   string   `json:"nutrientName"`
	UnitName       string   `json:"unitName"`
	Value          *float64 `json:"value"`
}

// USDAAdapter queries the USDA FoodData Central keyword search.
type USDAAdapter struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewUSDAAdapter creates an adapter for FoodData Central. An empty baseURL
// selects the public API.
func NewUSDAAdapter(baseURL, apiKey string, client *http.Client) *USDAAdapter {
	if baseURL == "" {
		baseURL = usdaBaseURL
	}
	return &USDAAdapter{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  client,
	}
}

// Name identifies the source in logs.
func (a *USDAAdapter) Name() string { return "usda" }

// Lookup searches foods for label and maps the first hit's nutrients.
// Returns nil when the search has no foods.
func (a *USDAAdapter) Lookup(ctx context.Context, label string) (*model.NutrientRecord, error) {
	params := url.Values{}
	params.Set("query", label)
	params.Set("api_key", a.apiKey)
	params.Set("pageSize", "1")
	endpoint := a.baseURL + "/foods/search?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("usda search for %q: %w", label, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("usda search for %q: %w", label, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, fmt.Errorf("usda search for %q: %w", label, err)
	}

	var usdaResp usdaSearchResponse
	if err := decodeJSON(resp.Body, &usdaResp); err != nil {
		return nil, fmt.Errorf("usda search for %q: %w", label, err)
	}
	if len(usdaResp.Foods) == 0 {
		return nil, nil
	}

	nutrients := usdaResp.Foods[0].FoodNutrients
	rec := model.NutrientRecord{
		Calories: findNutrient(nutrients, usdaEnergy),
		Protein:  findNutrient(nutrients, usdaProtein),
		Carbs:    findNutrient(nutrients, usdaCarbs),
		Fat:      findNutrient(nutrients, usdaFat),
	}
	return &rec, nil
}

func findNutrient(nutrients []usdaFoodNutrient, id int) model.Nutrient {
	number := strconv.Itoa(id)
	for _, n := range nutrients {
		if n.Value == nil {
			continue
		}
		if n.NutrientID == id || n.NutrientNumber == number {
			return model.Known(*n.Value)
		}
	}
	return model.Unknown()
}
