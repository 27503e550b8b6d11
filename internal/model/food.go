package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// UnknownLiteral is how an unknown nutrient value is rendered on the wire.
const UnknownLiteral = "Unknown"

// Nutrient is a per-100g nutrient amount that is either known or unknown.
// The zero value is unknown.
type Nutrient struct {
	value float64
	known bool
}

// Known returns a Nutrient holding v.
func Known(v float64) Nutrient {
	return Nutrient{value: v, known: true}
}

// Unknown returns the unknown sentinel.
func Unknown() Nutrient {
	return Nutrient{}
}

// Value returns the amount and whether it is known.
func (n Nutrient) Value() (float64, bool) {
	return n.value, n.known
}

// IsKnown reports whether the nutrient carries a numeric value.
func (n Nutrient) IsKnown() bool {
	return n.known
}

func (n Nutrient) String() string {
	if !n.known {
		return UnknownLiteral
	}
	return strconv.FormatFloat(n.value, 'f', -1, 64)
}

// MarshalJSON renders a known value as a JSON number and an unknown one as "Unknown".
func (n Nutrient) MarshalJSON() ([]byte, error) {
	if !n.known {
		return json.Marshal(UnknownLiteral)
	}
	return json.Marshal(n.value)
}

// UnmarshalJSON accepts a number, a numeric string, null, or "Unknown".
func (n *Nutrient) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*n = Unknown()
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == UnknownLiteral || s == "" {
			*n = Unknown()
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("nutrient value %q: %w", s, err)
		}
		*n = Known(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("nutrient value: %w", err)
	}
	*n = Known(v)
	return nil
}

// NutrientRecord holds the four tracked nutrients for one food label.
type NutrientRecord struct {
	Calories Nutrient `json:"calories"`
	Protein  Nutrient `json:"protein"`
	Carbs    Nutrient `json:"carbs"`
	Fat      Nutrient `json:"fat"`
}

// UnknownRecord returns a record with every field set to the unknown sentinel.
func UnknownRecord() NutrientRecord {
	return NutrientRecord{}
}

// AllUnknown reports whether no field carries a value.
func (r NutrientRecord) AllUnknown() bool {
	return !r.Calories.known && !r.Protein.known && !r.Carbs.known && !r.Fat.known
}

// Detection is a single labeled object returned by the detection service.
type Detection struct {
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	Box        []float64 `json:"box,omitempty"`
}

// Frame groups the detections returned for one inference pass.
type Frame struct {
	Detections []Detection `json:"detections"`
}

// DetectionSet is the set of unique food labels found in one image.
type DetectionSet map[string]struct{}

// Add inserts label into the set.
func (s DetectionSet) Add(label string) {
	s[label] = struct{}{}
}

// Has reports whether label is in the set.
func (s DetectionSet) Has(label string) bool {
	_, ok := s[label]
	return ok
}

// EnrichmentResult is the outcome of a finished job.
type EnrichmentResult struct {
	FoodsDetected []string                  `json:"foods_detected"`
	NutritionInfo map[string]NutrientRecord `json:"nutrition_info"`
}
