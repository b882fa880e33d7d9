package models

import (
	"encoding/json"
	"fmt"
)

// PredictionRequest is one listing's feature values as submitted to the API.
// The wire format is a flat JSON object: the known numeric and categorical
// fields below, plus any number of boolean amenity flags under their raw
// option names (e.g. "bancos_de_couro": true). Unknown boolean keys are
// collected into Flags; unknown non-boolean keys are ignored.
type PredictionRequest struct {
	Year       float64
	Mileage    *float64
	EngineSize *float64
	Power      *float64
	Doors      *float64
	PlateDigit *float64

	Brand        string
	State        string
	Transmission *string
	Fuel         *string
	Color        *string
	Steering     *string
	VehicleType  *string
	Category     *string
	GNVKit       *string

	Flags map[string]bool

	hasYear bool
}

// PredictionResponse carries the predicted price in original currency units
// together with the underlying log-scale prediction.
type PredictionResponse struct {
	PredictedPrice    float64 `json:"predicted_price"`
	PredictedPriceLog float64 `json:"predicted_price_log"`
	Currency          string  `json:"currency"`
}

// Validate checks the required request fields: year, brand and state.
func (r *PredictionRequest) Validate() error {
	if !r.hasYear {
		return fmt.Errorf("missing required field: year")
	}
	if r.Brand == "" {
		return fmt.Errorf("missing required field: brand")
	}
	if r.State == "" {
		return fmt.Errorf("missing required field: state")
	}
	return nil
}

// UnmarshalJSON implements the flat request format described above.
func (r *PredictionRequest) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	r.Flags = make(map[string]bool)

	for key, val := range raw {
		switch key {
		case "year":
			if err := json.Unmarshal(val, &r.Year); err != nil {
				return fmt.Errorf("field year: %w", err)
			}
			r.hasYear = true
		case "mileage":
			if err := unmarshalOptFloat(val, &r.Mileage); err != nil {
				return fmt.Errorf("field mileage: %w", err)
			}
		case "engine_size":
			if err := unmarshalOptFloat(val, &r.EngineSize); err != nil {
				return fmt.Errorf("field engine_size: %w", err)
			}
		case "power":
			if err := unmarshalOptFloat(val, &r.Power); err != nil {
				return fmt.Errorf("field power: %w", err)
			}
		case "doors":
			if err := unmarshalOptFloat(val, &r.Doors); err != nil {
				return fmt.Errorf("field doors: %w", err)
			}
		case "plate_digit":
			if err := unmarshalOptFloat(val, &r.PlateDigit); err != nil {
				return fmt.Errorf("field plate_digit: %w", err)
			}
		case "brand":
			if err := json.Unmarshal(val, &r.Brand); err != nil {
				return fmt.Errorf("field brand: %w", err)
			}
		case "state":
			if err := json.Unmarshal(val, &r.State); err != nil {
				return fmt.Errorf("field state: %w", err)
			}
		case "transmission":
			if err := unmarshalOptString(val, &r.Transmission); err != nil {
				return fmt.Errorf("field transmission: %w", err)
			}
		case "fuel":
			if err := unmarshalOptString(val, &r.Fuel); err != nil {
				return fmt.Errorf("field fuel: %w", err)
			}
		case "color":
			if err := unmarshalOptString(val, &r.Color); err != nil {
				return fmt.Errorf("field color: %w", err)
			}
		case "steering":
			if err := unmarshalOptString(val, &r.Steering); err != nil {
				return fmt.Errorf("field steering: %w", err)
			}
		case "vehicle_type":
			if err := unmarshalOptString(val, &r.VehicleType); err != nil {
				return fmt.Errorf("field vehicle_type: %w", err)
			}
		case "category":
			if err := unmarshalOptString(val, &r.Category); err != nil {
				return fmt.Errorf("field category: %w", err)
			}
		case "gnv_kit":
			if err := unmarshalOptString(val, &r.GNVKit); err != nil {
				return fmt.Errorf("field gnv_kit: %w", err)
			}
		default:
			var b bool
			if err := json.Unmarshal(val, &b); err == nil {
				r.Flags[key] = b
			}
			// Non-boolean unknown keys are silently dropped: the model fills
			// defaults for anything the request does not supply.
		}
	}

	return nil
}

func unmarshalOptFloat(data json.RawMessage, dst **float64) error {
	if string(data) == "null" {
		*dst = nil
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*dst = &f
	return nil
}

func unmarshalOptString(data json.RawMessage, dst **string) error {
	if string(data) == "null" {
		*dst = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*dst = &s
	return nil
}
