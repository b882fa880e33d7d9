package models

import "math"

// Bucket sentinels for rare categorical values. They are part of the trained
// artifact's contract: the serving path must emit the exact same strings the
// model saw during training.
const (
	BrandOther = "BRAND_OTHER"
	StateOther = "STATE_OTHER"
)

// Feature column names shared by the training and serving paths.
const (
	ColCarAge      = "car_age"
	ColKmPerYear   = "km_per_year"
	ColMileage     = "mileage"
	ColEngineSize  = "engine_size"
	ColPower       = "power"
	ColDoors       = "doors"
	ColPlateDigit  = "plate_digit"
	ColBrand       = "brand"
	ColState       = "state"
	ColTransmission = "transmission"
	ColFuel        = "fuel"
	ColSteering    = "steering"
	ColColor       = "color"
	ColVehicleType = "vehicle_type"
	ColCategory    = "category"
	ColGNVKit      = "gnv_kit"
)

// ColumnKind partitions feature columns into the three preprocessing groups.
type ColumnKind string

const (
	KindNumeric     ColumnKind = "numeric"
	KindCategorical ColumnKind = "categorical"
	KindBoolean     ColumnKind = "boolean"
)

// ColumnSpec describes one feature column of the model input.
type ColumnSpec struct {
	Name string
	Kind ColumnKind
}

// Schema is the ordered column list the trained pipeline expects. It is
// persisted with the artifact so the serving stage can rebuild an identical
// input row for any future request.
type Schema []ColumnSpec

// Names returns the column names in schema order.
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, c := range s {
		names[i] = c.Name
	}
	return names
}

// Vocabulary holds the category buckets derived once from the training corpus.
// It must be reused verbatim at prediction time, never recomputed per request.
type Vocabulary struct {
	TopBrands    []string
	CommonStates []string
}

// BucketBrand maps a brand to itself when it is among the top brands of the
// training corpus, otherwise to BrandOther. Empty input stays empty so the
// imputer can handle it.
func (v *Vocabulary) BucketBrand(brand string) string {
	if brand == "" {
		return ""
	}
	for _, b := range v.TopBrands {
		if b == brand {
			return brand
		}
	}
	return BrandOther
}

// BucketState maps a state to itself when it was frequent enough in the
// training corpus, otherwise to StateOther.
func (v *Vocabulary) BucketState(state string) string {
	if state == "" {
		return ""
	}
	for _, s := range v.CommonStates {
		if s == state {
			return state
		}
	}
	return StateOther
}

// FeatureRow is one model-ready record. Missing numerics are NaN and missing
// categoricals are "" — the preprocessor imputes both.
type FeatureRow struct {
	Numeric     map[string]float64
	Categorical map[string]string
	Boolean     map[string]bool
}

// NewFeatureRow returns an empty row with all three groups allocated.
func NewFeatureRow() FeatureRow {
	return FeatureRow{
		Numeric:     make(map[string]float64),
		Categorical: make(map[string]string),
		Boolean:     make(map[string]bool),
	}
}

// NumericOr returns the numeric value for col, or def when absent or NaN.
func (r FeatureRow) NumericOr(col string, def float64) float64 {
	v, ok := r.Numeric[col]
	if !ok || math.IsNaN(v) {
		return def
	}
	return v
}
