package services

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"olx-price-pipeline/models"
	"olx-price-pipeline/utils"
)

// Vocabulary cutoffs derived from the training corpus.
const (
	topBrandCount       = 20
	stateCountThreshold = 50
	minCarAge           = 0.5
)

// numericFeatureCols and categoricalFeatureCols are the static column-name
// partition shared with the ML preprocessor. Booleans are whatever option
// flags survived cleaning.
var numericFeatureCols = []string{
	models.ColCarAge, models.ColKmPerYear, models.ColMileage,
	models.ColEngineSize, models.ColPower, models.ColDoors, models.ColPlateDigit,
}

var categoricalFeatureCols = []string{
	models.ColBrand, models.ColState, models.ColTransmission, models.ColFuel,
	models.ColSteering, models.ColColor, models.ColVehicleType,
	models.ColCategory, models.ColGNVKit,
}

// FeatureBuilder turns cleaned listings into model-ready feature rows.
// The same derived-feature arithmetic runs at training and at prediction time;
// only the vocabulary source differs (recomputed vs. loaded from the artifact).
type FeatureBuilder struct {
	logger      *utils.Logger
	currentYear int
}

// NewFeatureBuilder creates a FeatureBuilder anchored at currentYear.
func NewFeatureBuilder(logger *utils.Logger, currentYear int) *FeatureBuilder {
	return &FeatureBuilder{logger: logger, currentYear: currentYear}
}

// DerivedFeatures computes car_age and km_per_year for one record.
// car_age is floored at 0.5 so the ratio can never divide by zero or go
// negative; a non-finite ratio collapses to 0.
func DerivedFeatures(year, currentYear int, mileage *float64) (carAge, kmPerYear float64) {
	carAge = float64(currentYear - year)
	if carAge <= 0 {
		carAge = minCarAge
	}

	km := 0.0
	if mileage != nil {
		km = *mileage
	}
	kmPerYear = km / carAge
	if math.IsNaN(kmPerYear) || math.IsInf(kmPerYear, 0) {
		kmPerYear = 0
	}
	return carAge, kmPerYear
}

// LogPrice is the regression target: log(1+price), inverted at prediction
// time with exp(x)-1.
func LogPrice(price float64) float64 {
	return math.Log1p(price)
}

// BuildVocabulary derives the category buckets from a training corpus:
// the 20 most frequent brands and every state appearing at least 50 times.
// Ties in brand frequency break alphabetically so the vocabulary is
// deterministic for a given corpus.
func (b *FeatureBuilder) BuildVocabulary(listings []*models.Listing) *models.Vocabulary {
	brandCounts := make(map[string]int)
	stateCounts := make(map[string]int)
	for _, l := range listings {
		if l.Brand != nil {
			brandCounts[*l.Brand]++
		}
		stateCounts[l.State]++
	}

	brands := make([]string, 0, len(brandCounts))
	for brand := range brandCounts {
		brands = append(brands, brand)
	}
	sort.Slice(brands, func(i, j int) bool {
		if brandCounts[brands[i]] != brandCounts[brands[j]] {
			return brandCounts[brands[i]] > brandCounts[brands[j]]
		}
		return brands[i] < brands[j]
	})
	if len(brands) > topBrandCount {
		brands = brands[:topBrandCount]
	}

	var states []string
	for state, n := range stateCounts {
		if n >= stateCountThreshold {
			states = append(states, state)
		}
	}
	sort.Strings(states)

	b.logger.Info("[features] Vocabulary: %d top brands, %d common states",
		len(brands), len(states))
	return &models.Vocabulary{TopBrands: brands, CommonStates: states}
}

// Schema returns the ordered model input columns for the given corpus:
// the static numeric and categorical partitions followed by the sorted
// surviving option flags.
func (b *FeatureBuilder) Schema(listings []*models.Listing) models.Schema {
	flags := make(map[string]struct{})
	for _, l := range listings {
		for name := range l.Options {
			flags[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(flags))
	for name := range flags {
		names = append(names, name)
	}
	sort.Strings(names)

	schema := make(models.Schema, 0, len(numericFeatureCols)+len(categoricalFeatureCols)+len(names))
	for _, col := range numericFeatureCols {
		schema = append(schema, models.ColumnSpec{Name: col, Kind: models.KindNumeric})
	}
	for _, col := range categoricalFeatureCols {
		schema = append(schema, models.ColumnSpec{Name: col, Kind: models.KindCategorical})
	}
	for _, name := range names {
		schema = append(schema, models.ColumnSpec{Name: name, Kind: models.KindBoolean})
	}
	return schema
}

// BuildMatrix produces the production feature rows and the log-price target
// for the given corpus, bucketing categories through vocab. Leakage columns
// (price, url, title, model, city, neighborhood, year) never enter the rows.
func (b *FeatureBuilder) BuildMatrix(listings []*models.Listing, vocab *models.Vocabulary) ([]models.FeatureRow, []float64, models.Schema, error) {
	if err := b.validateCorpus(listings); err != nil {
		return nil, nil, nil, err
	}

	schema := b.Schema(listings)
	rows := make([]models.FeatureRow, 0, len(listings))
	target := make([]float64, 0, len(listings))

	for _, l := range listings {
		rows = append(rows, b.BuildRow(l, vocab, schema))
		target = append(target, LogPrice(l.Price))
	}

	b.logger.Info("[features] Built %d rows × %d columns", len(rows), len(schema))
	return rows, target, schema, nil
}

// BuildRow maps one cleaned listing onto the schema. Shared with the serving
// path, which calls it with the artifact's persisted vocabulary and schema.
func (b *FeatureBuilder) BuildRow(l *models.Listing, vocab *models.Vocabulary, schema models.Schema) models.FeatureRow {
	row := models.NewFeatureRow()

	carAge, kmPerYear := DerivedFeatures(l.Year, b.currentYear, l.Mileage)
	row.Numeric[models.ColCarAge] = carAge
	row.Numeric[models.ColKmPerYear] = kmPerYear
	row.Numeric[models.ColMileage] = derefOr(l.Mileage, 0)
	row.Numeric[models.ColEngineSize] = derefOr(l.EngineSize, math.NaN())
	row.Numeric[models.ColPower] = derefOr(l.Power, math.NaN())
	row.Numeric[models.ColPlateDigit] = derefOr(l.PlateDigit, math.NaN())
	if l.Doors != nil {
		row.Numeric[models.ColDoors] = float64(*l.Doors)
	} else {
		row.Numeric[models.ColDoors] = math.NaN()
	}

	row.Categorical[models.ColBrand] = vocab.BucketBrand(derefStr(l.Brand))
	row.Categorical[models.ColState] = vocab.BucketState(l.State)
	row.Categorical[models.ColTransmission] = derefStr(l.Transmission)
	row.Categorical[models.ColFuel] = derefStr(l.Fuel)
	row.Categorical[models.ColSteering] = derefStr(l.Steering)
	row.Categorical[models.ColColor] = derefStr(l.Color)
	row.Categorical[models.ColVehicleType] = derefStr(l.VehicleType)
	row.Categorical[models.ColCategory] = derefStr(l.Category)
	row.Categorical[models.ColGNVKit] = derefStr(l.GNVKit)

	for _, col := range schema {
		if col.Kind == models.KindBoolean {
			row.Boolean[col.Name] = l.Option(col.Name)
		}
	}
	return row
}

// v1FlagCols are the five option flags of the minimal exploratory feature set.
var v1FlagCols = []string{
	"bancos_de_couro", "teto_solar", "tracao_4x4", "blindado", "unico_dono",
}

// BuildV1Table produces the minimal 13-column exploratory feature table as
// CSV-ready records: target, derived numerics, bucketed categoricals and the
// five luxury flags.
func (b *FeatureBuilder) BuildV1Table(listings []*models.Listing, vocab *models.Vocabulary) ([]string, [][]string, error) {
	if err := b.validateCorpus(listings); err != nil {
		return nil, nil, err
	}

	header := []string{
		"log_price", models.ColCarAge, models.ColKmPerYear, models.ColEngineSize,
		models.ColBrand, models.ColState, models.ColTransmission, models.ColFuel,
	}
	header = append(header, v1FlagCols...)

	records := make([][]string, 0, len(listings))
	for _, l := range listings {
		carAge, kmPerYear := DerivedFeatures(l.Year, b.currentYear, l.Mileage)

		rec := []string{
			formatFloat(LogPrice(l.Price)),
			formatFloat(carAge),
			formatFloat(kmPerYear),
			formatOptFloat(l.EngineSize),
			vocab.BucketBrand(derefStr(l.Brand)),
			vocab.BucketState(l.State),
			derefStr(l.Transmission),
			derefStr(l.Fuel),
		}
		for _, flag := range v1FlagCols {
			rec = append(rec, strconv.FormatBool(l.Option(flag)))
		}
		records = append(records, rec)
	}

	b.logger.Info("[features] V1 feature table: %d rows × %d columns", len(records), len(header))
	return header, records, nil
}

// validateCorpus enforces the stage's fatal preconditions: a non-empty table
// with the required source columns populated somewhere in the corpus.
// Price, year and state are guaranteed per-row by the cleaning invariant;
// brand is required at corpus level.
func (b *FeatureBuilder) validateCorpus(listings []*models.Listing) error {
	if len(listings) == 0 {
		return fmt.Errorf("feature derivation: %w", ErrEmptyDataset)
	}
	for _, l := range listings {
		if l.Brand != nil {
			return nil
		}
	}
	return fmt.Errorf("feature derivation: required column brand is entirely missing")
}

func derefOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func derefStr(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func formatOptFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}
