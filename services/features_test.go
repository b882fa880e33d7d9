package services

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"olx-price-pipeline/models"
)

func strp(s string) *string { return &s }

func TestDerivedFeatures(t *testing.T) {
	tests := []struct {
		year        int
		mileage     *float64
		wantAge     float64
		wantKmPerYr float64
	}{
		{2020, fptr(50000), 5, 10000},
		{2018, fptr(40000), 7, 40000.0 / 7},
		{2025, fptr(10000), 0.5, 20000}, // current-year car: age floored
		{2026, fptr(5000), 0.5, 10000},  // next-model-year car
		{2020, nil, 5, 0},               // missing mileage
	}

	for _, tt := range tests {
		age, kmPerYear := DerivedFeatures(tt.year, testYear, tt.mileage)
		if age != tt.wantAge {
			t.Errorf("DerivedFeatures(year=%d) age = %.1f; want %.1f", tt.year, age, tt.wantAge)
		}
		if kmPerYear != tt.wantKmPerYr {
			t.Errorf("DerivedFeatures(year=%d) km_per_year = %.1f; want %.1f", tt.year, kmPerYear, tt.wantKmPerYr)
		}
	}
}

func TestLogPriceRoundTrip(t *testing.T) {
	for _, price := range []float64{1000, 45000, 999999} {
		back := math.Expm1(LogPrice(price))
		if math.Abs(back-price) > 1e-6 {
			t.Errorf("Expm1(LogPrice(%.0f)) = %f; want %.0f", price, back, price)
		}
	}
}

func TestBuildVocabularyBrandOrder(t *testing.T) {
	b := NewFeatureBuilder(newTestLogger(), testYear)

	var listings []*models.Listing
	add := func(brand string, n int) {
		for i := 0; i < n; i++ {
			listings = append(listings, &models.Listing{Brand: strp(brand), State: "SP"})
		}
	}
	add("Volkswagen", 3)
	add("Fiat", 2)
	add("Chevrolet", 2) // ties with Fiat, breaks alphabetically
	add("Renault", 1)

	vocab := b.BuildVocabulary(listings)
	want := []string{"Volkswagen", "Chevrolet", "Fiat", "Renault"}
	if len(vocab.TopBrands) != len(want) {
		t.Fatalf("TopBrands = %v; want %v", vocab.TopBrands, want)
	}
	for i, brand := range want {
		if vocab.TopBrands[i] != brand {
			t.Errorf("TopBrands[%d] = %q; want %q", i, vocab.TopBrands[i], brand)
		}
	}
}

func TestBuildVocabularyStateThreshold(t *testing.T) {
	b := NewFeatureBuilder(newTestLogger(), testYear)

	var listings []*models.Listing
	for i := 0; i < 50; i++ {
		listings = append(listings, &models.Listing{Brand: strp("Fiat"), State: "SP"})
	}
	for i := 0; i < 49; i++ {
		listings = append(listings, &models.Listing{Brand: strp("Fiat"), State: "RJ"})
	}

	vocab := b.BuildVocabulary(listings)
	if len(vocab.CommonStates) != 1 || vocab.CommonStates[0] != "SP" {
		t.Fatalf("CommonStates = %v; want [SP] — threshold is a closed bound at 50", vocab.CommonStates)
	}

	if got := vocab.BucketState("RJ"); got != models.StateOther {
		t.Errorf("BucketState(RJ) = %q; want %q", got, models.StateOther)
	}
	if got := vocab.BucketState("SP"); got != "SP" {
		t.Errorf("BucketState(SP) = %q; want SP", got)
	}
}

func TestBuildRowBucketsRareBrand(t *testing.T) {
	b := NewFeatureBuilder(newTestLogger(), testYear)
	vocab := &models.Vocabulary{TopBrands: []string{"Fiat"}, CommonStates: []string{"SP"}}

	l := &models.Listing{
		Year:  2020,
		Brand: strp("Lamborghini"),
		State: "AC",
	}
	schema := b.Schema([]*models.Listing{l})
	row := b.BuildRow(l, vocab, schema)

	if got := row.Categorical[models.ColBrand]; got != models.BrandOther {
		t.Errorf("brand = %q; want %q", got, models.BrandOther)
	}
	if got := row.Categorical[models.ColState]; got != models.StateOther {
		t.Errorf("state = %q; want %q", got, models.StateOther)
	}
}

func TestBuildRowExcludesLeakageColumns(t *testing.T) {
	b := NewFeatureBuilder(newTestLogger(), testYear)
	l := &models.Listing{
		Year: 2018, Price: 45000, Brand: strp("Fiat"), State: "SP",
		Model: strp("Uno"), City: strp("campinas"),
	}
	schema := b.Schema([]*models.Listing{l})

	for _, banned := range []string{"price", "log_price", "url", "title", "model", "city", "neighborhood", "year"} {
		for _, col := range schema.Names() {
			if col == banned {
				t.Errorf("schema contains leakage column %q", banned)
			}
		}
	}
}

func TestBuildMatrix(t *testing.T) {
	b := NewFeatureBuilder(newTestLogger(), testYear)

	listings := []*models.Listing{
		{Year: 2018, Price: 45000, Mileage: fptr(70000), Brand: strp("Fiat"), State: "SP",
			Options: map[string]bool{"teto_solar": true}},
		{Year: 2012, Price: 25000, Brand: strp("Volkswagen"), State: "RJ",
			Options: map[string]bool{"teto_solar": false}},
	}
	vocab := b.BuildVocabulary(listings)

	rows, target, schema, err := b.BuildMatrix(listings, vocab)
	if err != nil {
		t.Fatalf("BuildMatrix: %v", err)
	}
	if len(rows) != 2 || len(target) != 2 {
		t.Fatalf("got %d rows, %d targets; want 2, 2", len(rows), len(target))
	}
	if want := LogPrice(45000); target[0] != want {
		t.Errorf("target[0] = %f; want %f", target[0], want)
	}

	age, kmPerYear := DerivedFeatures(2018, testYear, fptr(70000))
	if rows[0].Numeric[models.ColCarAge] != age {
		t.Errorf("car_age = %f; want %f", rows[0].Numeric[models.ColCarAge], age)
	}
	if rows[0].Numeric[models.ColKmPerYear] != kmPerYear {
		t.Errorf("km_per_year = %f; want %f", rows[0].Numeric[models.ColKmPerYear], kmPerYear)
	}
	if !rows[0].Boolean["teto_solar"] || rows[1].Boolean["teto_solar"] {
		t.Error("teto_solar flag not carried through")
	}

	// Missing numerics encode as NaN so the preprocessor imputes them.
	if !math.IsNaN(rows[1].Numeric[models.ColEngineSize]) {
		t.Errorf("missing engine_size = %f; want NaN", rows[1].Numeric[models.ColEngineSize])
	}

	last := schema[len(schema)-1]
	if last.Name != "teto_solar" || last.Kind != models.KindBoolean {
		t.Errorf("schema tail = %+v; want the sorted option flags", last)
	}
}

func TestBuildMatrixEmptyCorpus(t *testing.T) {
	b := NewFeatureBuilder(newTestLogger(), testYear)
	_, _, _, err := b.BuildMatrix(nil, &models.Vocabulary{})
	if !errors.Is(err, ErrEmptyDataset) {
		t.Errorf("BuildMatrix(nil) error = %v; want ErrEmptyDataset", err)
	}
}

func TestBuildMatrixBrandEntirelyMissing(t *testing.T) {
	b := NewFeatureBuilder(newTestLogger(), testYear)
	listings := []*models.Listing{
		{Year: 2018, Price: 45000, State: "SP"},
		{Year: 2015, Price: 30000, State: "RJ"},
	}
	_, _, _, err := b.BuildMatrix(listings, &models.Vocabulary{})
	if err == nil {
		t.Fatal("BuildMatrix should fail when brand is missing from the whole corpus")
	}
}

func TestBuildV1Table(t *testing.T) {
	b := NewFeatureBuilder(newTestLogger(), testYear)

	listings := []*models.Listing{
		{Year: 2018, Price: 45000, Mileage: fptr(70000), Brand: strp("Fiat"), State: "SP",
			Transmission: strp("Manual"), Fuel: strp("Flex"),
			Options: map[string]bool{"teto_solar": true, "blindado": false}},
	}
	vocab := b.BuildVocabulary(listings)

	header, records, err := b.BuildV1Table(listings, vocab)
	if err != nil {
		t.Fatalf("BuildV1Table: %v", err)
	}
	if len(header) != 13 {
		t.Fatalf("header has %d columns; want 13: %v", len(header), header)
	}
	if len(records) != 1 || len(records[0]) != 13 {
		t.Fatalf("records = %v; want one 13-column row", records)
	}

	if header[0] != "log_price" {
		t.Errorf("header[0] = %q; want log_price", header[0])
	}
	if want := fmt.Sprintf("%v", LogPrice(45000)); records[0][0] != want {
		t.Errorf("log_price cell = %q; want %q", records[0][0], want)
	}

	byName := make(map[string]string, len(header))
	for i, col := range header {
		byName[col] = records[0][i]
	}
	if byName["teto_solar"] != "true" {
		t.Errorf("teto_solar = %q; want true", byName["teto_solar"])
	}
	if byName["unico_dono"] != "false" {
		t.Errorf("unico_dono = %q; want false for an absent flag", byName["unico_dono"])
	}
	if byName["brand"] != "Fiat" {
		t.Errorf("brand = %q; want Fiat", byName["brand"])
	}
}
