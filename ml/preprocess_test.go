package ml

import (
	"math"
	"testing"

	"olx-price-pipeline/models"
)

func testSchema() models.Schema {
	return models.Schema{
		{Name: "car_age", Kind: models.KindNumeric},
		{Name: "brand", Kind: models.KindCategorical},
		{Name: "teto_solar", Kind: models.KindBoolean},
	}
}

func testRows() []models.FeatureRow {
	rows := make([]models.FeatureRow, 4)
	for i := range rows {
		rows[i] = models.NewFeatureRow()
	}
	rows[0].Numeric["car_age"] = 2
	rows[1].Numeric["car_age"] = math.NaN()
	rows[2].Numeric["car_age"] = 8
	rows[3].Numeric["car_age"] = 4

	rows[0].Categorical["brand"] = "Fiat"
	rows[1].Categorical["brand"] = "Fiat"
	rows[2].Categorical["brand"] = "Volkswagen"
	rows[3].Categorical["brand"] = ""

	rows[0].Boolean["teto_solar"] = true
	return rows
}

func TestPreprocessorPartition(t *testing.T) {
	p := NewPreprocessor(testSchema())
	if len(p.NumericCols) != 1 || p.NumericCols[0] != "car_age" {
		t.Errorf("NumericCols = %v", p.NumericCols)
	}
	if len(p.CategoricalCols) != 1 || p.CategoricalCols[0] != "brand" {
		t.Errorf("CategoricalCols = %v", p.CategoricalCols)
	}
	if len(p.BooleanCols) != 1 || p.BooleanCols[0] != "teto_solar" {
		t.Errorf("BooleanCols = %v", p.BooleanCols)
	}
}

func TestPreprocessorFit(t *testing.T) {
	p := NewPreprocessor(testSchema())
	if err := p.Fit(testRows()); err != nil {
		t.Fatalf("Fit: %v", err)
	}

	// Median over the three non-NaN values {2, 4, 8}.
	if p.Medians[0] != 4 {
		t.Errorf("median = %f; want 4", p.Medians[0])
	}
	if p.Modes[0] != "Fiat" {
		t.Errorf("mode = %q; want Fiat", p.Modes[0])
	}
	if len(p.Categories[0]) != 2 || p.Categories[0][0] != "Fiat" || p.Categories[0][1] != "Volkswagen" {
		t.Errorf("categories = %v; want sorted [Fiat Volkswagen]", p.Categories[0])
	}
	if p.Width() != 4 {
		t.Errorf("Width = %d; want 4", p.Width())
	}
}

func TestPreprocessorTransformImputes(t *testing.T) {
	p := NewPreprocessor(testSchema())
	if err := p.Fit(testRows()); err != nil {
		t.Fatalf("Fit: %v", err)
	}

	row := models.NewFeatureRow()
	row.Numeric["car_age"] = math.NaN()
	row.Categorical["brand"] = ""
	row.Boolean["teto_solar"] = true

	got := p.Transform(row)
	want := []float64{4, 1, 0, 1} // median, mode one-hot (Fiat), bool
	if len(got) != len(want) {
		t.Fatalf("Transform = %v; want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Transform[%d] = %f; want %f", i, got[i], want[i])
		}
	}
}

func TestPreprocessorUnknownCategoryIsZeroBlock(t *testing.T) {
	p := NewPreprocessor(testSchema())
	if err := p.Fit(testRows()); err != nil {
		t.Fatalf("Fit: %v", err)
	}

	row := models.NewFeatureRow()
	row.Numeric["car_age"] = 3
	row.Categorical["brand"] = "Lamborghini"

	got := p.Transform(row)
	if got[1] != 0 || got[2] != 0 {
		t.Errorf("unknown category one-hot block = [%f %f]; want all zeros", got[1], got[2])
	}
}

func TestPreprocessorFeatureNames(t *testing.T) {
	p := NewPreprocessor(testSchema())
	if err := p.Fit(testRows()); err != nil {
		t.Fatalf("Fit: %v", err)
	}

	want := []string{"car_age", "brand=Fiat", "brand=Volkswagen", "teto_solar"}
	got := p.FeatureNames()
	if len(got) != len(want) {
		t.Fatalf("FeatureNames = %v; want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("FeatureNames[%d] = %q; want %q", i, got[i], want[i])
		}
	}
}

func TestPreprocessorFitEmpty(t *testing.T) {
	p := NewPreprocessor(testSchema())
	if err := p.Fit(nil); err == nil {
		t.Fatal("Fit on no rows should fail")
	}
}
