package ml

import (
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"olx-price-pipeline/models"
)

// Pipeline is the persisted training artifact: the fitted preprocessing
// transform, the regression model, and the metadata the serving stage needs
// to rebuild an identical input schema — column order and kinds, the category
// vocabulary, and the reference year used for car_age. Read-only once saved;
// safe for concurrent use after Load.
type Pipeline struct {
	Schema       models.Schema
	Vocabulary   models.Vocabulary
	Preprocessor *Preprocessor
	Model        *GBRegressor
	CurrentYear  int
	TrainedRows  int
	TrainedAt    time.Time
}

// Train fits the preprocessor and model on 100% of the corpus and assembles
// the artifact. Validation is assumed to have happened during hyperparameter
// selection; there is no held-out split here.
func Train(rows []models.FeatureRow, target []float64, schema models.Schema, vocab *models.Vocabulary, params GBParams, currentYear int) (*Pipeline, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("train: no feature rows")
	}
	if len(rows) != len(target) {
		return nil, fmt.Errorf("train: %d rows but %d targets", len(rows), len(target))
	}

	pre := NewPreprocessor(schema)
	if err := pre.Fit(rows); err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}

	model := NewGBRegressor(params)
	if err := model.Fit(pre.TransformAll(rows), target); err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}

	return &Pipeline{
		Schema:       schema,
		Vocabulary:   *vocab,
		Preprocessor: pre,
		Model:        model,
		CurrentYear:  currentYear,
		TrainedRows:  len(rows),
		TrainedAt:    time.Now().UTC(),
	}, nil
}

// PredictRow runs one feature row through the fitted transform and model,
// returning the log-scale prediction. Invert with expm1 for currency units.
func (p *Pipeline) PredictRow(row models.FeatureRow) float64 {
	return p.Model.Predict(p.Preprocessor.Transform(row))
}

// PredictPrice returns the prediction in original currency units.
func (p *Pipeline) PredictPrice(row models.FeatureRow) (price, logPrice float64) {
	logPrice = p.PredictRow(row)
	return math.Expm1(logPrice), logPrice
}

// Save serializes the artifact as a single gob blob, creating parent
// directories as needed.
func (p *Pipeline) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("pipeline: create artifact dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("pipeline: create %q: %w", path, err)
	}
	defer f.Close()

	if err := gob.NewEncoder(f).Encode(p); err != nil {
		return fmt.Errorf("pipeline: encode: %w", err)
	}
	return nil
}

// Load restores a previously saved artifact.
func Load(path string) (*Pipeline, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("pipeline: open %q: %w", path, err)
	}
	defer f.Close()

	p := &Pipeline{}
	if err := gob.NewDecoder(f).Decode(p); err != nil {
		return nil, fmt.Errorf("pipeline: decode %q: %w", path, err)
	}
	return p, nil
}
