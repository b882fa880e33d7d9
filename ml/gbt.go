package ml

import (
	"fmt"
	"math/rand"
	"sort"
)

// GBParams are the gradient-boosting hyperparameters. The defaults are the
// previously tuned set and are not re-searched at training time.
type GBParams struct {
	NumTrees     int
	MaxDepth     int
	LearningRate float64
	Subsample    float64
	ColSample    float64
	Seed         int64
}

// DefaultGBParams returns the tuned production hyperparameters.
func DefaultGBParams() GBParams {
	return GBParams{
		NumTrees:     700,
		MaxDepth:     5,
		LearningRate: 0.05,
		Subsample:    0.8,
		ColSample:    0.8,
		Seed:         42,
	}
}

// GBRegressor is a gradient-boosted regression tree ensemble under squared
// loss: each round fits a depth-limited tree to the current residuals on a
// row and feature subsample, and predictions accumulate Base + lr*sum(trees).
type GBRegressor struct {
	Params GBParams
	Base   float64
	Trees  []*Tree
}

// NewGBRegressor creates an unfitted ensemble with the given parameters.
func NewGBRegressor(params GBParams) *GBRegressor {
	return &GBRegressor{Params: params}
}

// Fit trains the ensemble on the full design matrix. Deterministic for a
// fixed seed.
func (m *GBRegressor) Fit(X [][]float64, y []float64) error {
	if len(X) == 0 {
		return fmt.Errorf("gbt: empty training matrix")
	}
	if len(X) != len(y) {
		return fmt.Errorf("gbt: %d rows but %d targets", len(X), len(y))
	}
	width := len(X[0])
	for i, row := range X {
		if len(row) != width {
			return fmt.Errorf("gbt: row %d has width %d, want %d", i, len(row), width)
		}
	}

	sum := 0.0
	for _, v := range y {
		sum += v
	}
	m.Base = sum / float64(len(y))

	pred := make([]float64, len(y))
	for i := range pred {
		pred[i] = m.Base
	}

	residual := make([]float64, len(y))
	rng := rand.New(rand.NewSource(m.Params.Seed))
	m.Trees = make([]*Tree, 0, m.Params.NumTrees)

	for t := 0; t < m.Params.NumTrees; t++ {
		for i := range y {
			residual[i] = y[i] - pred[i]
		}

		rows := sampleIndices(rng, len(X), m.Params.Subsample)
		features := sampleIndices(rng, width, m.Params.ColSample)

		tree := buildTree(X, residual, rows, features, m.Params.MaxDepth)
		m.Trees = append(m.Trees, tree)

		for i, row := range X {
			pred[i] += m.Params.LearningRate * tree.Predict(row)
		}
	}

	return nil
}

// Predict returns the regression output for one vector.
func (m *GBRegressor) Predict(x []float64) float64 {
	out := m.Base
	for _, tree := range m.Trees {
		out += m.Params.LearningRate * tree.Predict(x)
	}
	return out
}

// sampleIndices draws round(frac*n) indices without replacement, at least one.
func sampleIndices(rng *rand.Rand, n int, frac float64) []int {
	k := int(frac*float64(n) + 0.5)
	if k < 1 {
		k = 1
	}
	if k > n {
		k = n
	}
	idx := rng.Perm(n)[:k]
	sort.Ints(idx)
	return idx
}
