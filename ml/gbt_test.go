package ml

import (
	"math"
	"testing"
)

func testParams() GBParams {
	return GBParams{
		NumTrees:     50,
		MaxDepth:     3,
		LearningRate: 0.1,
		Subsample:    0.8,
		ColSample:    0.8,
		Seed:         7,
	}
}

// syntheticData is a noiseless linear relation the ensemble should fit far
// better than the constant base prediction.
func syntheticData() ([][]float64, []float64) {
	var X [][]float64
	var y []float64
	for i := 0; i < 40; i++ {
		x0 := float64(i)
		x1 := float64(i % 5)
		X = append(X, []float64{x0, x1})
		y = append(y, 2*x0-3*x1)
	}
	return X, y
}

func mse(m *GBRegressor, X [][]float64, y []float64) float64 {
	sum := 0.0
	for i, x := range X {
		d := m.Predict(x) - y[i]
		sum += d * d
	}
	return sum / float64(len(y))
}

func TestGBRegressorReducesError(t *testing.T) {
	X, y := syntheticData()

	m := NewGBRegressor(testParams())
	if err := m.Fit(X, y); err != nil {
		t.Fatalf("Fit: %v", err)
	}

	baseMSE := 0.0
	for _, v := range y {
		d := v - m.Base
		baseMSE += d * d
	}
	baseMSE /= float64(len(y))

	fitted := mse(m, X, y)
	if fitted >= baseMSE/10 {
		t.Errorf("training MSE %f did not improve enough over base MSE %f", fitted, baseMSE)
	}
}

func TestGBRegressorDeterministicForSeed(t *testing.T) {
	X, y := syntheticData()

	a := NewGBRegressor(testParams())
	b := NewGBRegressor(testParams())
	if err := a.Fit(X, y); err != nil {
		t.Fatalf("Fit a: %v", err)
	}
	if err := b.Fit(X, y); err != nil {
		t.Fatalf("Fit b: %v", err)
	}

	for _, x := range X {
		if pa, pb := a.Predict(x), b.Predict(x); pa != pb {
			t.Fatalf("predictions diverge for identical seeds: %f vs %f", pa, pb)
		}
	}
}

func TestGBRegressorValidatesInput(t *testing.T) {
	m := NewGBRegressor(testParams())

	if err := m.Fit(nil, nil); err == nil {
		t.Error("Fit on an empty matrix should fail")
	}
	if err := m.Fit([][]float64{{1}}, []float64{1, 2}); err == nil {
		t.Error("Fit with mismatched row/target counts should fail")
	}
	if err := m.Fit([][]float64{{1, 2}, {1}}, []float64{1, 2}); err == nil {
		t.Error("Fit with ragged rows should fail")
	}
}

func TestGBRegressorBaseIsTargetMean(t *testing.T) {
	X := [][]float64{{0}, {0}, {0}}
	y := []float64{1, 2, 6}

	m := NewGBRegressor(testParams())
	if err := m.Fit(X, y); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if m.Base != 3 {
		t.Errorf("Base = %f; want mean 3", m.Base)
	}
}

func TestTreePredict(t *testing.T) {
	tree := &Tree{Nodes: []TreeNode{
		{Feature: 0, Threshold: 5, Left: 1, Right: 2},
		{Leaf: true, Value: -1},
		{Leaf: true, Value: 1},
	}}

	if got := tree.Predict([]float64{4.9}); got != -1 {
		t.Errorf("Predict(4.9) = %f; want -1 (strictly-less goes left)", got)
	}
	if got := tree.Predict([]float64{5}); got != 1 {
		t.Errorf("Predict(5) = %f; want 1 (threshold itself goes right)", got)
	}
}

func TestSubsampledFitStaysFinite(t *testing.T) {
	X, y := syntheticData()

	m := NewGBRegressor(GBParams{NumTrees: 1, MaxDepth: 2, LearningRate: 1, Subsample: 0.5, ColSample: 1, Seed: 1})
	if err := m.Fit(X, y); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if len(m.Trees) != 1 {
		t.Fatalf("got %d trees; want 1", len(m.Trees))
	}
	if math.IsNaN(m.Predict(X[0])) {
		t.Error("prediction is NaN")
	}
}
