package ml

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"olx-price-pipeline/models"
)

// Preprocessor converts FeatureRows into dense numeric vectors:
// numeric columns are median-imputed, categorical columns are most-frequent
// imputed and one-hot expanded, boolean columns pass through as 0/1.
// A category unseen during training encodes as an all-zero block instead of
// failing, mirroring the bucketing contract for rare values.
type Preprocessor struct {
	NumericCols     []string
	Medians         []float64
	CategoricalCols []string
	Modes           []string
	Categories      [][]string
	BooleanCols     []string

	fitted bool
}

// NewPreprocessor partitions the schema into the three column groups.
// The partition is static by column name, never inferred from values, so the
// serving stage reconstructs the exact same layout.
func NewPreprocessor(schema models.Schema) *Preprocessor {
	p := &Preprocessor{}
	for _, col := range schema {
		switch col.Kind {
		case models.KindNumeric:
			p.NumericCols = append(p.NumericCols, col.Name)
		case models.KindCategorical:
			p.CategoricalCols = append(p.CategoricalCols, col.Name)
		case models.KindBoolean:
			p.BooleanCols = append(p.BooleanCols, col.Name)
		}
	}
	return p
}

// Fit captures per-column medians, modes and category vocabularies from the
// training rows.
func (p *Preprocessor) Fit(rows []models.FeatureRow) error {
	if len(rows) == 0 {
		return fmt.Errorf("preprocessor: no rows to fit")
	}

	p.Medians = make([]float64, len(p.NumericCols))
	for i, col := range p.NumericCols {
		var vals []float64
		for _, row := range rows {
			if v, ok := row.Numeric[col]; ok && !math.IsNaN(v) {
				vals = append(vals, v)
			}
		}
		if len(vals) == 0 {
			p.Medians[i] = 0
			continue
		}
		sort.Float64s(vals)
		p.Medians[i] = stat.Quantile(0.5, stat.Empirical, vals, nil)
	}

	p.Modes = make([]string, len(p.CategoricalCols))
	p.Categories = make([][]string, len(p.CategoricalCols))
	for i, col := range p.CategoricalCols {
		counts := make(map[string]int)
		for _, row := range rows {
			if v := row.Categorical[col]; v != "" {
				counts[v]++
			}
		}

		mode := ""
		for v, n := range counts {
			if n > counts[mode] || (n == counts[mode] && (mode == "" || v < mode)) {
				mode = v
			}
		}
		p.Modes[i] = mode

		cats := make([]string, 0, len(counts))
		for v := range counts {
			cats = append(cats, v)
		}
		sort.Strings(cats)
		p.Categories[i] = cats
	}

	p.fitted = true
	return nil
}

// Width is the length of the transformed vector.
func (p *Preprocessor) Width() int {
	w := len(p.NumericCols) + len(p.BooleanCols)
	for _, cats := range p.Categories {
		w += len(cats)
	}
	return w
}

// Transform encodes one row into a dense vector in the fitted layout.
func (p *Preprocessor) Transform(row models.FeatureRow) []float64 {
	out := make([]float64, 0, p.Width())

	for i, col := range p.NumericCols {
		v, ok := row.Numeric[col]
		if !ok || math.IsNaN(v) {
			v = p.Medians[i]
		}
		out = append(out, v)
	}

	for i, col := range p.CategoricalCols {
		v := row.Categorical[col]
		if v == "" {
			v = p.Modes[i]
		}
		for _, cat := range p.Categories[i] {
			if cat == v {
				out = append(out, 1)
			} else {
				out = append(out, 0)
			}
		}
	}

	for _, col := range p.BooleanCols {
		if row.Boolean[col] {
			out = append(out, 1)
		} else {
			out = append(out, 0)
		}
	}

	return out
}

// TransformAll encodes every row into the design matrix.
func (p *Preprocessor) TransformAll(rows []models.FeatureRow) [][]float64 {
	X := make([][]float64, len(rows))
	for i, row := range rows {
		X[i] = p.Transform(row)
	}
	return X
}

// FeatureNames returns the transformed column labels, one-hot columns as
// "col=value". Used for diagnostics.
func (p *Preprocessor) FeatureNames() []string {
	names := make([]string, 0, p.Width())
	names = append(names, p.NumericCols...)
	for i, col := range p.CategoricalCols {
		for _, cat := range p.Categories[i] {
			names = append(names, col+"="+cat)
		}
	}
	names = append(names, p.BooleanCols...)
	return names
}
