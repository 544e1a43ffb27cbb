package model

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// PCA is a linear projection onto the leading principal components.
type PCA struct {
	Mean []float64 `json:"mean"`
	// Components holds one direction per row.
	Components             [][]float64 `json:"components"`
	ExplainedVariance      []float64   `json:"explained_variance"`
	ExplainedVarianceRatio []float64   `json:"explained_variance_ratio"`
}

// FitPCA fits n components on x. Each component is sign-normalized so its
// largest-magnitude loading is positive, which keeps projections stable across runs.
func FitPCA(x mat.Matrix, n int) (*PCA, error) {
	r, c := x.Dims()
	if r < 2 || min(r, c) < n {
		return nil, &FitError{Stage: "pca", Err: fmt.Errorf("need at least %d rows and columns, have %dx%d", n, r, c)}
	}
	var pc stat.PC
	if !pc.PrincipalComponents(x, nil) {
		return nil, &FitError{Stage: "pca", Err: errors.New("decomposition failed")}
	}
	var vecs mat.Dense
	pc.VectorsTo(&vecs)
	vars := pc.VarsTo(nil)

	p := &PCA{Mean: make([]float64, c)}
	for j := range p.Mean {
		p.Mean[j] = stat.Mean(mat.Col(nil, j, x), nil)
	}
	total := floats.Sum(vars)
	for k := 0; k < n; k++ {
		dir := mat.Col(nil, k, &vecs)
		if floats.Max(dir) < -floats.Min(dir) {
			floats.Scale(-1, dir)
		}
		p.Components = append(p.Components, dir)
		p.ExplainedVariance = append(p.ExplainedVariance, vars[k])
		ratio := 0.0
		if total > 0 {
			ratio = vars[k] / total
		}
		p.ExplainedVarianceRatio = append(p.ExplainedVarianceRatio, ratio)
	}
	return p, nil
}

// Project maps one vector into component space.
func (p *PCA) Project(v []float64) []float64 {
	centered := make([]float64, len(v))
	floats.SubTo(centered, v, p.Mean)
	out := make([]float64, len(p.Components))
	for k, dir := range p.Components {
		out[k] = floats.Dot(centered, dir)
	}
	return out
}

// ProjectRows maps every row of x.
func (p *PCA) ProjectRows(x mat.Matrix) [][]float64 {
	rows := rowsOf(x)
	out := make([][]float64, len(rows))
	for i, row := range rows {
		out[i] = p.Project(row)
	}
	return out
}
