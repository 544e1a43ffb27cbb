package model

import (
	"errors"
	"fmt"

	"github.com/ezoic/scigo/linear"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Solvers recorded on a fitted LinearRegression.
const (
	SolverScigo   = "scigo"
	SolverMinNorm = "min_norm_svd"
)

// LinearRegression is an ordinary least squares fit with intercept.
type LinearRegression struct {
	Coef      []float64 `json:"coef"`
	Intercept float64   `json:"intercept"`
	Solver    string    `json:"solver,omitempty"`
}

// FitLinear fits y ≈ Xw + b. Full column rank designs go through scigo's LinearRegression.
// Rank-deficient designs (constant or collinear columns, fewer rows than features) have no
// unique OLS solution, so they take the minimum-norm SVD solve instead, as does any scigo failure.
func FitLinear(x mat.Matrix, y []float64) (*LinearRegression, error) {
	r, c := x.Dims()
	if r != len(y) {
		return nil, &FitError{Stage: "linear regression", Err: mat.ErrShape}
	}
	if r == 0 {
		return nil, &FitError{Stage: "linear regression", Err: errors.New("no rows")}
	}

	xMean := make([]float64, c)
	for j := range xMean {
		xMean[j] = stat.Mean(mat.Col(nil, j, x), nil)
	}
	yMean := stat.Mean(y, nil)
	xc := mat.NewDense(r, c, nil)
	xc.Apply(func(_, j int, v float64) float64 { return v - xMean[j] }, x)

	var svd mat.SVD
	if !svd.Factorize(xc, mat.SVDThin) {
		return nil, &FitError{Stage: "linear regression", Err: errors.New("svd did not converge")}
	}
	rank := svd.Rank(1e3 * epsilon * float64(max(r, c)))
	if rank == c {
		if m, err := fitScigo(x, y); err == nil {
			return m, nil
		}
	}
	return fitMinNorm(&svd, rank, xMean, yMean, y), nil
}

// fitScigo fits with scigo and reads the coefficients back by predicting the origin and the unit vectors.
func fitScigo(x mat.Matrix, y []float64) (*LinearRegression, error) {
	_, c := x.Dims()
	reg := linear.NewLinearRegression()
	if err := reg.Fit(x, mat.NewDense(len(y), 1, append([]float64(nil), y...))); err != nil {
		return nil, err
	}
	basis := mat.NewDense(c+1, c, nil)
	for j := 0; j < c; j++ {
		basis.Set(j+1, j, 1)
	}
	pred, err := reg.Predict(basis)
	if err != nil {
		return nil, err
	}
	m := &LinearRegression{Coef: make([]float64, c), Intercept: pred.At(0, 0), Solver: SolverScigo}
	if !finite(m.Intercept) {
		return nil, fmt.Errorf("scigo intercept is %g", m.Intercept)
	}
	for j := range m.Coef {
		m.Coef[j] = pred.At(j+1, 0) - m.Intercept
		if !finite(m.Coef[j]) {
			return nil, fmt.Errorf("scigo coefficient %d is %g", j, m.Coef[j])
		}
	}
	return m, nil
}

func fitMinNorm(svd *mat.SVD, rank int, xMean []float64, yMean float64, y []float64) *LinearRegression {
	yc := make([]float64, len(y))
	for i, v := range y {
		yc[i] = v - yMean
	}
	m := &LinearRegression{Coef: make([]float64, len(xMean)), Solver: SolverMinNorm}
	if rank > 0 {
		var w mat.VecDense
		svd.SolveVecTo(&w, mat.NewVecDense(len(yc), yc), rank)
		for j := range m.Coef {
			m.Coef[j] = w.AtVec(j)
		}
	}
	m.Intercept = yMean - floats.Dot(xMean, m.Coef)
	return m
}

// Predict evaluates the fitted model on one standardized feature vector.
func (m *LinearRegression) Predict(v []float64) float64 {
	return m.Intercept + floats.Dot(m.Coef, v)
}

// PredictRows evaluates every row of x.
func (m *LinearRegression) PredictRows(x mat.Matrix) []float64 {
	r, _ := x.Dims()
	out := make([]float64, r)
	for i := range out {
		out[i] = m.Predict(mat.Row(nil, i, x))
	}
	return out
}

func (m *LinearRegression) validate(n int) error {
	if len(m.Coef) != n {
		return fmt.Errorf("regressor has %d coefficients, want %d", len(m.Coef), n)
	}
	if !finite(m.Intercept) || !allFinite(m.Coef) {
		return errors.New("regressor has non-finite parameters")
	}
	return nil
}

func allFinite(v []float64) bool {
	for _, x := range v {
		if !finite(x) {
			return false
		}
	}
	return true
}
