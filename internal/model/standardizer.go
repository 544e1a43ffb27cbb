package model

import (
	"fmt"
	"math"

	"github.com/ezoic/scigo/preprocessing"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Standardizer centers each column to zero mean and scales it to unit population variance.
// The parameters are kept as plain slices so a bundle can be saved and reloaded.
type Standardizer struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// FitStandardizer fits a scigo StandardScaler and reads its per-column mean and scale back
// by transforming a row of zeros and a row of ones. Constant columns keep a scale of 1.
func FitStandardizer(x mat.Matrix) (*Standardizer, error) {
	_, c := x.Dims()
	scaler := preprocessing.NewStandardScaler(true, true)
	if err := scaler.Fit(x); err != nil {
		return nil, &FitError{Stage: "standardizer", Err: err}
	}
	basis := mat.NewDense(2, c, nil)
	for j := 0; j < c; j++ {
		basis.Set(1, j, 1)
	}
	z, err := scaler.Transform(basis)
	if err != nil {
		return nil, &FitError{Stage: "standardizer", Err: err}
	}

	s := &Standardizer{Mean: make([]float64, c), Scale: make([]float64, c)}
	for j := 0; j < c; j++ {
		z0, z1 := z.At(0, j), z.At(1, j)
		sd := 1 / (z1 - z0)
		mean := -z0 * sd
		if !finite(sd) || !finite(mean) || sd < 10*epsilon {
			sd, mean = 1, stat.Mean(mat.Col(nil, j, x), nil)
		}
		s.Mean[j], s.Scale[j] = mean, sd
	}
	return s, nil
}

// Transform returns a standardized copy of x.
func (s *Standardizer) Transform(x mat.Matrix) *mat.Dense {
	r, c := x.Dims()
	out := mat.NewDense(r, c, nil)
	out.Apply(func(_, j int, v float64) float64 {
		return (v - s.Mean[j]) / s.Scale[j]
	}, x)
	return out
}

// TransformVec standardizes a single feature vector.
func (s *Standardizer) TransformVec(v []float64) []float64 {
	out := make([]float64, len(v))
	for j, x := range v {
		out[j] = (x - s.Mean[j]) / s.Scale[j]
	}
	return out
}

// validate checks the parameters against the expected feature count.
func (s *Standardizer) validate(n int) error {
	if len(s.Mean) != n || len(s.Scale) != n {
		return fmt.Errorf("standardizer has %d means and %d scales, want %d", len(s.Mean), len(s.Scale), n)
	}
	for j, sd := range s.Scale {
		if !finite(sd) || sd == 0 || !finite(s.Mean[j]) {
			return fmt.Errorf("standardizer column %d has mean %g and scale %g", j, s.Mean[j], sd)
		}
	}
	return nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

const epsilon = 2.220446049250313e-16
