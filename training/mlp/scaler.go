package mlp

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// StandardScaler removes the mean and scales each column to unit variance.
// Scale uses the population standard deviation; constant columns keep scale 1.
type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// FitScaler computes column statistics of x
func FitScaler(x *mat.Dense) *StandardScaler {
	rows, cols := x.Dims()
	s := &StandardScaler{Mean: make([]float64, cols), Scale: make([]float64, cols)}
	col := make([]float64, rows)
	for c := 0; c < cols; c++ {
		mat.Col(col, c, x)
		mean, std := stat.PopMeanStdDev(col, nil)
		if std == 0 {
			std = 1
		}
		s.Mean[c] = mean
		s.Scale[c] = std
	}
	return s
}

// Dims returns the number of columns the scaler was fitted on
func (s *StandardScaler) Dims() int {
	return len(s.Mean)
}

// Transform returns a scaled copy of x
func (s *StandardScaler) Transform(x *mat.Dense) (*mat.Dense, error) {
	rows, cols := x.Dims()
	if cols != s.Dims() {
		return nil, fmt.Errorf("scaler fitted on %d columns, got %d", s.Dims(), cols)
	}
	out := mat.NewDense(rows, cols, nil)
	out.Apply(func(_, c int, v float64) float64 {
		return (v - s.Mean[c]) / s.Scale[c]
	}, x)
	return out, nil
}

// TransformRow scales a single feature vector
func (s *StandardScaler) TransformRow(row []float64) ([]float64, error) {
	if len(row) != s.Dims() {
		return nil, fmt.Errorf("scaler fitted on %d columns, got %d", s.Dims(), len(row))
	}
	out := make([]float64, len(row))
	for i, v := range row {
		out[i] = (v - s.Mean[i]) / s.Scale[i]
	}
	return out, nil
}
