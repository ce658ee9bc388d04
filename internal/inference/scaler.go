package inference

import (
	"math"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/stat"
)

// StandardScaler centers each column on its mean and divides by its
// population standard deviation. A column with zero spread keeps scale 1.
type StandardScaler struct {
	Mean  []float64
	Scale []float64
}

// Fit learns per-column mean and scale from x.
func (s *StandardScaler) Fit(x [][]float64) error {
	width, err := matrixWidth(x)
	if err != nil {
		return eris.Wrap(err, "inference: fit scaler")
	}

	n := len(x)
	mean := make([]float64, width)
	scale := make([]float64, width)
	col := make([]float64, n)
	for j := range width {
		for i, row := range x {
			if len(row) != width {
				return eris.Errorf("inference: fit scaler: row %d has %d columns, want %d", i, len(row), width)
			}
			col[i] = row[j]
		}
		m, variance := stat.MeanVariance(col, nil)
		if n < 2 {
			variance = 0
		} else {
			// MeanVariance is the unbiased estimate.
			variance *= float64(n-1) / float64(n)
		}
		if math.IsNaN(m) || math.IsInf(m, 0) || math.IsNaN(variance) || math.IsInf(variance, 0) {
			return eris.Errorf("inference: fit scaler: column %d is not finite", j)
		}
		sd := math.Sqrt(variance)
		if sd == 0 {
			sd = 1
		}
		mean[j] = m
		scale[j] = sd
	}

	s.Mean = mean
	s.Scale = scale
	return nil
}

// Fitted reports whether Fit has run.
func (s *StandardScaler) Fitted() bool { return len(s.Mean) > 0 }

// Transform returns a scaled copy of x.
func (s *StandardScaler) Transform(x [][]float64) [][]float64 {
	out := make([][]float64, len(x))
	for i, row := range x {
		mustWidth(i, row, len(s.Mean))
		r := make([]float64, len(row))
		for j, v := range row {
			r[j] = (v - s.Mean[j]) / s.Scale[j]
		}
		out[i] = r
	}
	return out
}
