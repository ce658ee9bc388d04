package inference

import (
	"math"

	"github.com/rotisserie/eris"
)

// ConstantImputer replaces NaN cells with a fixed value.
type ConstantImputer struct {
	Fill  float64
	Width int
}

// NewConstantImputer returns an unfitted imputer that fills with fill.
func NewConstantImputer(fill float64) *ConstantImputer {
	return &ConstantImputer{Fill: fill}
}

// Fit records the column count of x. The fill value is not learned.
func (c *ConstantImputer) Fit(x [][]float64) error {
	width, err := matrixWidth(x)
	if err != nil {
		return eris.Wrap(err, "inference: fit imputer")
	}
	c.Width = width
	return nil
}

// Fitted reports whether Fit has run.
func (c *ConstantImputer) Fitted() bool { return c.Width > 0 }

// Transform returns a copy of x with NaN replaced by the fill value.
func (c *ConstantImputer) Transform(x [][]float64) [][]float64 {
	out := make([][]float64, len(x))
	for i, row := range x {
		mustWidth(i, row, c.Width)
		r := make([]float64, len(row))
		for j, v := range row {
			if math.IsNaN(v) {
				v = c.Fill
			}
			r[j] = v
		}
		out[i] = r
	}
	return out
}
