// Package evaluate scores binary predictions against known labels.
package evaluate

import (
	"github.com/rotisserie/eris"
)

// Predictor is anything that labels a feature matrix.
type Predictor interface {
	Predict(x [][]float64) []int
}

// Confusion is a binary confusion matrix with class 1 as positive.
type Confusion struct {
	TP int `json:"tp" yaml:"tp"`
	FP int `json:"fp" yaml:"fp"`
	TN int `json:"tn" yaml:"tn"`
	FN int `json:"fn" yaml:"fn"`
}

// Total returns the number of scored rows.
func (c Confusion) Total() int { return c.TP + c.FP + c.TN + c.FN }

// Metrics are the standard binary classification scores.
type Metrics struct {
	Confusion `json:"confusion" yaml:"confusion"`
	Accuracy  float64 `json:"accuracy" yaml:"accuracy"`
	Precision float64 `json:"precision" yaml:"precision"`
	Recall    float64 `json:"recall" yaml:"recall"`
	F1        float64 `json:"f1" yaml:"f1"`
}

// Compute tallies yPred against yTrue. Any ratio with a zero denominator
// is 0.
func Compute(yTrue, yPred []int) (Metrics, error) {
	if len(yTrue) != len(yPred) {
		return Metrics{}, eris.Errorf("evaluate: %d labels but %d predictions", len(yTrue), len(yPred))
	}

	var c Confusion
	for i, truth := range yTrue {
		pred := yPred[i]
		switch {
		case truth == 1 && pred == 1:
			c.TP++
		case truth == 0 && pred == 1:
			c.FP++
		case truth == 0 && pred == 0:
			c.TN++
		case truth == 1 && pred == 0:
			c.FN++
		default:
			return Metrics{}, eris.Errorf("evaluate: row %d has non-binary label %d or prediction %d", i, truth, pred)
		}
	}

	m := Metrics{
		Confusion: c,
		Accuracy:  ratio(c.TP+c.TN, c.Total()),
		Precision: ratio(c.TP, c.TP+c.FP),
		Recall:    ratio(c.TP, c.TP+c.FN),
	}
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	return m, nil
}

// Evaluate predicts x with p and scores the result against y.
func Evaluate(p Predictor, x [][]float64, y []int) (Metrics, error) {
	if len(x) == 0 {
		return Compute(nil, nil)
	}
	return Compute(y, p.Predict(x))
}

// Map flattens the scores for storage alongside a training run.
func (m Metrics) Map() map[string]float64 {
	return map[string]float64{
		"accuracy":  m.Accuracy,
		"precision": m.Precision,
		"recall":    m.Recall,
		"f1":        m.F1,
		"tp":        float64(m.TP),
		"fp":        float64(m.FP),
		"tn":        float64(m.TN),
		"fn":        float64(m.FN),
	}
}

func ratio(num, denom int) float64 {
	if denom == 0 {
		return 0
	}
	return float64(num) / float64(denom)
}
