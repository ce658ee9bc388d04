// Package inference chains missing-value imputation, standardization and a
// binary classifier into one unit that is fitted once and then only used
// for prediction.
package inference

import (
	"fmt"
	"slices"

	"github.com/rotisserie/eris"

	"github.com/sells-group/risk-cli/internal/classifier"
	"github.com/sells-group/risk-cli/internal/features"
	"github.com/sells-group/risk-cli/internal/model"
)

// ErrFrozen is returned when Fit is called on an already fitted pipeline.
var ErrFrozen = eris.New("inference: pipeline is already fitted")

// MissingFill is the constant the imputer substitutes for NaN.
const MissingFill = 0.0

// Pipeline runs imputer, scaler and classifier in that order.
type Pipeline struct {
	columns []string
	imputer *ConstantImputer
	scaler  *StandardScaler
	clf     classifier.Classifier
	fitted  bool
}

// New returns an unfitted pipeline over features.ModelColumns.
func New(clf classifier.Classifier) *Pipeline {
	return &Pipeline{
		columns: slices.Clone(features.ModelColumns),
		clf:     clf,
	}
}

// Restore assembles an already fitted pipeline from its parts.
func Restore(columns []string, imp *ConstantImputer, sc *StandardScaler, clf classifier.Classifier) (*Pipeline, error) {
	switch {
	case len(columns) == 0:
		return nil, eris.New("inference: restore: no columns")
	case imp == nil || sc == nil || clf == nil:
		return nil, eris.New("inference: restore: missing component")
	case !imp.Fitted() || !sc.Fitted() || !clf.Fitted():
		return nil, eris.New("inference: restore: component is not fitted")
	case imp.Width != len(columns) || len(sc.Mean) != len(columns) || len(sc.Scale) != len(columns):
		return nil, eris.Errorf("inference: restore: component widths do not match %d columns", len(columns))
	}
	return &Pipeline{
		columns: slices.Clone(columns),
		imputer: imp,
		scaler:  sc,
		clf:     clf,
		fitted:  true,
	}, nil
}

// Fit learns every stage from the training matrix. Nothing is retained
// unless all three stages succeed.
func (p *Pipeline) Fit(x [][]float64, y []int) error {
	if p.fitted {
		return ErrFrozen
	}
	if p.clf == nil {
		return eris.New("inference: pipeline has no classifier")
	}
	width, err := matrixWidth(x)
	if err != nil {
		return eris.Wrap(err, "inference: fit")
	}
	if width != len(p.columns) {
		return eris.Errorf("inference: fit: got %d columns, want %d", width, len(p.columns))
	}

	imp := NewConstantImputer(MissingFill)
	if err := imp.Fit(x); err != nil {
		return err
	}
	filled := imp.Transform(x)

	sc := &StandardScaler{}
	if err := sc.Fit(filled); err != nil {
		return err
	}
	if err := p.clf.Fit(sc.Transform(filled), y); err != nil {
		return eris.Wrap(err, "inference: fit classifier")
	}

	p.imputer = imp
	p.scaler = sc
	p.fitted = true
	return nil
}

// Fitted reports whether the pipeline can predict.
func (p *Pipeline) Fitted() bool { return p.fitted }

// Columns returns the ordered input column names.
func (p *Pipeline) Columns() []string { return slices.Clone(p.columns) }

// Imputer returns the fitted imputer.
func (p *Pipeline) Imputer() *ConstantImputer { return p.imputer }

// Scaler returns the fitted scaler.
func (p *Pipeline) Scaler() *StandardScaler { return p.scaler }

// Classifier returns the wrapped classifier.
func (p *Pipeline) Classifier() classifier.Classifier { return p.clf }

func (p *Pipeline) transform(x [][]float64) [][]float64 {
	if !p.fitted {
		panic("inference: pipeline used before Fit")
	}
	return p.scaler.Transform(p.imputer.Transform(x))
}

// Predict returns the predicted label per row.
func (p *Pipeline) Predict(x [][]float64) []int {
	return p.clf.Predict(p.transform(x))
}

// PredictProba returns the positive-class probability per row.
func (p *Pipeline) PredictProba(x [][]float64) []float64 {
	return p.clf.PredictProba(p.transform(x))
}

// PredictRows scores feature rows, keeping each row alongside its result.
func (p *Pipeline) PredictRows(rows []model.FeatureRow) []model.Prediction {
	x := features.Matrix(rows)
	labels := p.Predict(x)
	probs := p.PredictProba(x)
	out := make([]model.Prediction, len(rows))
	for i, r := range rows {
		out[i] = model.Prediction{
			FeatureRow:  r,
			Predicted:   labels[i],
			Probability: probs[i],
		}
	}
	return out
}

func matrixWidth(x [][]float64) (int, error) {
	if len(x) == 0 {
		return 0, eris.New("empty matrix")
	}
	width := len(x[0])
	if width == 0 {
		return 0, eris.New("matrix has no columns")
	}
	for i, row := range x {
		if len(row) != width {
			return 0, eris.Errorf("row %d has %d columns, want %d", i, len(row), width)
		}
	}
	return width, nil
}

func mustWidth(i int, row []float64, width int) {
	if len(row) != width {
		panic(fmt.Sprintf("inference: row %d has %d columns, want %d", i, len(row), width))
	}
}
