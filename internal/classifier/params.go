package classifier

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Params are the gradient-boosting hyperparameters. They are picked by an
// external search and handed in; nothing here tunes them.
type Params struct {
	NEstimators    int     `yaml:"n_estimators" json:"n_estimators" mapstructure:"n_estimators"`
	MaxDepth       int     `yaml:"max_depth" json:"max_depth" mapstructure:"max_depth"`
	LearningRate   float64 `yaml:"learning_rate" json:"learning_rate" mapstructure:"learning_rate"`
	MinChildWeight float64 `yaml:"min_child_weight" json:"min_child_weight" mapstructure:"min_child_weight"`
	Lambda         float64 `yaml:"lambda" json:"lambda" mapstructure:"lambda"`
	Gamma          float64 `yaml:"gamma" json:"gamma" mapstructure:"gamma"`
	Subsample      float64 `yaml:"subsample" json:"subsample" mapstructure:"subsample"`
	// ScalePosWeight multiplies the weight of positive rows. Zero means
	// negatives/positives of the training labels.
	ScalePosWeight float64 `yaml:"scale_pos_weight" json:"scale_pos_weight" mapstructure:"scale_pos_weight"`
	Threshold      float64 `yaml:"threshold" json:"threshold" mapstructure:"threshold"`
	Seed           uint64  `yaml:"seed" json:"seed" mapstructure:"seed"`
}

// DefaultParams returns the baseline hyperparameters.
func DefaultParams() Params {
	return Params{
		NEstimators:    100,
		MaxDepth:       3,
		LearningRate:   0.1,
		MinChildWeight: 1,
		Lambda:         1,
		Gamma:          0,
		Subsample:      1,
		ScalePosWeight: 0,
		Threshold:      0.5,
		Seed:           42,
	}
}

// Validate checks the parameters are usable.
func (p Params) Validate() error {
	switch {
	case p.NEstimators <= 0:
		return eris.Errorf("classifier: n_estimators must be positive (got %d)", p.NEstimators)
	case p.MaxDepth <= 0:
		return eris.Errorf("classifier: max_depth must be positive (got %d)", p.MaxDepth)
	case p.LearningRate <= 0 || p.LearningRate > 1:
		return eris.Errorf("classifier: learning_rate must be in (0, 1] (got %g)", p.LearningRate)
	case p.MinChildWeight < 0:
		return eris.Errorf("classifier: min_child_weight must be non-negative (got %g)", p.MinChildWeight)
	case p.Lambda < 0:
		return eris.Errorf("classifier: lambda must be non-negative (got %g)", p.Lambda)
	case p.Gamma < 0:
		return eris.Errorf("classifier: gamma must be non-negative (got %g)", p.Gamma)
	case p.Subsample <= 0 || p.Subsample > 1:
		return eris.Errorf("classifier: subsample must be in (0, 1] (got %g)", p.Subsample)
	case p.ScalePosWeight < 0:
		return eris.Errorf("classifier: scale_pos_weight must be non-negative (got %g)", p.ScalePosWeight)
	case p.Threshold <= 0 || p.Threshold >= 1:
		return eris.Errorf("classifier: threshold must be in (0, 1) (got %g)", p.Threshold)
	}
	return nil
}

// LoadParams reads hyperparameters from a YAML file. Keys absent from the
// file keep their DefaultParams value.
func LoadParams(path string) (Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Params{}, eris.Wrapf(err, "classifier: read params %s", path)
	}

	p := DefaultParams()
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Params{}, eris.Wrap(err, "classifier: parse params")
	}
	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	return p, nil
}
