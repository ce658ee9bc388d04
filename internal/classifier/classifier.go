// Package classifier defines the pluggable binary classifier contract and
// the gradient-boosted tree implementation used by the inference pipeline.
package classifier

import (
	"encoding"
	"sort"
	"sync"

	"github.com/rotisserie/eris"
)

// Classifier is a binary classifier over dense float64 rows.
//
// Fit trains from scratch; it is not incremental. Predict and PredictProba
// must only be called once Fitted reports true. Implementations marshal
// their learned state so an artifact can restore them without retraining.
type Classifier interface {
	Fit(x [][]float64, y []int) error
	Predict(x [][]float64) []int
	PredictProba(x [][]float64) []float64
	Fitted() bool
	Kind() string

	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

// Factory returns an empty classifier ready for UnmarshalBinary or Fit.
type Factory func() Classifier

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a classifier kind available to New. Registering the same
// kind twice panics.
func Register(kind string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[kind]; dup {
		panic("classifier: Register called twice for " + kind)
	}
	registry[kind] = f
}

// New returns an empty classifier of the given kind.
func New(kind string) (Classifier, error) {
	registryMu.RLock()
	f, ok := registry[kind]
	registryMu.RUnlock()
	if !ok {
		return nil, eris.Errorf("classifier: unknown kind %q", kind)
	}
	return f(), nil
}

// Kinds lists the registered classifier kinds.
func Kinds() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	kinds := make([]string, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// validateTraining checks the shape of a training set.
func validateTraining(x [][]float64, y []int) (int, error) {
	if len(x) == 0 {
		return 0, eris.New("classifier: empty training set")
	}
	if len(x) != len(y) {
		return 0, eris.Errorf("classifier: %d rows but %d labels", len(x), len(y))
	}
	width := len(x[0])
	if width == 0 {
		return 0, eris.New("classifier: rows have no features")
	}
	for i, row := range x {
		if len(row) != width {
			return 0, eris.Errorf("classifier: row %d has %d features, want %d", i, len(row), width)
		}
		if y[i] != 0 && y[i] != 1 {
			return 0, eris.Errorf("classifier: label %d at row %d is not 0 or 1", y[i], i)
		}
	}
	return width, nil
}
