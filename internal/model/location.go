package model

import (
	"strconv"

	"github.com/rotisserie/eris"
)

// Label is the binary risk target. LabelMissing marks a row whose target is
// unknown; such rows never enter a dataset partition.
type Label int8

const (
	LabelMissing Label = -1
	LabelLow     Label = 0
	LabelHigh    Label = 1
)

// Valid reports whether the label is a known class.
func (l Label) Valid() bool {
	return l == LabelLow || l == LabelHigh
}

// Int returns the class as 0 or 1. Calling it on a missing label is a bug.
func (l Label) Int() int {
	if !l.Valid() {
		panic("model: Int called on missing label")
	}
	return int(l)
}

// LabelOf converts a 0/1 class into a Label.
func LabelOf(class int) Label {
	if class == 1 {
		return LabelHigh
	}
	return LabelLow
}

// MarshalText writes "0", "1", or an empty cell for a missing label.
func (l Label) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return []byte{}, nil
	}
	return []byte(strconv.Itoa(int(l))), nil
}

// UnmarshalText reads "0" or "1"; an empty cell is a missing label.
func (l *Label) UnmarshalText(text []byte) error {
	switch string(text) {
	case "":
		*l = LabelMissing
	case "0", "0.0":
		*l = LabelLow
	case "1", "1.0":
		*l = LabelHigh
	default:
		return eris.Errorf("model: invalid risk label %q", string(text))
	}
	return nil
}

// LocationAggregate is the per-location incident summary and its label.
type LocationAggregate struct {
	Latitude     float64 `csv:"latitude" json:"latitude"`
	Longitude    float64 `csv:"longitude" json:"longitude"`
	CrimeCount   int     `csv:"CrimeCount" json:"crime_count"`
	ViolentCount int     `csv:"ViolentCount" json:"violent_count"`
	Risk         Label   `csv:"Risk" json:"risk"`
}

// FeatureRow is an aggregate plus its derived numeric features.
type FeatureRow struct {
	LocationAggregate
	CrimeDensity       float64 `csv:"CrimeDensity" json:"crime_density"`
	ViolentRatio       float64 `csv:"ViolentRatio" json:"violent_ratio"`
	DistanceFromCenter float64 `csv:"DistanceFromCenter" json:"distance_from_center"`
}

// Prediction is a feature row scored by a fitted pipeline.
type Prediction struct {
	FeatureRow
	Predicted   int     `csv:"Prediction" json:"prediction"`
	Probability float64 `csv:"Probability" json:"probability"`
}
