// Package features derives numeric model inputs from location aggregates.
//
// Every feature is a function of the row's own fields and the fixed
// reference point. Nothing is learned from the population, so the same
// function applied to train, validation and test cannot leak information
// across partitions.
package features

import (
	"math"

	"github.com/sells-group/risk-cli/internal/model"
)

// Point is a (latitude, longitude) pair in decimal degrees.
type Point struct {
	Latitude  float64
	Longitude float64
}

// ReferencePoint is the fixed center used by DistanceFromCenter.
var ReferencePoint = Point{Latitude: 41.8781, Longitude: -87.6298}

// ModelColumns is the ordered list of classifier inputs.
var ModelColumns = []string{
	"latitude",
	"longitude",
	"CrimeCount",
	"ViolentCount",
	"CrimeDensity",
	"ViolentRatio",
	"DistanceFromCenter",
}

// FromAggregate wraps an aggregate in a feature row and computes its features.
func FromAggregate(agg model.LocationAggregate) model.FeatureRow {
	return Engineer(model.FeatureRow{LocationAggregate: agg})
}

// Engineer returns row with its derived fields recomputed from the raw
// fields. Applying it to its own output is a no-op.
func Engineer(row model.FeatureRow) model.FeatureRow {
	row.CrimeDensity = CrimeDensity(row.CrimeCount, row.Latitude, row.Longitude)
	row.ViolentRatio = ViolentRatio(row.ViolentCount, row.CrimeCount)
	row.DistanceFromCenter = DistanceFromCenter(row.Latitude, row.Longitude)
	return row
}

// CrimeDensity is count / |lat*lon|. A zero denominator is replaced by 1 and
// an undefined result is 0.
func CrimeDensity(count int, lat, lon float64) float64 {
	denom := math.Abs(lat * lon)
	if denom == 0 {
		denom = 1
	}
	return finiteOrZero(float64(count) / denom)
}

// ViolentRatio is violent / count, with a zero count replaced by 1 and an
// undefined result forced to 0.
func ViolentRatio(violent, count int) float64 {
	if count == 0 {
		count = 1
	}
	return finiteOrZero(float64(violent) / float64(count))
}

// DistanceFromCenter is the Euclidean distance in degrees between the
// coordinates and ReferencePoint. A NaN coordinate is replaced by the
// reference coordinate, so that axis contributes nothing.
func DistanceFromCenter(lat, lon float64) float64 {
	lat, _ = substitute(lat, ReferencePoint.Latitude)
	lon, _ = substitute(lon, ReferencePoint.Longitude)
	return finiteOrZero(math.Hypot(lat-ReferencePoint.Latitude, lon-ReferencePoint.Longitude))
}

// Substituted reports whether DistanceFromCenter would replace a coordinate
// of row with the reference coordinate.
func Substituted(row model.FeatureRow) bool {
	return math.IsNaN(row.Latitude) || math.IsNaN(row.Longitude)
}

func substitute(v, ref float64) (float64, bool) {
	if math.IsNaN(v) {
		return ref, true
	}
	return v, false
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// Values returns the row's model inputs in ModelColumns order.
func Values(row model.FeatureRow) []float64 {
	return []float64{
		row.Latitude,
		row.Longitude,
		float64(row.CrimeCount),
		float64(row.ViolentCount),
		row.CrimeDensity,
		row.ViolentRatio,
		row.DistanceFromCenter,
	}
}

// Matrix returns the model input matrix for rows.
func Matrix(rows []model.FeatureRow) [][]float64 {
	x := make([][]float64, len(rows))
	for i, r := range rows {
		x[i] = Values(r)
	}
	return x
}

// Labels returns the 0/1 targets for rows. Every row must be labeled.
func Labels(rows []model.FeatureRow) []int {
	y := make([]int, len(rows))
	for i, r := range rows {
		y[i] = r.Risk.Int()
	}
	return y
}
