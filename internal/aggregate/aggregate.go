// Package aggregate groups incidents by location and derives the risk label.
package aggregate

import (
	"cmp"
	"slices"

	"github.com/rotisserie/eris"

	"github.com/sells-group/risk-cli/internal/model"
)

// ErrEmptyPopulation is returned when a statistic is requested over zero rows.
var ErrEmptyPopulation = eris.New("aggregate: median of an empty population is undefined")

type locationKey struct {
	lat, lon float64
}

// Aggregate groups incidents on exact (latitude, longitude) equality. Rows are
// returned sorted by latitude then longitude with Risk left missing.
func Aggregate(incidents []model.Incident) []model.LocationAggregate {
	groups := make(map[locationKey]*model.LocationAggregate)
	for _, inc := range incidents {
		key := locationKey{lat: inc.Latitude, lon: inc.Longitude}
		agg, ok := groups[key]
		if !ok {
			agg = &model.LocationAggregate{
				Latitude:  inc.Latitude,
				Longitude: inc.Longitude,
				Risk:      model.LabelMissing,
			}
			groups[key] = agg
		}
		agg.CrimeCount++
		if inc.Violent {
			agg.ViolentCount++
		}
	}

	out := make([]model.LocationAggregate, 0, len(groups))
	for _, agg := range groups {
		out = append(out, *agg)
	}
	slices.SortFunc(out, func(a, b model.LocationAggregate) int {
		if c := cmp.Compare(a.Latitude, b.Latitude); c != 0 {
			return c
		}
		return cmp.Compare(a.Longitude, b.Longitude)
	})
	return out
}

// Median returns the median of counts. For an even number of values it is the
// mean of the two middle values.
func Median(counts []int) (float64, error) {
	if len(counts) == 0 {
		return 0, ErrEmptyPopulation
	}
	sorted := slices.Clone(counts)
	slices.Sort(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return float64(sorted[mid]), nil
	}
	return (float64(sorted[mid-1]) + float64(sorted[mid])) / 2, nil
}

// Label returns a labeled copy of rows and the median CrimeCount used as the
// threshold. A row is high risk only when its count is strictly greater than
// the median, so ties are low risk. A single-location population therefore
// labels its only row low risk.
func Label(rows []model.LocationAggregate) ([]model.LocationAggregate, float64, error) {
	counts := make([]int, len(rows))
	for i, r := range rows {
		counts[i] = r.CrimeCount
	}
	median, err := Median(counts)
	if err != nil {
		return nil, 0, err
	}

	out := make([]model.LocationAggregate, len(rows))
	for i, r := range rows {
		r.Risk = model.LabelLow
		if float64(r.CrimeCount) > median {
			r.Risk = model.LabelHigh
		}
		out[i] = r
	}
	return out, median, nil
}

// Result is a labeled population.
type Result struct {
	Rows   []model.LocationAggregate
	Median float64
}

// Positives returns the number of high-risk rows.
func (r *Result) Positives() int {
	n := 0
	for _, row := range r.Rows {
		if row.Risk == model.LabelHigh {
			n++
		}
	}
	return n
}

// Build aggregates incidents and labels the resulting population.
func Build(incidents []model.Incident) (*Result, error) {
	rows, median, err := Label(Aggregate(incidents))
	if err != nil {
		return nil, err
	}
	return &Result{Rows: rows, Median: median}, nil
}
