package aggregate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/risk-cli/internal/model"
)

func incident(lat, lon float64, violent bool) model.Incident {
	return model.Incident{Latitude: lat, Longitude: lon, Violent: violent}
}

func TestAggregate_GroupsOnExactCoordinates(t *testing.T) {
	in := []model.Incident{
		incident(41.9, -87.7, true),
		incident(41.8, -87.6, false),
		incident(41.9, -87.7, false),
		incident(41.9, -87.70001, true),
		incident(41.8, -87.6, true),
		incident(41.8, -87.6, true),
	}

	out := Aggregate(in)
	require.Len(t, out, 3)

	assert.Equal(t, model.LocationAggregate{Latitude: 41.8, Longitude: -87.6, CrimeCount: 3, ViolentCount: 2, Risk: model.LabelMissing}, out[0])
	assert.Equal(t, model.LocationAggregate{Latitude: 41.9, Longitude: -87.70001, CrimeCount: 1, ViolentCount: 1, Risk: model.LabelMissing}, out[1])
	assert.Equal(t, model.LocationAggregate{Latitude: 41.9, Longitude: -87.7, CrimeCount: 2, ViolentCount: 1, Risk: model.LabelMissing}, out[2])
}

func TestAggregate_Empty(t *testing.T) {
	out := Aggregate(nil)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestMedian(t *testing.T) {
	tests := []struct {
		name   string
		counts []int
		want   float64
	}{
		{"single", []int{7}, 7},
		{"odd", []int{5, 1, 3}, 3},
		{"even", []int{4, 1, 3, 2}, 2.5},
		{"skewed", []int{1, 1, 1, 1, 62}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Median(tt.counts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Median(nil)
	assert.True(t, errors.Is(err, ErrEmptyPopulation))
}

func rowsWithCounts(counts ...int) []model.LocationAggregate {
	rows := make([]model.LocationAggregate, len(counts))
	for i, c := range counts {
		rows[i] = model.LocationAggregate{Latitude: float64(i), Longitude: float64(-i), CrimeCount: c, Risk: model.LabelMissing}
	}
	return rows
}

func TestLabel_SkewedPopulation(t *testing.T) {
	rows := rowsWithCounts(1, 1, 1, 1, 62)

	labeled, median, err := Label(rows)
	require.NoError(t, err)
	assert.Equal(t, 1.0, median)

	want := []model.Label{model.LabelLow, model.LabelLow, model.LabelLow, model.LabelLow, model.LabelHigh}
	for i, r := range labeled {
		assert.Equal(t, want[i], r.Risk, "row %d", i)
	}

	// Input is left untouched.
	for _, r := range rows {
		assert.Equal(t, model.LabelMissing, r.Risk)
	}
}

func TestLabel_StrictInequality(t *testing.T) {
	rows := rowsWithCounts(1, 2, 3, 4, 5)

	labeled, median, err := Label(rows)
	require.NoError(t, err)
	assert.Equal(t, 3.0, median)

	for _, r := range labeled {
		if float64(r.CrimeCount) > median {
			assert.Equal(t, model.LabelHigh, r.Risk, "count %d", r.CrimeCount)
		} else {
			assert.Equal(t, model.LabelLow, r.Risk, "count %d", r.CrimeCount)
		}
	}
	assert.Equal(t, model.LabelLow, labeled[2].Risk, "ties at the median are low risk")
}

func TestLabel_SingleLocationIsLowRisk(t *testing.T) {
	labeled, median, err := Label(rowsWithCounts(40))
	require.NoError(t, err)
	assert.Equal(t, 40.0, median)
	assert.Equal(t, model.LabelLow, labeled[0].Risk)
}

func TestLabel_EmptyIsFatal(t *testing.T) {
	_, _, err := Label(nil)
	assert.True(t, errors.Is(err, ErrEmptyPopulation))
}

func TestBuild_Deterministic(t *testing.T) {
	in := []model.Incident{
		incident(1, 1, false), incident(1, 1, false), incident(1, 1, true),
		incident(2, 2, false),
		incident(3, 3, false), incident(3, 3, false),
		incident(4, 4, true),
	}

	a, err := Build(in)
	require.NoError(t, err)
	b, err := Build(in)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, 1.5, a.Median)
	assert.Equal(t, 2, a.Positives())
}

func TestBuild_EmptyIsFatal(t *testing.T) {
	_, err := Build(nil)
	assert.True(t, errors.Is(err, ErrEmptyPopulation))
}
