package split

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/risk-cli/internal/model"
)

// population builds n rows with the given number of positives. Coordinates
// are unique so rows can be identified by key.
func population(n, positives int) []model.LocationAggregate {
	rows := make([]model.LocationAggregate, n)
	for i := range rows {
		label := model.LabelLow
		if i%n < positives {
			label = model.LabelHigh
		}
		rows[i] = model.LocationAggregate{
			Latitude:   41 + float64(i)/1000,
			Longitude:  -87 - float64(i)/1000,
			CrimeCount: i + 1,
			Risk:       label,
		}
	}
	return rows
}

func positiveFraction(rows []model.LocationAggregate) float64 {
	if len(rows) == 0 {
		return 0
	}
	n := 0
	for _, r := range rows {
		if r.Risk == model.LabelHigh {
			n++
		}
	}
	return float64(n) / float64(len(rows))
}

type key struct{ lat, lon float64 }

func keys(rows []model.LocationAggregate) map[key]int {
	m := make(map[key]int, len(rows))
	for _, r := range rows {
		m[key{r.Latitude, r.Longitude}]++
	}
	return m
}

func TestSplit_HundredRowsEightyTwenty(t *testing.T) {
	rows := population(100, 80)

	parts, err := Split(rows, DefaultOptions())
	require.NoError(t, err)

	assert.Len(t, parts.Train, 70)
	assert.Len(t, parts.Validation, 15)
	assert.Len(t, parts.Test, 15)

	for name, p := range map[string][]model.LocationAggregate{
		"train": parts.Train, "validation": parts.Validation, "test": parts.Test,
	} {
		assert.InDelta(t, 0.80, positiveFraction(p), 0.01, "%s positive fraction", name)
	}
}

func TestSplit_DisjointAndComplete(t *testing.T) {
	rows := population(237, 61)

	parts, err := Split(rows, DefaultOptions())
	require.NoError(t, err)

	seen := make(map[key]int)
	for _, p := range [][]model.LocationAggregate{parts.Train, parts.Validation, parts.Test} {
		for k, c := range keys(p) {
			seen[k] += c
		}
	}
	assert.Len(t, seen, len(rows))
	for k, c := range seen {
		assert.Equal(t, 1, c, "row %v appears in more than one partition", k)
	}
	assert.Equal(t, keys(rows), seen)
}

func TestSplit_Stratified(t *testing.T) {
	rows := population(1000, 300)
	full := positiveFraction(rows)

	parts, err := Split(rows, DefaultOptions())
	require.NoError(t, err)

	assert.InDelta(t, full, positiveFraction(parts.Train), 0.01)
	assert.InDelta(t, full, positiveFraction(parts.Validation), 0.01)
	assert.InDelta(t, full, positiveFraction(parts.Test), 0.01)
}

func TestSplit_Reproducible(t *testing.T) {
	rows := population(200, 70)

	a, err := Split(rows, DefaultOptions())
	require.NoError(t, err)
	b, err := Split(rows, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := Split(rows, Options{Ratios: DefaultRatios, Seed: 7})
	require.NoError(t, err)
	assert.NotEqual(t, keys(a.Train), keys(c.Train), "a different seed should move rows")
	assert.Len(t, c.Train, len(a.Train))
}

func TestSplit_ExcludesMissingLabels(t *testing.T) {
	rows := population(100, 50)
	for i := 0; i < 10; i++ {
		rows[i*10].Risk = model.LabelMissing
	}

	parts, err := Split(rows, DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, 10, parts.Excluded)
	total := len(parts.Train) + len(parts.Validation) + len(parts.Test)
	assert.Equal(t, 90, total)
	for _, p := range [][]model.LocationAggregate{parts.Train, parts.Validation, parts.Test} {
		for _, r := range p {
			assert.True(t, r.Risk.Valid())
		}
	}

	sizes := parts.Sizes()
	assert.Equal(t, model.PartitionSizes{Train: len(parts.Train), Validation: len(parts.Validation), Test: len(parts.Test), Excluded: 10}, sizes)
}

func TestSplit_KeepsInputOrder(t *testing.T) {
	rows := population(50, 20)

	parts, err := Split(rows, DefaultOptions())
	require.NoError(t, err)

	for _, p := range [][]model.LocationAggregate{parts.Train, parts.Validation, parts.Test} {
		for i := 1; i < len(p); i++ {
			assert.Less(t, p[i-1].CrimeCount, p[i].CrimeCount)
		}
	}
}

func TestSplit_Empty(t *testing.T) {
	parts, err := Split(nil, DefaultOptions())
	require.NoError(t, err)
	assert.Empty(t, parts.Train)
	assert.Empty(t, parts.Validation)
	assert.Empty(t, parts.Test)
	assert.NotNil(t, parts.Validation)
}

func TestSplit_InvalidRatios(t *testing.T) {
	tests := []struct {
		name   string
		ratios Ratios
		want   string
	}{
		{"negative", Ratios{Train: 1.2, Validation: -0.1, Test: -0.1}, "non-negative"},
		{"sum", Ratios{Train: 0.5, Validation: 0.2, Test: 0.2}, "sum to 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Split(population(10, 5), Options{Ratios: tt.ratios})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSplit_TrainOnly(t *testing.T) {
	rows := population(20, 5)
	parts, err := Split(rows, Options{Ratios: Ratios{Train: 1}})
	require.NoError(t, err)
	assert.Len(t, parts.Train, 20)
	assert.Empty(t, parts.Validation)
	assert.Empty(t, parts.Test)
}

func TestAllocate_LargestRemainder(t *testing.T) {
	byClass := map[model.Label][]int{
		model.LabelLow:  make([]int, 5),
		model.LabelHigh: make([]int, 5),
	}
	classes := []model.Label{model.LabelLow, model.LabelHigh}

	// 3 of 10 across two equal classes: 1.5 each, the tie goes to the lower label.
	q := allocate(classes, byClass, 10, 3)
	assert.Equal(t, 2, q[model.LabelLow])
	assert.Equal(t, 1, q[model.LabelHigh])
}
