package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLabel_Text(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want Label
	}{
		{"", LabelMissing},
		{"0", LabelLow},
		{"1", LabelHigh},
		{"1.0", LabelHigh},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			var l Label
			require.NoError(t, l.UnmarshalText([]byte(tt.in)))
			assert.Equal(t, tt.want, l)
		})
	}

	var l Label
	err := l.UnmarshalText([]byte("high"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid risk label")

	out, err := LabelMissing.MarshalText()
	require.NoError(t, err)
	assert.Empty(t, out)
	out, err = LabelHigh.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1", string(out))
}

func TestLabel_IntPanicsOnMissing(t *testing.T) {
	assert.Equal(t, 1, LabelHigh.Int())
	assert.Equal(t, 0, LabelLow.Int())
	assert.Panics(t, func() { _ = LabelMissing.Int() })
	assert.Equal(t, LabelHigh, LabelOf(1))
	assert.Equal(t, LabelLow, LabelOf(0))
}

func TestRawField_UnmarshalJSON(t *testing.T) {
	t.Parallel()

	var recs []RawIncident
	input := `[
		{"timestamp":"2024-01-01T10:00:00.000","latitude":"41.88","longitude":"-87.63","category":"THEFT"},
		{"timestamp":"2024-01-01T11:00:00.000","latitude":41.5,"longitude":null,"category":"BATTERY"},
		{"timestamp":"2024-01-01T12:00:00.000","category":"ASSAULT"}
	]`
	require.NoError(t, json.Unmarshal([]byte(input), &recs))
	require.Len(t, recs, 3)

	assert.Equal(t, NewRawField("41.88"), recs[0].Latitude)
	assert.Equal(t, RawField{Value: "41.5", Valid: true}, recs[1].Latitude)
	assert.False(t, recs[1].Longitude.Valid)
	assert.False(t, recs[2].Latitude.Valid)
	assert.False(t, recs[2].Longitude.Valid)
}

func TestRawField_UnmarshalJSON_RejectsObjects(t *testing.T) {
	var f RawField
	err := json.Unmarshal([]byte(`{"a":1}`), &f)
	require.Error(t, err)
}

func TestRawField_MarshalJSON(t *testing.T) {
	data, err := json.Marshal(RawIncident{Timestamp: "t", Latitude: NewRawField("1.5"), Category: "X"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"timestamp":"t","latitude":"1.5","longitude":null,"category":"X"}`, string(data))
}
