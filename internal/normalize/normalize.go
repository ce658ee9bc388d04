// Package normalize coerces raw incident records into typed incidents.
//
// The drop policy is strict: a record whose coordinates or timestamp cannot
// be coerced is excluded, never repaired. Coordinates are the aggregation key
// downstream, so a guessed coordinate would invent a location.
package normalize

import (
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/risk-cli/internal/model"
)

// ViolentCategories is the fixed set of categories flagged as violent.
var ViolentCategories = map[string]bool{
	"HOMICIDE":                true,
	"ASSAULT":                 true,
	"BATTERY":                 true,
	"ROBBERY":                 true,
	"CRIMINAL SEXUAL ASSAULT": true,
}

// timestampLayouts are tried in order.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000", // SODA floating timestamp
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"01/02/2006 03:04:05 PM", // portal CSV export
}

// DropReason explains why a record was excluded.
type DropReason string

const (
	DropMissingCoordinate DropReason = "missing_coordinate"
	DropBadCoordinate     DropReason = "bad_coordinate"
	DropOutOfRange        DropReason = "out_of_range"
	DropBadTimestamp      DropReason = "bad_timestamp"
)

// Stats summarizes a normalization pass.
type Stats struct {
	Input   int                `json:"input"`
	Kept    int                `json:"kept"`
	Dropped map[DropReason]int `json:"dropped"`
}

// DroppedTotal returns the number of excluded records.
func (s Stats) DroppedTotal() int {
	n := 0
	for _, c := range s.Dropped {
		n += c
	}
	return n
}

// Normalize converts raw records into incidents. The input slice is not
// modified. An empty input yields an empty, non-nil result.
func Normalize(raws []model.RawIncident) ([]model.Incident, Stats) {
	stats := Stats{Input: len(raws), Dropped: make(map[DropReason]int)}
	out := make([]model.Incident, 0, len(raws))
	// Casers carry state and are not shared across calls.
	upper := cases.Upper(language.Und)

	for _, raw := range raws {
		inc, reason, ok := normalizeOne(raw, upper)
		if !ok {
			stats.Dropped[reason]++
			continue
		}
		out = append(out, inc)
	}

	stats.Kept = len(out)
	return out, stats
}

func normalizeOne(raw model.RawIncident, upper cases.Caser) (model.Incident, DropReason, bool) {
	lat, reason, ok := parseCoordinate(raw.Latitude, 90)
	if !ok {
		return model.Incident{}, reason, false
	}
	lon, reason, ok := parseCoordinate(raw.Longitude, 180)
	if !ok {
		return model.Incident{}, reason, false
	}

	ts, ok := ParseTimestamp(raw.Timestamp)
	if !ok {
		return model.Incident{}, DropBadTimestamp, false
	}

	category := upper.String(strings.TrimSpace(raw.Category))
	return model.Incident{
		Timestamp: ts,
		Latitude:  lat,
		Longitude: lon,
		Category:  category,
		Hour:      ts.Hour(),
		Weekday:   Weekday(ts),
		Violent:   ViolentCategories[category],
	}, "", true
}

// parseCoordinate parses a coordinate and checks it lies within [-limit, limit].
func parseCoordinate(f model.RawField, limit float64) (float64, DropReason, bool) {
	s := strings.TrimSpace(f.Value)
	if !f.Valid || s == "" {
		return 0, DropMissingCoordinate, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, DropBadCoordinate, false
	}
	if v < -limit || v > limit {
		return 0, DropOutOfRange, false
	}
	return v, "", true
}

// ParseTimestamp parses s against the supported layouts.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Weekday returns the day of week with Monday as 0 and Sunday as 6.
func Weekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// NormalizeCategory trims and upper-cases a category label.
func NormalizeCategory(s string) string {
	return cases.Upper(language.Und).String(strings.TrimSpace(s))
}
