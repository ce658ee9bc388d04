// Package model defines the record types that flow through the risk pipeline.
package model

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
)

// RawField is a nullable string field from the incident feed. The portal
// serializes coordinates as strings, some exports as bare numbers, and
// missing values as null or an absent key.
type RawField struct {
	Value string
	Valid bool
}

// NewRawField returns a present field holding s.
func NewRawField(s string) RawField {
	return RawField{Value: s, Valid: true}
}

// UnmarshalJSON accepts a JSON string, a JSON number, or null.
func (f *RawField) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = RawField{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return eris.Wrap(err, "model: decode raw field")
		}
		*f = RawField{Value: s, Valid: true}
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return eris.Wrapf(err, "model: raw field must be string, number or null, got %s", string(data))
	}
	*f = RawField{Value: n.String(), Valid: true}
	return nil
}

// MarshalJSON writes the field as a string, or null when absent.
func (f RawField) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.Quote(f.Value)), nil
}

// RawIncident is one event as delivered by the incident feed.
type RawIncident struct {
	Timestamp string   `json:"timestamp"`
	Latitude  RawField `json:"latitude"`
	Longitude RawField `json:"longitude"`
	Category  string   `json:"category"`
}

// Incident is a typed, validated incident. Coordinates are always finite.
type Incident struct {
	Timestamp time.Time `json:"timestamp"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Category  string    `json:"category"`
	Hour      int       `json:"hour"`    // 0-23
	Weekday   int       `json:"weekday"` // 0=Monday .. 6=Sunday
	Violent   bool      `json:"violent"`
}
