package source

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/risk-cli/internal/fetcher"
	"github.com/sells-group/risk-cli/internal/model"
)

// feedRecord accepts both the aliased query columns and the portal's own
// export names.
type feedRecord struct {
	Timestamp   *string        `json:"timestamp"`
	Date        *string        `json:"date"`
	Latitude    model.RawField `json:"latitude"`
	Longitude   model.RawField `json:"longitude"`
	Category    *string        `json:"category"`
	PrimaryType *string        `json:"primary_type"`
}

func (r feedRecord) incident() model.RawIncident {
	return model.RawIncident{
		Timestamp: first(r.Timestamp, r.Date),
		Latitude:  r.Latitude,
		Longitude: r.Longitude,
		Category:  first(r.Category, r.PrimaryType),
	}
}

func first(a, b *string) string {
	if a != nil {
		return *a
	}
	if b != nil {
		return *b
	}
	return ""
}

// ReadJSON reads a JSON array of feed records.
func ReadJSON(ctx context.Context, r io.Reader) ([]model.RawIncident, error) {
	recs, err := fetcher.CollectJSONArray[feedRecord](ctx, r)
	if err != nil {
		return nil, eris.Wrap(err, "source: read json")
	}
	out := make([]model.RawIncident, len(recs))
	for i, rec := range recs {
		out[i] = rec.incident()
	}
	return out, nil
}

// csvColumns maps normalized header names to RawIncident fields.
var csvColumns = map[string]string{
	"timestamp":    "timestamp",
	"date":         "timestamp",
	"latitude":     "latitude",
	"longitude":    "longitude",
	"category":     "category",
	"primary_type": "category",
}

func headerKey(h string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(h)), " ", "_")
}

// ReadCSV reads a CSV export. The header must name a timestamp (or date),
// latitude, longitude and category (or primary type) column; other columns
// are ignored. Empty cells are missing values.
func ReadCSV(ctx context.Context, r io.Reader) ([]model.RawIncident, error) {
	stream, err := fetcher.StreamCSV(ctx, r, fetcher.CSVOptions{TrimSpace: true, LazyQuotes: true})
	if err != nil {
		return nil, eris.Wrap(err, "source: read csv")
	}

	idx := map[string]int{}
	for i, h := range stream.Header {
		field, ok := csvColumns[headerKey(h)]
		if !ok {
			continue
		}
		if _, dup := idx[field]; !dup {
			idx[field] = i
		}
	}

	var missing []string
	for _, want := range []string{"timestamp", "latitude", "longitude", "category"} {
		if _, ok := idx[want]; !ok {
			missing = append(missing, want)
		}
	}
	if len(missing) > 0 {
		for range stream.Rows {
		}
		return nil, eris.Errorf("source: csv header is missing %s", strings.Join(missing, ", "))
	}

	cell := func(row []string, field string) (string, bool) {
		i := idx[field]
		if i >= len(row) || row[i] == "" {
			return "", false
		}
		return row[i], true
	}
	raw := func(row []string, field string) model.RawField {
		if v, ok := cell(row, field); ok {
			return model.NewRawField(v)
		}
		return model.RawField{}
	}

	var out []model.RawIncident
	for row := range stream.Rows {
		ts, _ := cell(row, "timestamp")
		cat, _ := cell(row, "category")
		out = append(out, model.RawIncident{
			Timestamp: ts,
			Latitude:  raw(row, "latitude"),
			Longitude: raw(row, "longitude"),
			Category:  cat,
		})
	}
	if err := <-stream.Errs; err != nil {
		return nil, eris.Wrap(err, "source: read csv")
	}
	return out, nil
}

// ReadFile reads a local export, choosing the format by extension.
func ReadFile(ctx context.Context, path string) ([]model.RawIncident, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "source: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return ReadJSON(ctx, f)
	case ".csv":
		return ReadCSV(ctx, f)
	default:
		return nil, eris.Errorf("source: unsupported input format %q (want .json or .csv)", filepath.Ext(path))
	}
}
