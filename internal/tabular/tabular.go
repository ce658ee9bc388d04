// Package tabular reads and writes the pipeline's CSV files. The header is
// the schema: readers map columns by name and reject files that are missing
// a required column or carry one they do not know.
package tabular

import (
	"bufio"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"

	"github.com/sells-group/risk-cli/internal/features"
	"github.com/sells-group/risk-cli/internal/model"
)

// ErrSchema is returned when a header does not match the expected columns.
var ErrSchema = eris.New("tabular: header does not match schema")

var (
	// AggregateColumns is the header of an aggregates file.
	AggregateColumns = []string{"latitude", "longitude", "CrimeCount", "ViolentCount", "Risk"}

	// DerivedColumns are the engineered feature columns.
	DerivedColumns = []string{"CrimeDensity", "ViolentRatio", "DistanceFromCenter"}

	// FeatureColumns is the header of a features file.
	FeatureColumns = slices.Concat(AggregateColumns, DerivedColumns)

	// PredictionColumns is the header of a predictions file.
	PredictionColumns = slices.Concat(FeatureColumns, []string{"Prediction", "Probability"})
)

const utf8BOM = "\ufeff"

// ReadAggregates reads an aggregates file. Every aggregate column is required.
func ReadAggregates(r io.Reader) ([]model.LocationAggregate, error) {
	dec, err := newDecoder(r)
	if err != nil {
		return nil, err
	}
	if err := checkHeader(dec.Header(), AggregateColumns, AggregateColumns); err != nil {
		return nil, err
	}

	var out []model.LocationAggregate
	for {
		row := model.LocationAggregate{Risk: model.LabelMissing}
		if err := dec.Decode(&row); err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return nil, eris.Wrapf(err, "tabular: decode aggregate row %d", len(out)+1)
		}
		out = append(out, row)
	}
}

// ReadFeatures reads rows for scoring or export. It accepts either a
// features file or an aggregates file; the Risk column is optional. When the
// derived columns are absent they are computed from the raw ones.
func ReadFeatures(r io.Reader) ([]model.FeatureRow, error) {
	dec, err := newDecoder(r)
	if err != nil {
		return nil, err
	}
	header := dec.Header()
	required := []string{"latitude", "longitude", "CrimeCount", "ViolentCount"}
	if err := checkHeader(header, required, FeatureColumns); err != nil {
		return nil, err
	}

	derived := 0
	for _, c := range DerivedColumns {
		if slices.Contains(header, c) {
			derived++
		}
	}
	if derived != 0 && derived != len(DerivedColumns) {
		return nil, eris.Wrapf(ErrSchema, "derived columns must be all present or all absent (%s)",
			strings.Join(DerivedColumns, ", "))
	}

	var out []model.FeatureRow
	for {
		row := model.FeatureRow{LocationAggregate: model.LocationAggregate{Risk: model.LabelMissing}}
		if err := dec.Decode(&row); err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return nil, eris.Wrapf(err, "tabular: decode feature row %d", len(out)+1)
		}
		if derived == 0 {
			row = features.Engineer(row)
		}
		out = append(out, row)
	}
}

// WriteAggregates writes an aggregates file.
func WriteAggregates(w io.Writer, rows []model.LocationAggregate) error {
	return write(w, rows, model.LocationAggregate{})
}

// WriteFeatures writes a features file.
func WriteFeatures(w io.Writer, rows []model.FeatureRow) error {
	return write(w, rows, model.FeatureRow{})
}

// WritePredictions writes a predictions file: the feature columns followed
// by Prediction and Probability.
func WritePredictions(w io.Writer, preds []model.Prediction) error {
	return write(w, preds, model.Prediction{})
}

// ReadFile opens path and hands it to read.
func ReadFile[T any](path string, read func(io.Reader) ([]T, error)) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "tabular: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	rows, err := read(f)
	if err != nil {
		return nil, eris.Wrapf(err, "tabular: read %s", path)
	}
	return rows, nil
}

// WriteFile creates path, including parent directories, and writes rows
// with write.
func WriteFile[T any](path string, rows []T, write func(io.Writer, []T) error) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "tabular: create directory %s", dir)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "tabular: create %s", path)
	}
	bw := bufio.NewWriter(f)
	if err := write(bw, rows); err != nil {
		f.Close() //nolint:errcheck
		return eris.Wrapf(err, "tabular: write %s", path)
	}
	if err := bw.Flush(); err != nil {
		f.Close() //nolint:errcheck
		return eris.Wrapf(err, "tabular: flush %s", path)
	}
	return eris.Wrapf(f.Close(), "tabular: close %s", path)
}

func newDecoder(r io.Reader) (*csvutil.Decoder, error) {
	br := bufio.NewReader(r)
	if prefix, err := br.Peek(len(utf8BOM)); err == nil && string(prefix) == utf8BOM {
		br.Discard(len(utf8BOM)) //nolint:errcheck
	}
	dec, err := csvutil.NewDecoder(csv.NewReader(br))
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, eris.Wrap(ErrSchema, "empty file has no header")
		}
		return nil, eris.Wrap(err, "tabular: read header")
	}
	return dec, nil
}

// checkHeader requires every column in required and allows only columns in
// allowed. Duplicate columns are rejected.
func checkHeader(header, required, allowed []string) error {
	seen := make(map[string]bool, len(header))
	for _, h := range header {
		if seen[h] {
			return eris.Wrapf(ErrSchema, "duplicate column %q", h)
		}
		seen[h] = true
		if !slices.Contains(allowed, h) {
			return eris.Wrapf(ErrSchema, "unknown column %q", h)
		}
	}
	var missing []string
	for _, c := range required {
		if !seen[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return eris.Wrapf(ErrSchema, "missing columns %s", strings.Join(missing, ", "))
	}
	return nil
}

func write[T any](w io.Writer, rows []T, zero T) error {
	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)
	if err := enc.EncodeHeader(zero); err != nil {
		return eris.Wrap(err, "tabular: encode header")
	}
	for i := range rows {
		if err := enc.Encode(rows[i]); err != nil {
			return eris.Wrapf(err, "tabular: encode row %d", i+1)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "tabular: flush csv")
}
