package geospatial

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"go.uber.org/zap"

	"github.com/sells-group/risk-cli/internal/db"
	"github.com/sells-group/risk-cli/internal/model"
)

// SRID is WGS 84.
const SRID = 4326

// DefaultTable is the export target created by Migrate.
const DefaultTable = "risk.location_features"

// Columns is the export column order.
var Columns = []string{
	"latitude",
	"longitude",
	"crime_count",
	"violent_count",
	"risk",
	"crime_density",
	"violent_ratio",
	"distance_from_center",
	"prediction",
	"probability",
	"geom",
}

var conflictKeys = []string{"latitude", "longitude"}

// EncodePoint returns the EWKB of a lon/lat point with SRID 4326.
func EncodePoint(lat, lon float64) ([]byte, error) {
	p := geom.NewPointFlat(geom.XY, []float64{lon, lat}).SetSRID(SRID)
	data, err := ewkb.Marshal(p, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "geospatial: encode point")
	}
	return data, nil
}

func label(l model.Label) any {
	if !l.Valid() {
		return nil
	}
	return int16(l)
}

func featureRow(r model.FeatureRow, prediction, probability any) ([]any, error) {
	pt, err := EncodePoint(r.Latitude, r.Longitude)
	if err != nil {
		return nil, err
	}
	return []any{
		r.Latitude,
		r.Longitude,
		int32(r.CrimeCount),
		int32(r.ViolentCount),
		label(r.Risk),
		r.CrimeDensity,
		r.ViolentRatio,
		r.DistanceFromCenter,
		prediction,
		probability,
		pt,
	}, nil
}

// ExportFeatures upserts feature rows keyed on their coordinates. Existing
// prediction columns are overwritten with NULL.
func ExportFeatures(ctx context.Context, pool db.Pool, table string, rows []model.FeatureRow) (int64, error) {
	out := make([][]any, 0, len(rows))
	for _, r := range rows {
		row, err := featureRow(r, nil, nil)
		if err != nil {
			return 0, err
		}
		out = append(out, row)
	}
	return upsert(ctx, pool, table, out)
}

// ExportPredictions upserts scored rows, filling the prediction columns.
func ExportPredictions(ctx context.Context, pool db.Pool, table string, preds []model.Prediction) (int64, error) {
	out := make([][]any, 0, len(preds))
	for _, p := range preds {
		row, err := featureRow(p.FeatureRow, int16(p.Predicted), p.Probability)
		if err != nil {
			return 0, err
		}
		out = append(out, row)
	}
	return upsert(ctx, pool, table, out)
}

func upsert(ctx context.Context, pool db.Pool, table string, rows [][]any) (int64, error) {
	if table == "" {
		table = DefaultTable
	}
	n, err := db.BulkUpsert(ctx, pool, db.UpsertConfig{
		Table:        table,
		Columns:      Columns,
		ConflictKeys: conflictKeys,
	}, rows)
	if err != nil {
		return 0, eris.Wrapf(err, "geospatial: export to %s", table)
	}
	zap.L().Info("geospatial: exported locations",
		zap.String("table", table),
		zap.Int("rows", len(rows)),
		zap.Int64("affected", n),
	)
	return n, nil
}
