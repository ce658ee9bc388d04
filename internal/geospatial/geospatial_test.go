package geospatial

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"go.uber.org/zap"

	"github.com/sells-group/risk-cli/internal/db"
	"github.com/sells-group/risk-cli/internal/features"
	"github.com/sells-group/risk-cli/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func TestEncodePoint(t *testing.T) {
	data, err := EncodePoint(41.8781, -87.6298)
	require.NoError(t, err)

	g, err := ewkb.Unmarshal(data)
	require.NoError(t, err)
	p, ok := g.(*geom.Point)
	require.True(t, ok)
	assert.Equal(t, SRID, p.SRID())
	assert.Equal(t, -87.6298, p.X())
	assert.Equal(t, 41.8781, p.Y())
}

func TestMigrationNames(t *testing.T) {
	names, err := migrationNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"001_postgis.sql", "002_location_features.sql"}, names)
}

func expectLock(mock pgxmock.PgxPoolIface) {
	mock.ExpectExec("SELECT pg_advisory_lock").WithArgs(migrationLockID).WillReturnResult(pgxmock.NewResult("SELECT", 1))
}

func expectUnlock(mock pgxmock.PgxPoolIface) {
	mock.ExpectExec("SELECT pg_advisory_unlock").WithArgs(migrationLockID).WillReturnResult(pgxmock.NewResult("SELECT", 1))
}

func TestMigrate_FreshDB(t *testing.T) {
	mock := newMock(t)
	expectLock(mock)
	mock.ExpectExec("CREATE SCHEMA IF NOT EXISTS risk").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT filename FROM risk.schema_migrations").
		WillReturnRows(pgxmock.NewRows([]string{"filename"}))
	mock.ExpectExec("CREATE EXTENSION IF NOT EXISTS postgis").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("INSERT INTO risk.schema_migrations").WithArgs("001_postgis.sql").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS risk.location_features").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("INSERT INTO risk.schema_migrations").WithArgs("002_location_features.sql").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	expectUnlock(mock)

	require.NoError(t, Migrate(context.Background(), mock))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_PartiallyApplied(t *testing.T) {
	mock := newMock(t)
	expectLock(mock)
	mock.ExpectExec("CREATE SCHEMA IF NOT EXISTS risk").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT filename FROM risk.schema_migrations").
		WillReturnRows(pgxmock.NewRows([]string{"filename"}).AddRow("001_postgis.sql"))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS risk.location_features").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("INSERT INTO risk.schema_migrations").WithArgs("002_location_features.sql").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	expectUnlock(mock)

	require.NoError(t, Migrate(context.Background(), mock))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_ApplyError(t *testing.T) {
	mock := newMock(t)
	expectLock(mock)
	mock.ExpectExec("CREATE SCHEMA IF NOT EXISTS risk").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT filename FROM risk.schema_migrations").
		WillReturnRows(pgxmock.NewRows([]string{"filename"}))
	mock.ExpectExec("CREATE EXTENSION").WillReturnError(errors.New("extension \"postgis\" is not available"))
	expectUnlock(mock)

	err := Migrate(context.Background(), mock)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "apply migration 001_postgis.sql")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_LockError(t *testing.T) {
	mock := newMock(t)
	mock.ExpectExec("SELECT pg_advisory_lock").WithArgs(migrationLockID).WillReturnError(errors.New("conn refused"))

	err := Migrate(context.Background(), mock)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "acquire migration lock")
}

func expectUpsert(mock pgxmock.PgxPoolIface, table string, n int64) {
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{db.TempTable(table)}, Columns).WillReturnResult(n)
	mock.ExpectExec("DELETE FROM").WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec("INSERT INTO").WillReturnResult(pgxmock.NewResult("INSERT", n))
	mock.ExpectCommit()
}

func sampleRows() []model.FeatureRow {
	return []model.FeatureRow{
		features.FromAggregate(model.LocationAggregate{Latitude: 41.9, Longitude: -87.6, CrimeCount: 5, ViolentCount: 2, Risk: model.LabelHigh}),
		features.FromAggregate(model.LocationAggregate{Latitude: 41.7, Longitude: -87.7, CrimeCount: 1, Risk: model.LabelMissing}),
	}
}

func TestExportFeatures(t *testing.T) {
	mock := newMock(t)
	expectUpsert(mock, DefaultTable, 2)

	n, err := ExportFeatures(context.Background(), mock, "", sampleRows())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExportPredictions_CustomTable(t *testing.T) {
	mock := newMock(t)
	expectUpsert(mock, "public.scores", 1)

	preds := []model.Prediction{{FeatureRow: sampleRows()[0], Predicted: 1, Probability: 0.92}}
	n, err := ExportPredictions(context.Background(), mock, "public.scores", preds)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExportFeatures_Empty(t *testing.T) {
	mock := newMock(t)
	n, err := ExportFeatures(context.Background(), mock, "", nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExportFeatures_Error(t *testing.T) {
	mock := newMock(t)
	mock.ExpectBegin().WillReturnError(errors.New("db down"))

	_, err := ExportFeatures(context.Background(), mock, "", sampleRows())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "export to risk.location_features")
}

func TestFeatureRow_Values(t *testing.T) {
	r := sampleRows()
	row, err := featureRow(r[0], nil, nil)
	require.NoError(t, err)
	require.Len(t, row, len(Columns))
	assert.Equal(t, int16(1), row[4])
	assert.Nil(t, row[8])

	row, err = featureRow(r[1], int16(0), 0.1)
	require.NoError(t, err)
	assert.Nil(t, row[4], "missing label exports as NULL")
	assert.Equal(t, int16(0), row[8])
}
