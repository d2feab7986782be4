package store

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresFromPool(mock), mock
}

func expectSaveHeader(mock pgxmock.PgxPoolIface, a *Artifact) {
	mock.ExpectBegin()
	mock.ExpectExec(`TRUNCATE casecast.artifact, casecast.curve_points, casecast.growth_rates, casecast.snapshot`).
		WillReturnResult(pgxmock.NewResult("TRUNCATE", 0))
	mock.ExpectExec(`INSERT INTO casecast.artifact`).
		WithArgs(a.RunID, a.RunDate, a.GeneratedAt, "confirmed", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
}

func TestPostgresStore_Save(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	a := sampleArtifact(t)

	expectSaveHeader(mock, a)
	mock.ExpectCopyFrom(pgx.Identifier{"casecast", "curve_points"}, []string{"kind", "iso3", "name", "day", "value"}).
		WillReturnResult(18)
	mock.ExpectCopyFrom(pgx.Identifier{"casecast", "growth_rates"}, []string{"iso3", "name", "rate"}).
		WillReturnResult(2)
	mock.ExpectCopyFrom(pgx.Identifier{"casecast", "snapshot"}, []string{"iso3", "name", "day", "value", "population", "per_capita"}).
		WillReturnResult(2)
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_casecast_countries"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_casecast_countries"}, []string{"iso3", "iso2", "name", "population", "lat", "long"}).
		WillReturnResult(1)
	mock.ExpectExec(`INSERT INTO "casecast"."countries"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, s.Save(context.Background(), a))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Save_RollsBackOnCopyFailure(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	a := sampleArtifact(t)

	expectSaveHeader(mock, a)
	mock.ExpectCopyFrom(pgx.Identifier{"casecast", "curve_points"}, []string{"kind", "iso3", "name", "day", "value"}).
		WillReturnError(fmt.Errorf("disk full"))
	mock.ExpectRollback()

	err := s.Save(context.Background(), a)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO casecast.curve_points")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Save_InvalidArtifactNeverTouchesDB(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	a := sampleArtifact(t)
	a.UpperBound.Columns[1].Values = nil

	require.Error(t, s.Save(context.Background(), a))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Load_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT run_id::text, run_date, generated_at, metric, window_spec, skipped FROM casecast.artifact`).
		WillReturnError(pgx.ErrNoRows)

	_, err := s.Load(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Load(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	want := sampleArtifact(t)
	windowJSON, err := json.Marshal(want.Window)
	require.NoError(t, err)
	skippedJSON, err := json.Marshal(want.Skipped)
	require.NoError(t, err)

	mock.ExpectQuery(`FROM casecast.artifact`).
		WillReturnRows(pgxmock.NewRows([]string{"run_id", "run_date", "generated_at", "metric", "window_spec", "skipped"}).
			AddRow(want.RunID, want.RunDate, want.GeneratedAt, "confirmed", windowJSON, skippedJSON))
	mock.ExpectQuery(`FROM casecast.growth_rates`).
		WillReturnRows(pgxmock.NewRows([]string{"iso3", "name", "rate"}).
			AddRow("FRA", "France", 1.2).
			AddRow("ITA", "Italy", 1.1))

	curves := pgxmock.NewRows([]string{"kind", "iso3", "name", "day", "value"})
	for _, kt := range []struct {
		kind  string
		table Table
	}{{kindLower, want.LowerBound}, {kindPrediction, want.Prediction}, {kindUpper, want.UpperBound}} {
		for _, c := range kt.table.Columns {
			for d, v := range c.Values {
				curves.AddRow(kt.kind, c.ISO3, c.Name, kt.table.Dates[d], v)
			}
		}
	}
	mock.ExpectQuery(`FROM casecast.curve_points`).WillReturnRows(curves)

	per := 1.5
	mock.ExpectQuery(`FROM casecast.snapshot`).
		WillReturnRows(pgxmock.NewRows([]string{"iso3", "name", "day", "value", "population", "per_capita"}).
			AddRow("ITA", "Italy", runDate, 220.0, int64(60000000), &per).
			AddRow("FRA", "France", runDate, 120.0, int64(0), nil))
	mock.ExpectQuery(`FROM casecast.countries`).
		WillReturnRows(pgxmock.NewRows([]string{"iso3", "iso2", "name", "population", "lat", "long"}).
			AddRow("FRA", "FR", "France", int64(0), 46.0, 2.0))

	got, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want.RunID, got.RunID)
	assert.Equal(t, want.Window, got.Window)
	assert.Equal(t, want.Skipped, got.Skipped)
	assert.Equal(t, want.GrowthRates, got.GrowthRates)
	assert.Equal(t, want.Prediction, got.Prediction)
	assert.Equal(t, want.LowerBound, got.LowerBound)
	assert.Equal(t, want.UpperBound, got.UpperBound)
	assert.Equal(t, want.Snapshot, got.Snapshot)
	assert.Equal(t, want.Countries, got.Countries)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec("SELECT pg_advisory_lock").WithArgs(pgxmock.AnyArg()).WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec(`CREATE SCHEMA IF NOT EXISTS "casecast"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT filename FROM").
		WillReturnRows(pgxmock.NewRows([]string{"filename"}).AddRow("001_artifact.sql").AddRow("002_refresh_runs.sql"))
	mock.ExpectExec("SELECT pg_advisory_unlock").WithArgs(pgxmock.AnyArg()).WillReturnResult(pgxmock.NewResult("SELECT", 1))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Close(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectClose()
	require.NoError(t, s.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}
