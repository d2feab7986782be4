package db

import (
	"context"
	"fmt"
	"testing"
	"testing/fstest"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var testMigrations = fstest.MapFS{
	"migrations/002_runs.sql": {Data: []byte("CREATE TABLE casecast.refresh_runs (id UUID)")},
	"migrations/001_init.sql": {Data: []byte("CREATE TABLE casecast.artifact (run_id UUID)")},
	"migrations/README.md":    {Data: []byte("not sql")},
}

func expectLock(mock pgxmock.PgxPoolIface) {
	mock.ExpectExec("SELECT pg_advisory_lock").WithArgs(MigrationLockID).WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec("CREATE SCHEMA IF NOT EXISTS").WillReturnResult(pgxmock.NewResult("CREATE", 0))
}

func expectUnlock(mock pgxmock.PgxPoolIface) {
	mock.ExpectExec("SELECT pg_advisory_unlock").WithArgs(MigrationLockID).WillReturnResult(pgxmock.NewResult("SELECT", 1))
}

func TestMigrate_FreshDB(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	expectLock(mock)
	mock.ExpectQuery(`SELECT filename FROM "casecast"."schema_migrations"`).
		WillReturnRows(pgxmock.NewRows([]string{"filename"}))
	mock.ExpectExec("CREATE TABLE casecast.artifact").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("INSERT INTO").WithArgs("001_init.sql").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("CREATE TABLE casecast.refresh_runs").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("INSERT INTO").WithArgs("002_runs.sql").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	expectUnlock(mock)

	require.NoError(t, Migrate(context.Background(), mock, testMigrations, "migrations", "casecast"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_SkipsApplied(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	expectLock(mock)
	mock.ExpectQuery("SELECT filename FROM").
		WillReturnRows(pgxmock.NewRows([]string{"filename"}).AddRow("001_init.sql"))
	mock.ExpectExec("CREATE TABLE casecast.refresh_runs").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("INSERT INTO").WithArgs("002_runs.sql").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	expectUnlock(mock)

	require.NoError(t, Migrate(context.Background(), mock, testMigrations, "migrations", "casecast"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_ApplyFailsStillUnlocks(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	expectLock(mock)
	mock.ExpectQuery("SELECT filename FROM").WillReturnRows(pgxmock.NewRows([]string{"filename"}))
	mock.ExpectExec("CREATE TABLE casecast.artifact").WillReturnError(fmt.Errorf("syntax error"))
	expectUnlock(mock)

	err = Migrate(context.Background(), mock, testMigrations, "migrations", "casecast")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "apply migration 001_init.sql")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_LockFails(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("SELECT pg_advisory_lock").WithArgs(MigrationLockID).WillReturnError(fmt.Errorf("connection refused"))

	err = Migrate(context.Background(), mock, testMigrations, "migrations", "casecast")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "acquire migration advisory lock")
	assert.NoError(t, mock.ExpectationsWereMet())
}
