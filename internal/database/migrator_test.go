package database

import (
	"context"
	"errors"
	"io"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return NewDBFromConn(conn), mock
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func expectMarkerCheck(mock sqlmock.Sqlmock, applied bool) {
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM migrations_applied WHERE name = $1)")).
		WithArgs(legacyCopyMarker).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(applied))
}

func expectLegacyDetection(mock sqlmock.Sqlmock, tables ...string) {
	rows := sqlmock.NewRows([]string{"table_name"})
	for _, table := range tables {
		rows.AddRow(table)
	}
	mock.ExpectQuery("SELECT table_name FROM information_schema.tables").
		WithArgs(legacyTableHyperoptRuns, legacyTableBacktestRuns, legacyTableStrategyOpts).
		WillReturnRows(rows)
}

func TestMigrateNoLegacyTables(t *testing.T) {
	db, mock := newMockDB(t)
	m := NewMigrator(db, quietLogger())

	expectMarkerCheck(mock, false)
	expectLegacyDetection(mock)

	report, err := m.Migrate(context.Background())
	require.NoError(t, err)
	assert.False(t, report.AlreadyApplied)
	assert.Zero(t, report.HyperoptRows)
	assert.Zero(t, report.BacktestRows)
	assert.Empty(t, report.LegacyTables)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateAlreadyApplied(t *testing.T) {
	db, mock := newMockDB(t)
	m := NewMigrator(db, quietLogger())

	expectMarkerCheck(mock, true)

	report, err := m.Migrate(context.Background())
	require.NoError(t, err)
	assert.True(t, report.AlreadyApplied)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateCopiesLegacyRuns(t *testing.T) {
	db, mock := newMockDB(t)
	m := NewMigrator(db, quietLogger())

	expectMarkerCheck(mock, false)
	expectLegacyDetection(mock, legacyTableHyperoptRuns, legacyTableBacktestRuns)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO hyperopt_results").
		WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectExec("INSERT INTO backtest_results").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO migrations_applied (name) VALUES ($1)")).
		WithArgs(legacyCopyMarker).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	report, err := m.Migrate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), report.HyperoptRows)
	assert.Equal(t, int64(3), report.BacktestRows)
	assert.Equal(t, []string{legacyTableHyperoptRuns, legacyTableBacktestRuns}, report.LegacyTables)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateOldestGenerationOnly(t *testing.T) {
	db, mock := newMockDB(t)
	m := NewMigrator(db, quietLogger())

	expectMarkerCheck(mock, false)
	expectLegacyDetection(mock, legacyTableStrategyOpts)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO hyperopt_results").
		WillReturnResult(sqlmock.NewResult(0, 7))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO migrations_applied (name) VALUES ($1)")).
		WithArgs(legacyCopyMarker).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	report, err := m.Migrate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), report.HyperoptRows)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateRollsBackOnCopyError(t *testing.T) {
	db, mock := newMockDB(t)
	m := NewMigrator(db, quietLogger())

	expectMarkerCheck(mock, false)
	expectLegacyDetection(mock, legacyTableHyperoptRuns)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO hyperopt_results").
		WillReturnError(errors.New("column mismatch"))
	mock.ExpectRollback()

	_, err := m.Migrate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hyperopt_runs")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCleanupLegacyRequiresConfirmation(t *testing.T) {
	db, _ := newMockDB(t)
	m := NewMigrator(db, quietLogger())

	err := m.CleanupLegacy(context.Background(), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "confirmation")
}

func TestCleanupLegacyRequiresAppliedMigration(t *testing.T) {
	db, mock := newMockDB(t)
	m := NewMigrator(db, quietLogger())

	expectMarkerCheck(mock, false)

	err := m.CleanupLegacy(context.Background(), true)
	require.Error(t, err)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCleanupLegacyDropsTables(t *testing.T) {
	db, mock := newMockDB(t)
	m := NewMigrator(db, quietLogger())

	expectMarkerCheck(mock, true)
	mock.ExpectExec("DROP TABLE IF EXISTS backtest_runs").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DROP TABLE IF EXISTS hyperopt_runs").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DROP TABLE IF EXISTS strategy_optimizations").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := m.CleanupLegacy(context.Background(), true)
	require.NoError(t, err)

	require.NoError(t, mock.ExpectationsWereMet())
}
