package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/srg/pulsesync/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *DB) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock, New(db)
}

func TestMigrate(t *testing.T) {
	db, mock, s := setupMockDB(t)
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS heart_rate`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS step_count`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS activity`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS settings`).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsert(t *testing.T) {
	db, mock, s := setupMockDB(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO heart_rate`).
		WithArgs(int64(10), int64(10), int64(72)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := s.Insert(context.Background(), telemetry.CategoryHeartRate, Row{Start: 10, End: 10, Value: 72})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsert_Failure(t *testing.T) {
	db, mock, s := setupMockDB(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO step_count`).WillReturnError(errors.New("disk I/O error"))

	err := s.Insert(context.Background(), telemetry.CategorySteps, Row{Start: 1, End: 61, Value: 9})

	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "insert", perr.Op)
	assert.Equal(t, telemetry.CategorySteps, perr.Category)
	assert.Contains(t, err.Error(), "disk I/O error")
}

func TestInsert_UnknownCategory(t *testing.T) {
	db, _, s := setupMockDB(t)
	defer db.Close()

	err := s.Insert(context.Background(), telemetry.Category("ekg"), Row{})
	assert.ErrorIs(t, err, ErrUnknownCategory)
}

func TestSelectAll(t *testing.T) {
	db, mock, s := setupMockDB(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "start_time", "end_time", "value"}).
		AddRow(1, 100, 160, 12).
		AddRow(2, 160, 220, 30)
	mock.ExpectQuery(`SELECT id, start_time, end_time, value FROM step_count ORDER BY id`).WillReturnRows(rows)

	got, err := s.SelectAll(context.Background(), telemetry.CategorySteps)
	require.NoError(t, err)
	assert.Equal(t, []Row{
		{ID: 1, Start: 100, End: 160, Value: 12},
		{ID: 2, Start: 160, End: 220, Value: 30},
	}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDropCreate(t *testing.T) {
	db, mock, s := setupMockDB(t)
	defer db.Close()

	mock.ExpectExec(`^DELETE FROM activity$`).WillReturnResult(sqlmock.NewResult(0, 3))

	require.NoError(t, s.DropCreate(context.Background(), telemetry.CategoryActivity))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteThrough(t *testing.T) {
	db, mock, s := setupMockDB(t)
	defer db.Close()

	mock.ExpectExec(`DELETE FROM heart_rate WHERE id <= \?`).
		WithArgs(int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 42))

	require.NoError(t, s.DeleteThrough(context.Background(), telemetry.CategoryHeartRate, 42))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettings(t *testing.T) {
	db, mock, s := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT value FROM settings WHERE key = \?`).
		WithArgs("token").
		WillReturnRows(sqlmock.NewRows([]string{"value"}))
	mock.ExpectExec(`INSERT INTO settings`).
		WithArgs("token", "abc").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(`SELECT value FROM settings WHERE key = \?`).
		WithArgs("token").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow("abc"))

	_, ok, err := s.Get(context.Background(), "token")
	require.NoError(t, err)
	assert.False(t, ok, "missing key MUST report not found without error")

	require.NoError(t, s.Set(context.Background(), "token", "abc"))

	v, ok, err := s.Get(context.Background(), "token")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc", v)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDropCreateKeepsIDsIncreasing(t *testing.T) {
	ctx := context.Background()
	s, err := Open(filepath.Join(t.TempDir(), "buffer.db"))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Insert(ctx, telemetry.CategorySteps, Row{Start: 0, End: 60, Value: 10}))
	require.NoError(t, s.Insert(ctx, telemetry.CategorySteps, Row{Start: 60, End: 120, Value: 11}))
	require.NoError(t, s.DropCreate(ctx, telemetry.CategorySteps))
	require.NoError(t, s.Insert(ctx, telemetry.CategorySteps, Row{Start: 120, End: 180, Value: 12}))

	rows, err := s.SelectAll(ctx, telemetry.CategorySteps)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(3), rows[0].ID, "ids MUST NOT restart after the category is emptied")
}

func TestMemory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Insert(ctx, telemetry.CategoryHeartRate, Row{Start: 1, End: 1, Value: 60}))
	require.NoError(t, m.Insert(ctx, telemetry.CategoryHeartRate, Row{Start: 2, End: 2, Value: 61}))
	require.NoError(t, m.Insert(ctx, telemetry.CategoryHeartRate, Row{Start: 3, End: 3, Value: 62}))

	require.NoError(t, m.DeleteThrough(ctx, telemetry.CategoryHeartRate, 2))
	rows, err := m.SelectAll(ctx, telemetry.CategoryHeartRate)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(3), rows[0].ID)

	require.NoError(t, m.DropCreate(ctx, telemetry.CategoryHeartRate))
	rows, err = m.SelectAll(ctx, telemetry.CategoryHeartRate)
	require.NoError(t, err)
	assert.Empty(t, rows)

	require.NoError(t, m.Insert(ctx, telemetry.CategoryHeartRate, Row{Start: 4, End: 4, Value: 63}))
	rows, err = m.SelectAll(ctx, telemetry.CategoryHeartRate)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(4), rows[0].ID, "ids MUST keep increasing after the category is emptied")

	m.FailWrites = errors.New("read-only")
	assert.Error(t, m.Insert(ctx, telemetry.CategorySteps, Row{}))
	assert.Error(t, m.Set(ctx, "bg", "1"))
}
