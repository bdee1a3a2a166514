// Package store keeps buffered telemetry and scalar settings in a SQLite file (WAL mode).
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/srg/pulsesync/internal/telemetry"
)

// Row is one buffered record. Heart-rate rows use Start == End.
type Row struct {
	ID    int64
	Start int64
	End   int64
	Value int64
}

// PersistenceError wraps a failed store operation.
type PersistenceError struct {
	Op       string
	Category telemetry.Category
	Err      error
}

func (e *PersistenceError) Error() string {
	if e.Category != "" {
		return fmt.Sprintf("store: %s %s: %v", e.Op, e.Category, e.Err)
	}
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ErrUnknownCategory is returned for a category with no backing table.
var ErrUnknownCategory = errors.New("unknown telemetry category")

var tables = map[telemetry.Category]string{
	telemetry.CategoryHeartRate: "heart_rate",
	telemetry.CategorySteps:     "step_count",
	telemetry.CategoryActivity:  "activity",
}

func tableFor(cat telemetry.Category) (string, error) {
	t, ok := tables[cat]
	if !ok {
		return "", ErrUnknownCategory
	}
	return t, nil
}

// DB wraps *sql.DB with the telemetry and settings helpers.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite file at path and applies the schema.
func Open(path string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path)
	raw, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	if err := raw.Ping(); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	// One writer; WAL still allows concurrent readers.
	raw.SetMaxOpenConns(1)

	s := New(raw)
	if err := s.Migrate(context.Background()); err != nil {
		_ = raw.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an already opened database without migrating it.
func New(db *sql.DB) *DB {
	return &DB{db: db}
}

// Close closes the underlying database.
func (s *DB) Close() error {
	return s.db.Close()
}

// Migrate creates every table that does not exist yet.
func (s *DB) Migrate(ctx context.Context) error {
	for _, cat := range telemetry.Categories {
		if _, err := s.db.ExecContext(ctx, createTable(tables[cat])); err != nil {
			return fmt.Errorf("store: migrate: %w", err)
		}
	}
	if _, err := s.db.ExecContext(ctx, ddlSettings); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

func createTable(name string) string {
	return `CREATE TABLE IF NOT EXISTS ` + name + ` (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    start_time INTEGER NOT NULL, -- epoch seconds
    end_time   INTEGER NOT NULL,
    value      INTEGER NOT NULL
)`
}

const ddlSettings = `
CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
)`

// Insert appends one row to the category table.
func (s *DB) Insert(ctx context.Context, cat telemetry.Category, row Row) error {
	table, err := tableFor(cat)
	if err != nil {
		return &PersistenceError{Op: "insert", Category: cat, Err: err}
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO `+table+` (start_time, end_time, value) VALUES (?, ?, ?)`,
		row.Start, row.End, row.Value)
	if err != nil {
		return &PersistenceError{Op: "insert", Category: cat, Err: err}
	}
	return nil
}

// SelectAll returns every row of the category in insertion order.
func (s *DB) SelectAll(ctx context.Context, cat telemetry.Category) ([]Row, error) {
	table, err := tableFor(cat)
	if err != nil {
		return nil, &PersistenceError{Op: "select", Category: cat, Err: err}
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, start_time, end_time, value FROM `+table+` ORDER BY id`)
	if err != nil {
		return nil, &PersistenceError{Op: "select", Category: cat, Err: err}
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.ID, &r.Start, &r.End, &r.Value); err != nil {
			return nil, &PersistenceError{Op: "select", Category: cat, Err: err}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &PersistenceError{Op: "select", Category: cat, Err: err}
	}
	return out, nil
}

// DropCreate empties the category. Row ids keep increasing afterwards, so a
// high-water mark taken before the call never covers rows inserted after it.
func (s *DB) DropCreate(ctx context.Context, cat telemetry.Category) error {
	table, err := tableFor(cat)
	if err != nil {
		return &PersistenceError{Op: "drop", Category: cat, Err: err}
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM `+table); err != nil {
		return &PersistenceError{Op: "drop", Category: cat, Err: err}
	}
	return nil
}

// DeleteThrough removes every row with id <= maxID.
func (s *DB) DeleteThrough(ctx context.Context, cat telemetry.Category, maxID int64) error {
	table, err := tableFor(cat)
	if err != nil {
		return &PersistenceError{Op: "delete", Category: cat, Err: err}
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id <= ?`, maxID); err != nil {
		return &PersistenceError{Op: "delete", Category: cat, Err: err}
	}
	return nil
}

// Get returns the setting value and whether it exists.
func (s *DB) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, &PersistenceError{Op: "get " + key, Err: err}
	}
	return v, true, nil
}

// Set stores (or replaces) a setting value.
func (s *DB) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	if err != nil {
		return &PersistenceError{Op: "set " + key, Err: err}
	}
	return nil
}
