package store

import (
	"context"
	"sync"

	"github.com/srg/pulsesync/internal/telemetry"
)

// Memory is an in-process store with the same contract as DB.
type Memory struct {
	mu       sync.Mutex
	nextID   map[telemetry.Category]int64
	rows     map[telemetry.Category][]Row
	settings map[string]string

	// FailWrites makes Insert, DropCreate, DeleteThrough and Set return an error.
	FailWrites error
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		nextID:   make(map[telemetry.Category]int64),
		rows:     make(map[telemetry.Category][]Row),
		settings: make(map[string]string),
	}
}

func (m *Memory) Insert(_ context.Context, cat telemetry.Category, row Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := tableFor(cat); err != nil {
		return &PersistenceError{Op: "insert", Category: cat, Err: err}
	}
	if m.FailWrites != nil {
		return &PersistenceError{Op: "insert", Category: cat, Err: m.FailWrites}
	}
	m.nextID[cat]++
	row.ID = m.nextID[cat]
	m.rows[cat] = append(m.rows[cat], row)
	return nil
}

func (m *Memory) SelectAll(_ context.Context, cat telemetry.Category) ([]Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := tableFor(cat); err != nil {
		return nil, &PersistenceError{Op: "select", Category: cat, Err: err}
	}
	return append([]Row(nil), m.rows[cat]...), nil
}

func (m *Memory) DropCreate(_ context.Context, cat telemetry.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return &PersistenceError{Op: "drop", Category: cat, Err: m.FailWrites}
	}
	delete(m.rows, cat)
	return nil
}

func (m *Memory) DeleteThrough(_ context.Context, cat telemetry.Category, maxID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return &PersistenceError{Op: "delete", Category: cat, Err: m.FailWrites}
	}
	kept := m.rows[cat][:0]
	for _, r := range m.rows[cat] {
		if r.ID > maxID {
			kept = append(kept, r)
		}
	}
	m.rows[cat] = kept
	return nil
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.settings[key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return &PersistenceError{Op: "set " + key, Err: m.FailWrites}
	}
	m.settings[key] = value
	return nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }
