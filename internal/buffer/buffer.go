// Package buffer is the append-only local telemetry buffer drained by the sync scheduler.
package buffer

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/pulsesync/internal/store"
	"github.com/srg/pulsesync/internal/telemetry"
)

// Store is the keyed-row part of the durable store.
type Store interface {
	Insert(ctx context.Context, cat telemetry.Category, row store.Row) error
	SelectAll(ctx context.Context, cat telemetry.Category) ([]store.Row, error)
	DropCreate(ctx context.Context, cat telemetry.Category) error
	DeleteThrough(ctx context.Context, cat telemetry.Category, maxID int64) error
}

// Buffer persists decoded records per category. Each category has its own
// readers-writer lock: appends and clears are writers, snapshots are readers.
type Buffer struct {
	store  Store
	locks  map[telemetry.Category]*sync.RWMutex
	logger *logrus.Logger
}

func New(s Store, logger *logrus.Logger) *Buffer {
	if logger == nil {
		logger = logrus.New()
	}
	locks := make(map[telemetry.Category]*sync.RWMutex, len(telemetry.Categories))
	for _, cat := range telemetry.Categories {
		locks[cat] = &sync.RWMutex{}
	}
	return &Buffer{store: s, locks: locks, logger: logger}
}

// Append persists one record before returning. Store failures are logged and the
// record is dropped; ingestion keeps going.
func (b *Buffer) Append(ctx context.Context, record any) {
	cat, row, ok := toRow(record)
	if !ok {
		b.logger.WithField("type", fmt.Sprintf("%T", record)).Warn("Ignoring record of unsupported type")
		return
	}

	lock := b.locks[cat]
	lock.Lock()
	err := b.store.Insert(ctx, cat, row)
	lock.Unlock()

	if err != nil {
		b.logger.WithFields(logrus.Fields{
			"category": cat,
			"error":    err,
		}).Error("Failed to buffer telemetry record")
	}
}

// SnapshotAll reads every category. A category that fails to read is logged and
// left empty in the batch, so the next snapshot retries it.
func (b *Buffer) SnapshotAll(ctx context.Context) telemetry.Batch {
	batch := telemetry.Batch{Marks: make(map[telemetry.Category]int64, len(telemetry.Categories))}

	for _, cat := range telemetry.Categories {
		lock := b.locks[cat]
		lock.RLock()
		rows, err := b.store.SelectAll(ctx, cat)
		lock.RUnlock()

		if err != nil {
			b.logger.WithFields(logrus.Fields{
				"category": cat,
				"error":    err,
			}).Error("Failed to read buffered telemetry")
			continue
		}

		for _, r := range rows {
			if r.ID > batch.Marks[cat] {
				batch.Marks[cat] = r.ID
			}
			switch cat {
			case telemetry.CategoryHeartRate:
				batch.HeartRate = append(batch.HeartRate, telemetry.HeartRateSample{
					Timestamp: uint32(r.Start), BPM: uint8(r.Value),
				})
			case telemetry.CategorySteps:
				batch.Steps = append(batch.Steps, telemetry.StepInterval{
					Start: uint32(r.Start), End: uint32(r.End), Steps: uint16(r.Value),
				})
			case telemetry.CategoryActivity:
				batch.Activity = append(batch.Activity, telemetry.ActivityInterval{
					Start: uint32(r.Start), End: uint32(r.End), ActiveSeconds: uint16(r.Value),
				})
			}
		}
	}
	return batch
}

// Clear empties every category unconditionally. Calling it on an empty buffer is a no-op.
func (b *Buffer) Clear(ctx context.Context) {
	for _, cat := range telemetry.Categories {
		lock := b.locks[cat]
		lock.Lock()
		err := b.store.DropCreate(ctx, cat)
		lock.Unlock()

		if err != nil {
			b.logger.WithFields(logrus.Fields{
				"category": cat,
				"error":    err,
			}).Error("Failed to clear buffered telemetry")
		}
	}
}

// Acknowledge removes exactly the rows contained in batch. Records appended after
// the snapshot was taken stay buffered.
func (b *Buffer) Acknowledge(ctx context.Context, batch telemetry.Batch) {
	for cat, mark := range batch.Marks {
		if mark <= 0 {
			continue
		}
		lock, ok := b.locks[cat]
		if !ok {
			continue
		}
		lock.Lock()
		err := b.store.DeleteThrough(ctx, cat, mark)
		lock.Unlock()

		if err != nil {
			b.logger.WithFields(logrus.Fields{
				"category": cat,
				"through":  mark,
				"error":    err,
			}).Error("Failed to drop acknowledged telemetry")
		}
	}
}

func toRow(record any) (telemetry.Category, store.Row, bool) {
	switch r := record.(type) {
	case telemetry.HeartRateSample:
		return telemetry.CategoryHeartRate, store.Row{Start: int64(r.Timestamp), End: int64(r.Timestamp), Value: int64(r.BPM)}, true
	case telemetry.StepInterval:
		return telemetry.CategorySteps, store.Row{Start: int64(r.Start), End: int64(r.End), Value: int64(r.Steps)}, true
	case telemetry.ActivityInterval:
		return telemetry.CategoryActivity, store.Row{Start: int64(r.Start), End: int64(r.End), Value: int64(r.ActiveSeconds)}, true
	default:
		return "", store.Row{}, false
	}
}
