// Package syncer periodically uploads buffered telemetry and drops what the
// server accepted.
package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/pulsesync/internal/credential"
	"github.com/srg/pulsesync/internal/live"
	"github.com/srg/pulsesync/internal/omh"
	"github.com/srg/pulsesync/internal/schedule"
	"github.com/srg/pulsesync/internal/telemetry"
)

// DefaultInterval between uploads.
const DefaultInterval = 60 * time.Second

// SyncError is a failed upload attempt. The buffer is left untouched and the
// next tick retries.
type SyncError struct {
	Stage string
	Err   error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync %s failed: %v", e.Stage, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// Buffer is the part of the telemetry buffer the syncer drains.
type Buffer interface {
	SnapshotAll(ctx context.Context) telemetry.Batch
	Acknowledge(ctx context.Context, batch telemetry.Batch)
}

// Poster uploads converted points.
type Poster interface {
	PostBatch(ctx context.Context, token string, points []omh.PointRecord) error
}

type Syncer struct {
	buffer   Buffer
	poster   Poster
	creds    credential.Provider
	feed     *live.Feed
	sched    schedule.Scheduler
	interval time.Duration
	ids      *omh.IDGenerator
	logger   *logrus.Logger

	flushMu sync.Mutex

	mu      sync.Mutex
	timer   schedule.Timer
	running bool
}

func New(buffer Buffer, poster Poster, creds credential.Provider, feed *live.Feed,
	sched schedule.Scheduler, interval time.Duration, logger *logrus.Logger) *Syncer {
	if logger == nil {
		logger = logrus.New()
	}
	if sched == nil {
		sched = schedule.Real()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Syncer{
		buffer:   buffer,
		poster:   poster,
		creds:    creds,
		feed:     feed,
		sched:    sched,
		interval: interval,
		ids:      omh.NewIDGenerator(nil),
		logger:   logger,
	}
}

// Start arms the recurring upload. Ticks stop once ctx ends or Stop is called.
func (s *Syncer) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.armLocked(ctx)
}

// Stop cancels the pending tick. A tick already running completes.
func (s *Syncer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Syncer) armLocked(ctx context.Context) {
	s.timer = s.sched.AfterFunc(s.interval, func() { s.tick(ctx) })
}

func (s *Syncer) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.Flush(ctx); err != nil {
		s.logger.WithError(err).Warn("Upload failed; keeping buffered telemetry")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running && ctx.Err() == nil {
		s.armLocked(ctx)
	}
}

// Flush uploads one snapshot of the buffer and returns the number of points
// accepted. An empty buffer is a no-op.
func (s *Syncer) Flush(ctx context.Context) (int, error) {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	batch := s.buffer.SnapshotAll(ctx)
	if batch.Empty() {
		s.logger.Debug("Nothing to upload")
		return 0, nil
	}

	token, err := s.creds.Token(ctx)
	if err != nil {
		return 0, &SyncError{Stage: "credential", Err: err}
	}

	points := omh.FromBatch(batch, s.ids)
	if err := s.poster.PostBatch(ctx, token, points); err != nil {
		return 0, &SyncError{Stage: "upload", Err: err}
	}

	s.buffer.Acknowledge(ctx, batch)

	s.logger.WithFields(logrus.Fields{
		"heart_rate": len(batch.HeartRate),
		"steps":      len(batch.Steps),
		"activity":   len(batch.Activity),
	}).Info("Uploaded buffered telemetry")
	if s.feed != nil {
		s.feed.Notify("Data posted to server (%d data points)", len(points))
	}
	return len(points), nil
}
