//go:build test

package buffer

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/srg/pulsesync/internal/store"
	"github.com/srg/pulsesync/internal/telemetry"
	"github.com/stretchr/testify/suite"
)

type BufferTestSuite struct {
	suite.Suite
	ctx    context.Context
	store  *store.Memory
	hook   *test.Hook
	buffer *Buffer
}

func (s *BufferTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = store.NewMemory()

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	s.hook = hook
	s.buffer = New(s.store, logger)
}

func (s *BufferTestSuite) TestAppendThenSnapshot() {
	// GOAL: Verify an appended record is visible to the next snapshot
	//
	// TEST SCENARIO: append one record per category → snapshot → every record present

	s.buffer.Append(s.ctx, telemetry.HeartRateSample{Timestamp: 10, BPM: 72})
	s.buffer.Append(s.ctx, telemetry.StepInterval{Start: 100, End: 160, Steps: 42})
	s.buffer.Append(s.ctx, telemetry.ActivityInterval{Start: 100, End: 160, ActiveSeconds: 30})

	batch := s.buffer.SnapshotAll(s.ctx)

	s.Require().Equal([]telemetry.HeartRateSample{{Timestamp: 10, BPM: 72}}, batch.HeartRate)
	s.Require().Equal([]telemetry.StepInterval{{Start: 100, End: 160, Steps: 42}}, batch.Steps)
	s.Require().Equal([]telemetry.ActivityInterval{{Start: 100, End: 160, ActiveSeconds: 30}}, batch.Activity)
	s.Equal(3, batch.Len())
	s.Equal(int64(1), batch.Marks[telemetry.CategoryHeartRate], "snapshot MUST record the highest row id per category")
}

func (s *BufferTestSuite) TestClearIsUnconditional() {
	// GOAL: Verify clear empties the buffer regardless of what was appended after the snapshot
	//
	// TEST SCENARIO: append → snapshot → append more → clear → snapshot is empty

	s.buffer.Append(s.ctx, telemetry.HeartRateSample{Timestamp: 1, BPM: 60})
	first := s.buffer.SnapshotAll(s.ctx)
	s.Require().Equal(1, first.Len())

	s.buffer.Append(s.ctx, telemetry.HeartRateSample{Timestamp: 2, BPM: 61})
	s.buffer.Clear(s.ctx)

	second := s.buffer.SnapshotAll(s.ctx)
	s.True(second.Empty(), "snapshot after clear MUST be empty")

	s.buffer.Clear(s.ctx)
	s.True(s.buffer.SnapshotAll(s.ctx).Empty(), "clear MUST be idempotent")
}

func (s *BufferTestSuite) TestAcknowledgeKeepsLaterRecords() {
	// GOAL: Verify acknowledging a batch only removes the rows the batch contained
	//
	// TEST SCENARIO: append two → snapshot → append one → acknowledge → only the late record remains

	s.buffer.Append(s.ctx, telemetry.HeartRateSample{Timestamp: 1, BPM: 60})
	s.buffer.Append(s.ctx, telemetry.StepInterval{Start: 1, End: 61, Steps: 5})
	batch := s.buffer.SnapshotAll(s.ctx)

	s.buffer.Append(s.ctx, telemetry.HeartRateSample{Timestamp: 2, BPM: 61})
	s.buffer.Acknowledge(s.ctx, batch)

	rest := s.buffer.SnapshotAll(s.ctx)
	s.Equal([]telemetry.HeartRateSample{{Timestamp: 2, BPM: 61}}, rest.HeartRate,
		"record appended during upload MUST survive acknowledgement")
	s.Empty(rest.Steps)
}

func (s *BufferTestSuite) TestAcknowledgeAfterClearKeepsNewRecords() {
	// GOAL: Verify a batch acknowledged after a clear cannot remove records appended since
	//
	// TEST SCENARIO: append two → snapshot → clear → append one → acknowledge old batch → new record remains

	s.buffer.Append(s.ctx, telemetry.HeartRateSample{Timestamp: 1, BPM: 60})
	s.buffer.Append(s.ctx, telemetry.HeartRateSample{Timestamp: 2, BPM: 61})
	batch := s.buffer.SnapshotAll(s.ctx)

	s.buffer.Clear(s.ctx)
	s.buffer.Append(s.ctx, telemetry.HeartRateSample{Timestamp: 3, BPM: 62})
	s.buffer.Acknowledge(s.ctx, batch)

	s.Equal([]telemetry.HeartRateSample{{Timestamp: 3, BPM: 62}}, s.buffer.SnapshotAll(s.ctx).HeartRate,
		"record appended after clear MUST survive a stale acknowledgement")
}

func (s *BufferTestSuite) TestAppendFailureIsSwallowed() {
	// GOAL: Verify a store failure is logged and does not propagate
	//
	// TEST SCENARIO: failing store → append → error logged, no panic → snapshot empty

	s.store.FailWrites = errors.New("disk full")

	s.NotPanics(func() {
		s.buffer.Append(s.ctx, telemetry.HeartRateSample{Timestamp: 1, BPM: 60})
	})

	entry := s.hook.LastEntry()
	s.Require().NotNil(entry, "store failure MUST be logged")
	s.Equal(logrus.ErrorLevel, entry.Level)
	s.True(s.buffer.SnapshotAll(s.ctx).Empty())
}

func (s *BufferTestSuite) TestUnsupportedRecordIgnored() {
	s.buffer.Append(s.ctx, telemetry.WaveformChunk{Samples: []int8{1, 2}})

	s.True(s.buffer.SnapshotAll(s.ctx).Empty(), "waveform MUST NOT be persisted")
	s.Require().NotNil(s.hook.LastEntry())
	s.Equal(logrus.WarnLevel, s.hook.LastEntry().Level)
}

func (s *BufferTestSuite) TestConcurrentAppendAndSnapshot() {
	// GOAL: Verify appends and snapshots interleave without losing records
	//
	// TEST SCENARIO: 4 writers append 50 records each while a reader snapshots → final count 200

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				s.buffer.Append(s.ctx, telemetry.HeartRateSample{Timestamp: uint32(w*1000 + i), BPM: 70})
			}
		}(w)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			_ = s.buffer.SnapshotAll(s.ctx)
		}
	}()

	wg.Wait()
	<-done

	s.Len(s.buffer.SnapshotAll(s.ctx).HeartRate, 200)
}

func TestBufferTestSuite(t *testing.T) {
	suite.Run(t, new(BufferTestSuite))
}
