package live

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/smallnest/ringbuffer"
	"github.com/srg/pulsesync/internal/telemetry"
)

// DefaultTraceSamples is about four seconds of waveform at the sensor's sample rate.
const DefaultTraceSamples = 1024

// Trace keeps the most recent waveform samples so late-joining viewers can draw
// the current trace instead of an empty graph.
type Trace struct {
	mu     sync.Mutex
	buf    *ringbuffer.RingBuffer
	cap    int
	logger *logrus.Logger
}

// NewTrace creates a trace holding up to samples values.
func NewTrace(samples int, logger *logrus.Logger) *Trace {
	if samples <= 0 {
		samples = DefaultTraceSamples
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Trace{buf: ringbuffer.New(samples), cap: samples, logger: logger}
}

// Append adds a chunk, discarding the oldest samples when full.
func (t *Trace) Append(chunk telemetry.WaveformChunk) {
	samples := chunk.Samples
	if len(samples) > t.cap {
		samples = samples[len(samples)-t.cap:]
	}
	raw := make([]byte, len(samples))
	for i, s := range samples {
		raw[i] = byte(s)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if over := t.buf.Length() + len(raw) - t.cap; over > 0 {
		discard := make([]byte, over)
		if _, err := t.buf.Read(discard); err != nil && !errors.Is(err, ringbuffer.ErrIsEmpty) {
			t.logger.WithField("error", err).Debug("Failed to evict old waveform samples")
		}
	}
	t.writeLocked(raw)
}

// writeLocked stores raw, logging whatever did not fit. Caller holds mu.
func (t *Trace) writeLocked(raw []byte) {
	n, err := t.buf.Write(raw)
	if err != nil {
		t.logger.WithFields(logrus.Fields{
			"dropped": len(raw) - n,
			"error":   err,
		}).Debug("Waveform trace write failed")
	}
}

// Samples returns a copy of the buffered samples, oldest first.
func (t *Trace) Samples() []int8 {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.buf.Length()
	if n == 0 {
		return nil
	}
	raw := make([]byte, n)
	if _, err := t.buf.Read(raw); err != nil && !errors.Is(err, ringbuffer.ErrIsEmpty) {
		return nil
	}
	// Reading drains the ring; put the samples back.
	t.writeLocked(raw)

	out := make([]int8, n)
	for i, b := range raw {
		out[i] = int8(b)
	}
	return out
}

// Len returns the number of buffered samples.
func (t *Trace) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.Length()
}

// Follow appends every chunk published on topic until ctx is done.
func (t *Trace) Follow(ctx context.Context, topic *Topic[telemetry.WaveformChunk]) {
	sub := topic.Subscribe(DefaultSubscriberCapacity)
	defer sub.Cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-sub.C():
			if !ok {
				return
			}
			t.Append(chunk)
		}
	}
}
