package testutils

import (
	"encoding/binary"
	"testing"

	"github.com/sirupsen/logrus"
)

type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
}

// NewTestHelper creates a test helper with a debug-level logger.
func NewTestHelper(t *testing.T) *TestHelper {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel) // enable debug logs to track execution flow
	return &TestHelper{
		T:      t,
		Logger: logger,
	}
}

// HeartRatePacket encodes a single heart-rate notification.
func HeartRatePacket(ts uint32, bpm uint8) []byte {
	b := make([]byte, 5)
	binary.LittleEndian.PutUint32(b, ts)
	b[4] = bpm
	return b
}

// HeartRateBundlePacket encodes four heart-rate records back to back.
func HeartRateBundlePacket(records [4][2]uint32) []byte {
	var out []byte
	for _, r := range records {
		out = append(out, HeartRatePacket(r[0], uint8(r[1]))...)
	}
	return out
}

// DateCheckPacket encodes the peripheral's clock.
func DateCheckPacket(ts uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, ts)
	return b
}

// StepPacket encodes a step interval. A non-nil active adds the fifth word.
func StepPacket(start uint32, offset, steps uint16, active *uint16) []byte {
	words := []uint16{uint16(start), uint16(start >> 16), offset, steps}
	if active != nil {
		words = append(words, *active)
	}
	b := make([]byte, 2*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint16(b[2*i:], w)
	}
	return b
}

// LiveStepPacket encodes a cumulative live step reading.
func LiveStepPacket(count uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, count)
	return b
}
