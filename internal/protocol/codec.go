// Package protocol decodes the sensor's characteristic notifications into telemetry
// records and encodes the two host-to-sensor writes used for clock synchronisation.
//
// All multi-byte fields arrive least-significant byte first. Timestamps are epoch
// seconds packed into four bytes.
package protocol

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/srg/pulsesync/internal/telemetry"
)

const (
	heartRateLen    = 5
	bundleLen       = 20
	dateCheckLen    = 4
	stepLen         = 8
	stepActivityLen = 10
	liveStepLen     = 2
)

var bundleOffsets = [4]int{0, 5, 10, 15}

// DecodeError reports a payload whose length does not match its characteristic layout.
type DecodeError struct {
	Characteristic string
	Length         int
	Msg            string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %s (got %d bytes)", CharacteristicName(e.Characteristic), e.Msg, e.Length)
}

func lengthError(char string, data []byte, want string) *DecodeError {
	return &DecodeError{Characteristic: char, Length: len(data), Msg: "expected " + want}
}

// ClockCheck is the peripheral's current time, carried by a date-check notification.
type ClockCheck struct {
	Timestamp uint32
}

// LiveSteps is the cumulative step reading reported by the device.
type LiveSteps struct {
	Count uint16
}

// StepRecord is the decoded step packet. Activity is nil when the packet has no fifth word.
type StepRecord struct {
	Steps    telemetry.StepInterval
	Activity *telemetry.ActivityInterval
}

func decodeTimestamp(b []byte) uint32 {
	return uint32(b[3])<<24 | uint32(b[2])<<16 | uint32(b[1])<<8 | uint32(b[0])
}

// DecodeHeartRate decodes a single 5-byte heart-rate record.
func DecodeHeartRate(data []byte) (telemetry.HeartRateSample, error) {
	if len(data) != heartRateLen {
		return telemetry.HeartRateSample{}, lengthError(HeartRateUUID, data, "5 bytes")
	}
	return telemetry.HeartRateSample{Timestamp: decodeTimestamp(data), BPM: data[4]}, nil
}

// DecodeHeartRateBundle decodes the four heart-rate records packed into one notification.
func DecodeHeartRateBundle(data []byte) ([]telemetry.HeartRateSample, error) {
	if len(data) != bundleLen {
		return nil, lengthError(HeartRateBundleUUID, data, "20 bytes")
	}
	samples := make([]telemetry.HeartRateSample, 0, len(bundleOffsets))
	for _, off := range bundleOffsets {
		rec := data[off : off+heartRateLen]
		samples = append(samples, telemetry.HeartRateSample{Timestamp: decodeTimestamp(rec), BPM: rec[4]})
	}
	return samples, nil
}

// DecodeWaveform reinterprets every byte as a signed sample.
func DecodeWaveform(data []byte) (telemetry.WaveformChunk, error) {
	if len(data) == 0 {
		return telemetry.WaveformChunk{}, lengthError(WaveformUUID, data, "at least 1 byte")
	}
	samples := make([]int8, len(data))
	for i, b := range data {
		samples[i] = int8(b)
	}
	return telemetry.WaveformChunk{Samples: samples}, nil
}

// DecodeDateCheck decodes the peripheral's current time.
func DecodeDateCheck(data []byte) (ClockCheck, error) {
	if len(data) != dateCheckLen {
		return ClockCheck{}, lengthError(DateCheckUUID, data, "4 bytes")
	}
	return ClockCheck{Timestamp: decodeTimestamp(data)}, nil
}

// DecodeSteps decodes a step interval: start (two words), duration, count and an
// optional active-time word.
func DecodeSteps(data []byte) (StepRecord, error) {
	if len(data) != stepLen && len(data) != stepActivityLen {
		return StepRecord{}, lengthError(StepsUUID, data, "8 or 10 bytes")
	}
	w := func(i int) uint32 { return uint32(binary.LittleEndian.Uint16(data[2*i:])) }

	start := w(1)<<16 | w(0)
	end := start + w(2)
	rec := StepRecord{Steps: telemetry.StepInterval{Start: start, End: end, Steps: uint16(w(3))}}
	if len(data) == stepActivityLen {
		rec.Activity = &telemetry.ActivityInterval{Start: start, End: end, ActiveSeconds: uint16(w(4))}
	}
	return rec, nil
}

// DecodeLiveSteps decodes the device's cumulative live step count.
func DecodeLiveSteps(data []byte) (LiveSteps, error) {
	if len(data) != liveStepLen {
		return LiveSteps{}, lengthError(LiveStepsUUID, data, "2 bytes")
	}
	return LiveSteps{Count: binary.LittleEndian.Uint16(data)}, nil
}

// Decode dispatches on the characteristic UUID. The concrete result type is one of
// HeartRateSample, []HeartRateSample, WaveformChunk, ClockCheck, StepRecord or LiveSteps.
func Decode(characteristic string, data []byte) (any, error) {
	switch NormalizeUUID(characteristic) {
	case NormalizeUUID(HeartRateUUID):
		return DecodeHeartRate(data)
	case NormalizeUUID(HeartRateBundleUUID):
		return DecodeHeartRateBundle(data)
	case NormalizeUUID(WaveformUUID):
		return DecodeWaveform(data)
	case NormalizeUUID(DateCheckUUID):
		return DecodeDateCheck(data)
	case NormalizeUUID(StepsUUID):
		return DecodeSteps(data)
	case NormalizeUUID(LiveStepsUUID):
		return DecodeLiveSteps(data)
	default:
		return nil, &DecodeError{Characteristic: characteristic, Length: len(data), Msg: "unknown characteristic"}
	}
}

// EncodeTimestamp packs t as epoch seconds in the date-check layout.
func EncodeTimestamp(t time.Time) []byte {
	buf := make([]byte, dateCheckLen)
	binary.LittleEndian.PutUint32(buf, uint32(t.Unix()))
	return buf
}

// EncodeCaughtUp builds the clock-check reply: four bytes, all 1 when the host has
// caught up with the peripheral and all 0 otherwise.
func EncodeCaughtUp(caughtUp bool) []byte {
	var v byte
	if caughtUp {
		v = 1
	}
	return []byte{v, v, v, v}
}
