// Package telemetry defines the records produced by the wearable sensor and the
// batch shape used when flushing them to the server.
package telemetry

import "time"

// Category identifies one persistent telemetry table.
type Category string

const (
	CategoryHeartRate Category = "heart_rate"
	CategorySteps     Category = "step_count"
	CategoryActivity  Category = "activity"
)

// Categories lists every persistent category in flush order.
var Categories = []Category{CategoryHeartRate, CategorySteps, CategoryActivity}

// PeripheralIdentity is the sensor bound to this host. The ID is the radio address
// reported by scanning and is what rescans are matched against.
type PeripheralIdentity struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// IsZero reports whether no sensor is bound.
func (p PeripheralIdentity) IsZero() bool {
	return p.ID == ""
}

// DisplayName returns the name, falling back to the ID.
func (p PeripheralIdentity) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}

// HeartRateSample is a single timestamped heart-rate reading.
type HeartRateSample struct {
	Timestamp uint32 `json:"timestamp"` // epoch seconds
	BPM       uint8  `json:"bpm"`
}

// Time returns the sample time.
func (s HeartRateSample) Time() time.Time {
	return time.Unix(int64(s.Timestamp), 0).UTC()
}

// WaveformChunk carries raw waveform samples in arrival order. It is never persisted.
type WaveformChunk struct {
	Samples []int8 `json:"samples"`
}

// StepInterval is a step count over [Start, End].
type StepInterval struct {
	Start uint32 `json:"start"`
	End   uint32 `json:"end"`
	Steps uint16 `json:"steps"`
}

// ActivityInterval is the active time reported alongside a StepInterval.
type ActivityInterval struct {
	Start         uint32 `json:"start"`
	End           uint32 `json:"end"`
	ActiveSeconds uint16 `json:"active_seconds"`
}

// Batch is a point-in-time snapshot of the buffer. Marks holds, per category, the
// highest store row id included so the exact rows can be acknowledged later.
type Batch struct {
	HeartRate []HeartRateSample
	Steps     []StepInterval
	Activity  []ActivityInterval
	Marks     map[Category]int64
}

// Len returns the number of records in the batch.
func (b Batch) Len() int {
	return len(b.HeartRate) + len(b.Steps) + len(b.Activity)
}

// Empty reports whether the batch holds no records.
func (b Batch) Empty() bool {
	return b.Len() == 0
}
