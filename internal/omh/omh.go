// Package omh builds Open mHealth data points from buffered telemetry.
package omh

import (
	"strconv"
	"sync/atomic"
	"time"

	"github.com/srg/pulsesync/internal/telemetry"
)

// Schema names used by the server.
const (
	SchemaHeartRate       = "heart-rate"
	SchemaStepCount       = "step-count"
	SchemaModerateMinutes = "minutes-moderate-activity"

	SchemaNamespace = "omh"
	SchemaVersion   = "1.0"
)

// Schemas lists every schema this host writes.
var Schemas = []string{SchemaHeartRate, SchemaStepCount, SchemaModerateMinutes}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatTime renders t as RFC 3339 UTC with milliseconds.
func FormatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

type SchemaID struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
	Version   string `json:"version"`
}

type Provenance struct {
	SourceName string `json:"source_name"`
	Modality   string `json:"modality"`
}

type Header struct {
	ID                    string     `json:"id"`
	CreationDateTime      string     `json:"creation_date_time"`
	AcquisitionProvenance Provenance `json:"acquisition_provenance"`
	SchemaID              SchemaID   `json:"schema_id"`
}

// PointRecord is one data point as posted to and returned by the server.
type PointRecord struct {
	Header Header `json:"header"`
	Body   any    `json:"body"`
}

type UnitValue struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

type TimeInterval struct {
	StartDateTime string `json:"start_date_time"`
	EndDateTime   string `json:"end_date_time"`
}

type TimeFrame struct {
	DateTime     string        `json:"date_time,omitempty"`
	TimeInterval *TimeInterval `json:"time_interval,omitempty"`
}

type HeartRateBody struct {
	HeartRate          UnitValue `json:"heart_rate"`
	EffectiveTimeFrame TimeFrame `json:"effective_time_frame"`
}

type StepCountBody struct {
	StepCount          uint16    `json:"step_count"`
	EffectiveTimeFrame TimeFrame `json:"effective_time_frame"`
}

type ModerateActivityBody struct {
	MinutesModerateActivity UnitValue `json:"minutes_moderate_activity"`
	EffectiveTimeFrame      TimeFrame `json:"effective_time_frame"`
}

// IDGenerator issues "<epochMillis>-<counter>" ids. The counter keeps ids unique
// when many points are built within the same millisecond.
type IDGenerator struct {
	now     func() time.Time
	counter atomic.Uint64
}

// NewIDGenerator creates a generator. A nil now means time.Now.
func NewIDGenerator(now func() time.Time) *IDGenerator {
	if now == nil {
		now = time.Now
	}
	return &IDGenerator{now: now}
}

func (g *IDGenerator) Next() string {
	n := g.counter.Add(1) - 1
	return strconv.FormatInt(g.now().UnixMilli(), 10) + "-" + strconv.FormatUint(n, 10)
}

func epoch(ts uint32) time.Time {
	return time.Unix(int64(ts), 0)
}

func header(gen *IDGenerator, schema string, created time.Time) Header {
	return Header{
		ID:                    gen.Next(),
		CreationDateTime:      FormatTime(created),
		AcquisitionProvenance: Provenance{SourceName: "arduino", Modality: "sensed"},
		SchemaID:              SchemaID{Namespace: SchemaNamespace, Name: schema, Version: SchemaVersion},
	}
}

func interval(start, end uint32) TimeFrame {
	return TimeFrame{TimeInterval: &TimeInterval{
		StartDateTime: FormatTime(epoch(start)),
		EndDateTime:   FormatTime(epoch(end)),
	}}
}

// HeartRate builds a heart-rate point created at the sample time.
func HeartRate(gen *IDGenerator, s telemetry.HeartRateSample) PointRecord {
	at := epoch(s.Timestamp)
	return PointRecord{
		Header: header(gen, SchemaHeartRate, at),
		Body: HeartRateBody{
			HeartRate:          UnitValue{Value: float64(s.BPM), Unit: "beats/min"},
			EffectiveTimeFrame: TimeFrame{DateTime: FormatTime(at)},
		},
	}
}

// StepCount builds a step-count point created at the interval end.
func StepCount(gen *IDGenerator, s telemetry.StepInterval) PointRecord {
	return PointRecord{
		Header: header(gen, SchemaStepCount, epoch(s.End)),
		Body: StepCountBody{
			StepCount:          s.Steps,
			EffectiveTimeFrame: interval(s.Start, s.End),
		},
	}
}

// ModerateActivity builds a minutes-moderate-activity point created at the interval end.
func ModerateActivity(gen *IDGenerator, a telemetry.ActivityInterval) PointRecord {
	return PointRecord{
		Header: header(gen, SchemaModerateMinutes, epoch(a.End)),
		Body: ModerateActivityBody{
			MinutesModerateActivity: UnitValue{Value: float64(a.ActiveSeconds) / 60, Unit: "min"},
			EffectiveTimeFrame:      interval(a.Start, a.End),
		},
	}
}

// FromBatch converts a batch: heart rate first, then steps, then activity.
func FromBatch(batch telemetry.Batch, gen *IDGenerator) []PointRecord {
	points := make([]PointRecord, 0, batch.Len())
	for _, s := range batch.HeartRate {
		points = append(points, HeartRate(gen, s))
	}
	for _, s := range batch.Steps {
		points = append(points, StepCount(gen, s))
	}
	for _, a := range batch.Activity {
		points = append(points, ModerateActivity(gen, a))
	}
	return points
}
