// Package live carries best-effort display events from the sensor session to
// whoever is watching: the terminal monitor, websocket clients, or tests.
// Each telemetry category has its own typed topic.
package live

import (
	"fmt"
	"time"

	"github.com/srg/pulsesync/internal/telemetry"
)

// SessionEvent reports a link coming up or going down.
type SessionEvent struct {
	Connected  bool                         `json:"connected"`
	Peripheral telemetry.PeripheralIdentity `json:"peripheral"`
	At         time.Time                    `json:"at"`
}

// Notice is a user-facing message, e.g. a successful upload.
type Notice struct {
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Feed groups one topic per display category.
type Feed struct {
	HeartRate  *Topic[telemetry.HeartRateSample]
	Waveform   *Topic[telemetry.WaveformChunk]
	LiveSteps  *Topic[uint16]
	TotalSteps *Topic[int64]
	Session    *Topic[SessionEvent]
	Notices    *Topic[Notice]
}

func NewFeed() *Feed {
	return &Feed{
		HeartRate:  NewTopic[telemetry.HeartRateSample](),
		Waveform:   NewTopic[telemetry.WaveformChunk](),
		LiveSteps:  NewTopic[uint16](),
		TotalSteps: NewTopic[int64](),
		Session:    NewTopic[SessionEvent](),
		Notices:    NewTopic[Notice](),
	}
}

// Notify publishes a formatted notice.
func (f *Feed) Notify(format string, args ...any) {
	f.Notices.Publish(Notice{Text: fmt.Sprintf(format, args...), At: time.Now()})
}
