// Package session owns one link to the bound sensor: connect, clock sync,
// notification routing and teardown.
//
// Every subscribed characteristic gets its own stream, a buffered channel drained
// by a dedicated worker goroutine. Notifications of one characteristic are handled
// in wire order; different characteristics are independent. Teardown stops the
// subscriptions first and then drains the streams, so records already received
// still reach the buffer.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/pulsesync/internal/device"
	"github.com/srg/pulsesync/internal/groutine"
	"github.com/srg/pulsesync/internal/live"
	"github.com/srg/pulsesync/internal/protocol"
	"github.com/srg/pulsesync/internal/telemetry"
)

// DefaultStreamCapacity is the number of notifications a stream queues before the
// radio callback blocks.
const DefaultStreamCapacity = 256

// State is the lifecycle of a Session.
type State int

const (
	Idle State = iota
	Connecting
	Connected
	Disconnected
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// LinkError reports a failed dial or subscription.
type LinkError struct {
	Op         string
	Peripheral string
	Err        error
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("link %s %s: %v", e.Op, e.Peripheral, e.Err)
}

func (e *LinkError) Unwrap() error { return e.Err }

// Appender is where persistent records go.
type Appender interface {
	Append(ctx context.Context, record any)
}

type handlerFunc func(ctx context.Context, c *connection, data []byte)

// Session manages at most one live link.
type Session struct {
	dialer   device.Dialer
	buffer   Appender
	feed     *live.Feed
	steps    *StepCounter
	logger   *logrus.Logger
	handlers *orderedmap.OrderedMap[string, handlerFunc]

	now            func() time.Time
	streamCapacity int

	mu       sync.Mutex
	state    State
	identity telemetry.PeripheralIdentity
	conn     *connection

	hrMu      sync.Mutex
	lastHR    uint32
	hasLastHR bool
}

// New creates an idle session. feed and steps may be nil.
func New(dialer device.Dialer, buffer Appender, feed *live.Feed, steps *StepCounter, logger *logrus.Logger) *Session {
	if logger == nil {
		logger = logrus.New()
	}
	if feed == nil {
		feed = live.NewFeed()
	}
	if steps == nil {
		steps = NewStepCounter(nil, logger)
	}

	s := &Session{
		dialer:         dialer,
		buffer:         buffer,
		feed:           feed,
		steps:          steps,
		logger:         logger,
		now:            time.Now,
		streamCapacity: DefaultStreamCapacity,
	}

	s.handlers = orderedmap.New[string, handlerFunc]()
	s.handlers.Set(protocol.HeartRateUUID, s.onHeartRate)
	s.handlers.Set(protocol.WaveformUUID, s.onWaveform)
	s.handlers.Set(protocol.HeartRateBundleUUID, s.onHeartRateBundle)
	s.handlers.Set(protocol.DateCheckUUID, s.onDateCheck)
	s.handlers.Set(protocol.StepsUUID, s.onSteps)
	s.handlers.Set(protocol.LiveStepsUUID, s.onLiveSteps)
	return s
}

// Steps returns the session's step counter.
func (s *Session) Steps() *StepCounter {
	return s.steps
}

// Connect dials the peripheral, sends the host clock and subscribes to every
// sensor characteristic. It does not retry.
func (s *Session) Connect(ctx context.Context, identity telemetry.PeripheralIdentity) error {
	s.mu.Lock()
	switch s.state {
	case Connecting:
		s.mu.Unlock()
		return device.ErrConnectInProgress
	case Connected:
		s.mu.Unlock()
		return device.ErrAlreadyConnected
	}
	s.state = Connecting
	s.identity = identity
	s.mu.Unlock()

	fields := logrus.Fields{"peripheral": identity.ID, "name": identity.Name}
	s.logger.WithFields(fields).Info("Connecting to peripheral...")

	link, err := s.dialer.Dial(ctx, identity.ID)
	if err != nil {
		s.setState(Disconnected)
		return &LinkError{Op: "dial", Peripheral: identity.ID, Err: device.NormalizeError(err)}
	}

	if err := link.Write(protocol.DateCheckUUID, protocol.EncodeTimestamp(s.now())); err != nil {
		s.logger.WithFields(fields).WithField("error", err).Warn("Failed to send host clock")
	}

	conn := newConnection(link, s.logger)
	for pair := s.handlers.Oldest(); pair != nil; pair = pair.Next() {
		if err := conn.subscribe(pair.Key, pair.Value, s.streamCapacity); err != nil {
			conn.teardown()
			s.setState(Disconnected)
			return &LinkError{Op: "subscribe", Peripheral: identity.ID, Err: err}
		}
	}

	s.mu.Lock()
	s.conn = conn
	s.state = Connected
	s.mu.Unlock()

	groutine.Go(context.Background(), "session-link-watch", func(ctx context.Context) {
		select {
		case <-link.Disconnected():
			s.end(conn, true)
		case <-conn.done:
		}
	})

	s.logger.WithFields(fields).Info("Connected to peripheral")
	s.feed.Session.Publish(live.SessionEvent{Connected: true, Peripheral: identity, At: s.now()})
	return nil
}

// Disconnect tears the current link down. It is a no-op when not connected.
func (s *Session) Disconnect() {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		s.end(conn, false)
	}
}

// end tears conn down once, whichever of Disconnect and link loss comes first.
func (s *Session) end(conn *connection, lost bool) {
	s.mu.Lock()
	if s.conn != conn {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.state = Disconnected
	identity := s.identity
	s.mu.Unlock()

	fields := logrus.Fields{"peripheral": identity.ID, "name": identity.Name}
	if lost {
		s.logger.WithFields(fields).Warn("Link to peripheral lost")
	} else {
		s.logger.WithFields(fields).Info("Disconnecting from peripheral")
	}

	conn.teardown()
	s.feed.Session.Publish(live.SessionEvent{Connected: false, Peripheral: identity, At: s.now()})
}

// Done returns a channel closed when the current link ends. With no link it is
// already closed.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return s.conn.done
}

func (s *Session) IsConnected() bool {
	return s.State() == Connected
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Identity returns the peripheral of the current or most recent link.
func (s *Session) Identity() telemetry.PeripheralIdentity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) rememberHeartRate(ts uint32) {
	s.hrMu.Lock()
	s.lastHR = ts
	s.hasLastHR = true
	s.hrMu.Unlock()
}

func (s *Session) lastHeartRate() (uint32, bool) {
	s.hrMu.Lock()
	defer s.hrMu.Unlock()
	return s.lastHR, s.hasLastHR
}

func (s *Session) dropMalformed(uuid string, err error) {
	s.logger.WithFields(logrus.Fields{
		"characteristic": protocol.CharacteristicName(uuid),
		"error":          err,
	}).Warn("Dropping malformed notification")
}

func (s *Session) onHeartRate(ctx context.Context, _ *connection, data []byte) {
	sample, err := protocol.DecodeHeartRate(data)
	if err != nil {
		s.dropMalformed(protocol.HeartRateUUID, err)
		return
	}
	s.buffer.Append(ctx, sample)
	s.feed.HeartRate.Publish(sample)
	s.rememberHeartRate(sample.Timestamp)
}

func (s *Session) onHeartRateBundle(ctx context.Context, _ *connection, data []byte) {
	samples, err := protocol.DecodeHeartRateBundle(data)
	if err != nil {
		s.dropMalformed(protocol.HeartRateBundleUUID, err)
		return
	}
	for _, sample := range samples {
		s.buffer.Append(ctx, sample)
	}
}

func (s *Session) onWaveform(_ context.Context, _ *connection, data []byte) {
	chunk, err := protocol.DecodeWaveform(data)
	if err != nil {
		s.dropMalformed(protocol.WaveformUUID, err)
		return
	}
	s.feed.Waveform.Publish(chunk)
}

func (s *Session) onSteps(ctx context.Context, _ *connection, data []byte) {
	rec, err := protocol.DecodeSteps(data)
	if err != nil {
		s.dropMalformed(protocol.StepsUUID, err)
		return
	}
	s.buffer.Append(ctx, rec.Steps)
	if rec.Activity != nil {
		s.buffer.Append(ctx, *rec.Activity)
	}
	// The device restarts its live counter once it has flushed an interval.
	s.steps.ResetReading()
}

func (s *Session) onLiveSteps(_ context.Context, _ *connection, data []byte) {
	reading, err := protocol.DecodeLiveSteps(data)
	if err != nil {
		s.dropMalformed(protocol.LiveStepsUUID, err)
		return
	}
	s.feed.LiveSteps.Publish(reading.Count)
	s.feed.TotalSteps.Publish(s.steps.Observe(reading.Count))
}

func (s *Session) onDateCheck(_ context.Context, c *connection, data []byte) {
	check, err := protocol.DecodeDateCheck(data)
	if err != nil {
		s.dropMalformed(protocol.DateCheckUUID, err)
		return
	}
	last, ok := s.lastHeartRate()
	if !ok {
		s.logger.Debug("Clock check before any heart rate; not replying")
		return
	}

	caughtUp := last >= check.Timestamp
	s.logger.WithFields(logrus.Fields{
		"host_last":  last,
		"peripheral": check.Timestamp,
		"caught_up":  caughtUp,
	}).Debug("Answering clock check")

	if err := c.link.Write(protocol.DateCheckUUID, protocol.EncodeCaughtUp(caughtUp)); err != nil {
		s.logger.WithField("error", err).Warn("Failed to answer clock check")
	}
}
