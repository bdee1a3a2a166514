//go:build test

package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/suite"

	"github.com/srg/pulsesync/internal/buffer"
	"github.com/srg/pulsesync/internal/device"
	"github.com/srg/pulsesync/internal/live"
	"github.com/srg/pulsesync/internal/protocol"
	"github.com/srg/pulsesync/internal/settings"
	"github.com/srg/pulsesync/internal/store"
	"github.com/srg/pulsesync/internal/telemetry"
	"github.com/srg/pulsesync/internal/testutils"
)

const (
	waitTimeout = 2 * time.Second
	waitTick    = 5 * time.Millisecond
)

var sensor = telemetry.PeripheralIdentity{ID: "AA:BB", Name: "Pulse"}

type SessionTestSuite struct {
	suite.Suite
	ctx      context.Context
	store    *store.Memory
	settings *settings.Settings
	buffer   *buffer.Buffer
	feed     *live.Feed
	radio    *testutils.FakeRadio
	hook     *test.Hook
	session  *Session
	clock    time.Time
}

func (s *SessionTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = store.NewMemory()
	s.settings = settings.New(s.store)

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	s.hook = hook

	s.buffer = buffer.New(s.store, logger)
	s.feed = live.NewFeed()
	s.radio = testutils.NewFakeRadio()
	s.clock = time.Unix(1_700_000_000, 0)

	s.session = New(s.radio, s.buffer, s.feed, NewStepCounter(s.settings, logger), logger)
	s.session.now = func() time.Time { return s.clock }
}

func (s *SessionTestSuite) TearDownTest() {
	s.session.Disconnect()
}

func (s *SessionTestSuite) logged(msg string) bool {
	for _, e := range s.hook.AllEntries() {
		if e.Message == msg {
			return true
		}
	}
	return false
}

func (s *SessionTestSuite) connect() *testutils.FakeLink {
	s.Require().NoError(s.session.Connect(s.ctx, sensor))
	link := s.radio.LastLink()
	s.Require().NotNil(link)
	return link
}

func (s *SessionTestSuite) TestConnectSendsClockAndSubscribesInOrder() {
	// GOAL: Verify connect writes the host clock and subscribes to every characteristic in registry order
	//
	// TEST SCENARIO: connect → first write is the encoded host time → six subscriptions in order → Connected

	sessions := s.feed.Session.Subscribe(4)
	defer sessions.Cancel()

	link := s.connect()

	writes := link.Writes()
	s.Require().NotEmpty(writes)
	s.Equal(protocol.DateCheckUUID, writes[0].UUID, "first write MUST go to the date-check characteristic")
	s.Equal(protocol.EncodeTimestamp(s.clock), writes[0].Data)

	s.Equal(protocol.Characteristics, link.Subscribed(), "subscriptions MUST follow the registry order")
	s.Equal(Connected, s.session.State())
	s.True(s.session.IsConnected())
	s.Equal(sensor, s.session.Identity())
	s.Equal([]string{"AA:BB"}, s.radio.Dials())

	evt := <-sessions.C()
	s.True(evt.Connected)
	s.Equal(sensor, evt.Peripheral)
}

func (s *SessionTestSuite) TestConnectRejectsConcurrentAttempts() {
	// GOAL: Verify only one connect can be in flight and a live link rejects a second connect
	//
	// TEST SCENARIO: dial held → second connect gets ErrConnectInProgress → release → connect again gets ErrAlreadyConnected

	release := s.radio.HoldDials()
	errCh := make(chan error, 1)
	go func() { errCh <- s.session.Connect(s.ctx, sensor) }()

	s.Require().Eventually(func() bool { return s.session.State() == Connecting }, waitTimeout, waitTick)
	s.ErrorIs(s.session.Connect(s.ctx, sensor), device.ErrConnectInProgress)

	release()
	s.Require().NoError(<-errCh)
	s.ErrorIs(s.session.Connect(s.ctx, sensor), device.ErrAlreadyConnected)
	s.Len(s.radio.Dials(), 1, "rejected attempts MUST NOT dial")
}

func (s *SessionTestSuite) TestDialFailureIsLinkError() {
	// GOAL: Verify a failed dial surfaces as a LinkError and leaves the session disconnected
	//
	// TEST SCENARIO: dial fails → LinkError{Op: dial} → state Disconnected → retry is allowed

	s.radio.FailDial(errors.New("connection timed out"))

	err := s.session.Connect(s.ctx, sensor)
	var linkErr *LinkError
	s.Require().ErrorAs(err, &linkErr)
	s.Equal("dial", linkErr.Op)
	s.ErrorIs(err, device.ErrTimeout, "dial errors MUST be normalized")
	s.Equal(Disconnected, s.session.State())

	s.radio.FailDial(nil)
	s.NoError(s.session.Connect(s.ctx, sensor), "a failed attempt MUST NOT block the next one")
}

func (s *SessionTestSuite) TestSubscribeFailureTearsDown() {
	// GOAL: Verify a subscription failure tears the partial link down
	//
	// TEST SCENARIO: steps subscription fails → LinkError{Op: subscribe} → earlier subscriptions undone → link closed

	s.radio.WithLinkFactory(func() *testutils.FakeLink {
		l := testutils.NewFakeLink()
		l.FailSubscribe = protocol.StepsUUID
		return l
	})

	err := s.session.Connect(s.ctx, sensor)
	var linkErr *LinkError
	s.Require().ErrorAs(err, &linkErr)
	s.Equal("subscribe", linkErr.Op)

	link := s.radio.LastLink()
	s.Equal(1, link.CloseCount(), "partial link MUST be closed")
	s.Len(link.Unsubscribed(), 5, "every stream started MUST be torn down")
	s.Equal(Disconnected, s.session.State())
}

func (s *SessionTestSuite) TestHeartRateEndToEnd() {
	// GOAL: Verify a heart-rate notification is persisted and shown, and disconnect happens once
	//
	// TEST SCENARIO: notify [10,0,0,0,72] → buffer holds (10, 72) → live feed shows it → disconnect twice → one close

	hr := s.feed.HeartRate.Subscribe(4)
	defer hr.Cancel()

	link := s.connect()
	s.Require().True(link.Notify(protocol.HeartRateUUID, []byte{10, 0, 0, 0, 72}))

	s.Require().Eventually(func() bool {
		return len(s.buffer.SnapshotAll(s.ctx).HeartRate) == 1
	}, waitTimeout, waitTick)
	s.Equal([]telemetry.HeartRateSample{{Timestamp: 10, BPM: 72}}, s.buffer.SnapshotAll(s.ctx).HeartRate)
	s.Equal(telemetry.HeartRateSample{Timestamp: 10, BPM: 72}, <-hr.C())

	s.session.Disconnect()
	s.session.Disconnect()
	s.Equal(1, link.CloseCount(), "disconnect MUST close the link exactly once")
	s.Equal(Disconnected, s.session.State())
}

func (s *SessionTestSuite) TestBundleAndSteps() {
	// GOAL: Verify bundle and step notifications are persisted with the decoded values
	//
	// TEST SCENARIO: bundle of four → four samples → 5-word step packet → step + activity intervals

	link := s.connect()
	link.Notify(protocol.HeartRateBundleUUID, testutils.HeartRateBundlePacket([4][2]uint32{
		{100, 60}, {101, 61}, {102, 62}, {103, 63},
	}))
	active := uint16(120)
	link.Notify(protocol.StepsUUID, testutils.StepPacket(0x00010000, 60, 42, &active))

	s.session.Disconnect()

	batch := s.buffer.SnapshotAll(s.ctx)
	s.Equal([]telemetry.HeartRateSample{
		{Timestamp: 100, BPM: 60}, {Timestamp: 101, BPM: 61}, {Timestamp: 102, BPM: 62}, {Timestamp: 103, BPM: 63},
	}, batch.HeartRate, "bundle records MUST keep wire order")
	s.Equal([]telemetry.StepInterval{{Start: 65536, End: 65596, Steps: 42}}, batch.Steps)
	s.Equal([]telemetry.ActivityInterval{{Start: 65536, End: 65596, ActiveSeconds: 120}}, batch.Activity)
}

func (s *SessionTestSuite) TestWaveformIsLiveOnly() {
	// GOAL: Verify waveform chunks go to the live feed and are never persisted
	//
	// TEST SCENARIO: notify waveform → feed receives samples → buffer stays empty

	wave := s.feed.Waveform.Subscribe(4)
	defer wave.Cancel()

	link := s.connect()
	link.Notify(protocol.WaveformUUID, []byte{0x01, 0xFF, 0x80})

	select {
	case chunk := <-wave.C():
		s.Equal([]int8{1, -1, -128}, chunk.Samples)
	case <-time.After(waitTimeout):
		s.Fail("waveform MUST reach the live feed")
	}
	s.session.Disconnect()
	s.True(s.buffer.SnapshotAll(s.ctx).Empty(), "waveform MUST NOT be persisted")
}

func (s *SessionTestSuite) TestClockCheckReply() {
	// GOAL: Verify the clock check is answered from the last heart-rate timestamp
	//
	// TEST SCENARIO: check before any heart rate → no reply → heart rate 100 → check 100 → caught up → check 101 → behind

	link := s.connect()
	baseline := len(link.WritesTo(protocol.DateCheckUUID))

	link.Notify(protocol.DateCheckUUID, testutils.DateCheckPacket(50))
	s.Require().Eventually(func() bool {
		return s.logged("Clock check before any heart rate; not replying")
	}, waitTimeout, waitTick)

	link.Notify(protocol.HeartRateUUID, testutils.HeartRatePacket(100, 70))
	s.Require().Eventually(func() bool {
		_, ok := s.session.lastHeartRate()
		return ok
	}, waitTimeout, waitTick)

	link.Notify(protocol.DateCheckUUID, testutils.DateCheckPacket(100))
	link.Notify(protocol.DateCheckUUID, testutils.DateCheckPacket(101))
	s.session.Disconnect()

	replies := link.WritesTo(protocol.DateCheckUUID)[baseline:]
	s.Equal([][]byte{
		protocol.EncodeCaughtUp(true),
		protocol.EncodeCaughtUp(false),
	}, replies, "clock check before any heart rate MUST NOT be answered")
}

func (s *SessionTestSuite) TestLiveStepsTotal() {
	// GOAL: Verify live readings fold into the running total across device counter restarts
	//
	// TEST SCENARIO: readings 5,5,12,3 → total 15 → step packet resets baseline → reading 4 → total 19

	totals := s.feed.TotalSteps.Subscribe(16)
	defer totals.Cancel()

	link := s.connect()
	for _, r := range []uint16{5, 5, 12, 3} {
		link.Notify(protocol.LiveStepsUUID, testutils.LiveStepPacket(r))
	}
	s.Require().Eventually(func() bool { return s.session.Steps().Total() == 15 }, waitTimeout, waitTick)

	var last int64
	for i := 0; i < 4; i++ {
		last = <-totals.C()
	}
	s.Equal(int64(15), last, "published total MUST match the counter")

	link.Notify(protocol.StepsUUID, testutils.StepPacket(1000, 60, 15, nil))
	s.Require().Eventually(func() bool {
		return len(s.buffer.SnapshotAll(s.ctx).Steps) == 1
	}, waitTimeout, waitTick)

	link.Notify(protocol.LiveStepsUUID, testutils.LiveStepPacket(4))
	s.Eventually(func() bool { return s.session.Steps().Total() == 19 }, waitTimeout, waitTick,
		"reading after a step packet MUST count from zero")
}

func (s *SessionTestSuite) TestMalformedNotificationDropped() {
	// GOAL: Verify a malformed notification is logged and dropped without affecting later ones
	//
	// TEST SCENARIO: 4-byte heart rate → warning logged → valid heart rate → one sample persisted

	link := s.connect()
	link.Notify(protocol.HeartRateUUID, []byte{1, 2, 3, 4})
	link.Notify(protocol.HeartRateUUID, testutils.HeartRatePacket(20, 80))
	s.session.Disconnect()

	s.Equal([]telemetry.HeartRateSample{{Timestamp: 20, BPM: 80}}, s.buffer.SnapshotAll(s.ctx).HeartRate)

	s.True(s.logged("Dropping malformed notification"), "malformed notification MUST be logged")
}

func (s *SessionTestSuite) TestTeardownDrainsQueuedRecords() {
	// GOAL: Verify records queued before disconnect still reach the buffer
	//
	// TEST SCENARIO: 100 heart-rate notifications → immediate disconnect → all 100 persisted

	link := s.connect()
	for i := uint32(0); i < 100; i++ {
		link.Notify(protocol.HeartRateUUID, testutils.HeartRatePacket(i, 60))
	}
	s.session.Disconnect()

	s.Len(s.buffer.SnapshotAll(s.ctx).HeartRate, 100, "teardown MUST drain queued notifications")
	s.False(link.Notify(protocol.HeartRateUUID, testutils.HeartRatePacket(200, 60)), "notifications after teardown MUST be unsubscribed")
}

func (s *SessionTestSuite) TestLinkLoss() {
	// GOAL: Verify a dropped link performs the same teardown and signals Done
	//
	// TEST SCENARIO: connect → peripheral drops → Done closes → Disconnected event → reconnect possible

	sessions := s.feed.Session.Subscribe(4)
	defer sessions.Cancel()

	link := s.connect()
	done := s.session.Done()
	<-sessions.C()

	link.Drop()

	select {
	case <-done:
	case <-time.After(waitTimeout):
		s.FailNow("Done MUST close on link loss")
	}
	s.Equal(Disconnected, s.session.State())
	s.Equal(1, link.CloseCount())

	evt := <-sessions.C()
	s.False(evt.Connected, "link loss MUST publish a disconnected event")

	s.NoError(s.session.Connect(s.ctx, sensor))
	s.Len(s.radio.Dials(), 2)
}

func (s *SessionTestSuite) TestDoneWithoutLink() {
	select {
	case <-s.session.Done():
	default:
		s.Fail("Done MUST be closed when there is no link")
	}
	s.Equal(Idle, s.session.State())
	s.Equal("idle", s.session.State().String())
}

func TestSessionTestSuite(t *testing.T) {
	suite.Run(t, new(SessionTestSuite))
}
