package live

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/smallnest/ringbuffer"
	"github.com/srg/pulsesync/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingChannel_OverwritesOldest(t *testing.T) {
	rc := NewRingChannel[int](3)
	for i := 0; i < 10; i++ {
		rc.ForceSend(i)
	}
	rc.Close()
	rc.Close()

	var got []int
	for v := range rc.C() {
		got = append(got, v)
	}
	assert.Equal(t, []int{7, 8, 9}, got, "only the newest values MUST survive")

	m := rc.GetMetrics()
	assert.Equal(t, int64(10), m.Written)
	assert.Equal(t, int64(7), m.Overwritten)

	assert.False(t, rc.ForceSend(11), "send after close MUST be a no-op")
	assert.False(t, rc.TrySend(11))
}

func TestRingChannel_TrySend(t *testing.T) {
	rc := NewRingChannel[string](1)
	assert.True(t, rc.TrySend("a"))
	assert.False(t, rc.TrySend("b"), "TrySend MUST NOT overwrite")
	assert.Equal(t, "a", <-rc.C())
}

func TestTopic_FanOutAndCancel(t *testing.T) {
	topic := NewTopic[int]()
	a := topic.Subscribe(4)
	b := topic.Subscribe(4)
	require.Equal(t, 2, topic.Len())

	topic.Publish(1)
	assert.Equal(t, 1, <-a.C())
	assert.Equal(t, 1, <-b.C())

	b.Cancel()
	b.Cancel()
	assert.Equal(t, 1, topic.Len(), "cancelled subscriber MUST be removed")

	_, open := <-b.C()
	assert.False(t, open, "cancelled subscription channel MUST be closed")

	topic.Publish(2)
	assert.Equal(t, 2, <-a.C())
}

func TestTopic_SlowSubscriberDoesNotBlock(t *testing.T) {
	topic := NewTopic[int]()
	slow := topic.Subscribe(2)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			topic.Publish(i)
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish MUST NOT block on a slow subscriber")
	}
	assert.Equal(t, int64(98), slow.Dropped())
}

func TestTopic_ConcurrentPublishAndCancel(t *testing.T) {
	topic := NewTopic[int]()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				topic.Publish(j)
			}
		}()
		go func() {
			defer wg.Done()
			s := topic.Subscribe(1)
			s.Cancel()
		}()
	}
	wg.Wait()
	assert.Zero(t, topic.Len())
}

func TestTrace_KeepsNewestSamples(t *testing.T) {
	tr := NewTrace(5, nil)
	tr.Append(telemetry.WaveformChunk{Samples: []int8{1, 2, 3}})
	tr.Append(telemetry.WaveformChunk{Samples: []int8{-4, -5, -6}})

	assert.Equal(t, []int8{2, 3, -4, -5, -6}, tr.Samples())
	assert.Equal(t, []int8{2, 3, -4, -5, -6}, tr.Samples(), "reading MUST NOT consume the trace")

	tr.Append(telemetry.WaveformChunk{Samples: []int8{10, 11, 12, 13, 14, 15, 16}})
	assert.Equal(t, []int8{12, 13, 14, 15, 16}, tr.Samples(), "oversized chunk MUST keep only its tail")
	assert.Equal(t, 5, tr.Len())
}

func TestTrace_LogsDroppedSamples(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	tr := NewTrace(4, logger)
	tr.buf = ringbuffer.New(2)

	tr.Append(telemetry.WaveformChunk{Samples: []int8{1, 2, 3, 4}})

	entry := hook.LastEntry()
	require.NotNil(t, entry, "a failed trace write MUST be logged")
	assert.Equal(t, logrus.DebugLevel, entry.Level)
	assert.Equal(t, "Waveform trace write failed", entry.Message)
	assert.Equal(t, 2, entry.Data["dropped"])
	assert.Equal(t, []int8{1, 2}, tr.Samples())
}

func TestTrace_Follow(t *testing.T) {
	feed := NewFeed()
	tr := NewTrace(8, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go tr.Follow(ctx, feed.Waveform)
	require.Eventually(t, func() bool { return feed.Waveform.Len() == 1 }, time.Second, 5*time.Millisecond)

	feed.Waveform.Publish(telemetry.WaveformChunk{Samples: []int8{7, 8}})
	assert.Eventually(t, func() bool { return tr.Len() == 2 }, time.Second, 5*time.Millisecond)
}

func TestServer_StreamsEvents(t *testing.T) {
	// GOAL: Verify websocket clients receive the trace snapshot then live events
	//
	// TEST SCENARIO: trace has samples → client connects → trace event → publish heart rate → heart_rate event

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	feed := NewFeed()
	tr := NewTrace(4, logger)
	tr.Append(telemetry.WaveformChunk{Samples: []int8{1, -1}})

	srv := httptest.NewServer(NewServer(feed, tr, logger).Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/live"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var first struct {
		Type string `json:"type"`
		Data []int8 `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, EventTrace, first.Type)
	assert.Equal(t, []int8{1, -1}, first.Data)

	require.Eventually(t, func() bool { return feed.HeartRate.Len() == 1 }, time.Second, 5*time.Millisecond)
	feed.HeartRate.Publish(telemetry.HeartRateSample{Timestamp: 10, BPM: 72})

	var second struct {
		Type string                    `json:"type"`
		Data telemetry.HeartRateSample `json:"data"`
	}
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, EventHeartRate, second.Type)
	assert.Equal(t, telemetry.HeartRateSample{Timestamp: 10, BPM: 72}, second.Data)
}
