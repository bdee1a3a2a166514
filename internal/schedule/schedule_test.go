package schedule

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManual_FiresInDeadlineOrder(t *testing.T) {
	m := NewManual()
	var order []string

	m.AfterFunc(30*time.Second, func() { order = append(order, "hold") })
	m.AfterFunc(10*time.Second, func() { order = append(order, "first") })
	m.AfterFunc(10*time.Second, func() { order = append(order, "second") })
	require.Equal(t, 3, m.Pending())

	m.Advance(9 * time.Second)
	assert.Empty(t, order, "nothing MUST fire before its deadline")

	m.Advance(time.Second)
	assert.Equal(t, []string{"first", "second"}, order, "equal deadlines MUST fire in arming order")

	m.Advance(time.Minute)
	assert.Equal(t, []string{"first", "second", "hold"}, order)
	assert.Zero(t, m.Pending())
	assert.Equal(t, 70*time.Second, m.Elapsed())
}

func TestManual_Stop(t *testing.T) {
	m := NewManual()
	fired := false
	timer := m.AfterFunc(time.Second, func() { fired = true })

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop(), "second Stop MUST report nothing was prevented")

	m.Advance(time.Hour)
	assert.False(t, fired, "stopped timer MUST NOT fire")

	done := m.AfterFunc(time.Second, func() {})
	m.Advance(time.Second)
	assert.False(t, done.Stop(), "Stop after firing MUST return false")
}

func TestManual_RearmFromCallback(t *testing.T) {
	m := NewManual()
	ticks := 0
	var tick func()
	tick = func() {
		ticks++
		m.AfterFunc(time.Minute, tick)
	}
	m.AfterFunc(time.Minute, tick)

	m.Advance(5 * time.Minute)
	assert.Equal(t, 5, ticks, "callbacks armed during Advance MUST fire within the window")
	assert.Equal(t, 1, m.Pending())
}

func TestReal_AfterFunc(t *testing.T) {
	var fired atomic.Bool
	Real().AfterFunc(time.Millisecond, func() { fired.Store(true) })
	assert.Eventually(t, fired.Load, time.Second, time.Millisecond)

	var cancelled atomic.Bool
	timer := Real().AfterFunc(time.Hour, func() { cancelled.Store(true) })
	assert.True(t, timer.Stop())
	assert.False(t, cancelled.Load())
}
