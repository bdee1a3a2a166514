package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/pulsesync/internal/settings"
	"github.com/srg/pulsesync/internal/store"
)

func TestStepCounter_Observe(t *testing.T) {
	tests := []struct {
		name     string
		readings []uint16
		want     int64
	}{
		{name: "monotonic", readings: []uint16{1, 4, 9}, want: 9},
		{name: "repeated readings add nothing", readings: []uint16{5, 5, 5}, want: 5},
		{name: "device restart counts from zero", readings: []uint16{5, 5, 12, 3}, want: 15},
		{name: "uint16 wrap", readings: []uint16{65530, 2}, want: 65532},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewStepCounter(nil, nil)
			var got int64
			for _, r := range tt.readings {
				got = c.Observe(r)
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want, c.Total())
		})
	}
}

func TestStepCounter_Persistence(t *testing.T) {
	ctx := context.Background()
	st := settings.New(store.NewMemory())

	c := NewStepCounter(st, nil)
	require.NoError(t, c.Load(ctx))
	assert.Zero(t, c.Total(), "missing total MUST load as zero")

	c.Observe(40)
	require.NoError(t, c.Save(ctx))

	restored := NewStepCounter(st, nil)
	require.NoError(t, restored.Load(ctx))
	assert.Equal(t, int64(40), restored.Total())

	require.NoError(t, restored.Reset(ctx))
	total, err := st.StepTotal(ctx)
	require.NoError(t, err)
	assert.Zero(t, total, "reset MUST persist zero")
}
