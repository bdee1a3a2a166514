package settings

import (
	"context"
	"testing"

	"github.com/srg/pulsesync/internal/store"
	"github.com/srg/pulsesync/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettings_Defaults(t *testing.T) {
	ctx := context.Background()
	s := New(store.NewMemory())

	p, err := s.Peripheral(ctx)
	require.NoError(t, err)
	assert.True(t, p.IsZero(), "no sensor MUST be bound on a fresh store")

	total, err := s.StepTotal(ctx)
	require.NoError(t, err)
	assert.Zero(t, total)

	bg, err := s.Background(ctx)
	require.NoError(t, err)
	assert.False(t, bg)

	tok, err := s.Token(ctx)
	require.NoError(t, err)
	assert.Empty(t, tok)
}

func TestSettings_RoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	s := New(kv)

	require.NoError(t, s.SetPeripheral(ctx, telemetry.PeripheralIdentity{ID: "AA:BB", Name: "band"}))
	require.NoError(t, s.SetStepTotal(ctx, 4321))
	require.NoError(t, s.SetBackground(ctx, true))
	require.NoError(t, s.SetToken(ctx, "tok"))

	// A second wrapper over the same store sees the persisted values.
	again := New(kv)

	p, err := again.Peripheral(ctx)
	require.NoError(t, err)
	assert.Equal(t, telemetry.PeripheralIdentity{ID: "AA:BB", Name: "band"}, p)

	total, err := again.StepTotal(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4321), total)

	bg, err := again.Background(ctx)
	require.NoError(t, err)
	assert.True(t, bg)

	raw, _, _ := kv.Get(ctx, KeyBackground)
	assert.Equal(t, "1", raw)

	tok, err := again.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok", tok)
}

func TestSettings_CorruptStepTotal(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	require.NoError(t, kv.Set(ctx, KeyLastStepCount, "not-a-number"))

	_, err := New(kv).StepTotal(ctx)
	assert.Error(t, err)
}
