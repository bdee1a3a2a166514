// Package settings gives typed access to the scalar values kept in the store's
// key/value table.
package settings

import (
	"context"
	"strconv"

	"github.com/srg/pulsesync/internal/telemetry"
)

// Keys used in the settings table.
const (
	KeyPeripheral     = "peripheral"
	KeyPeripheralName = "peripheral_name"
	KeyLastStepCount  = "laststepcount"
	KeyBackground     = "bg"
	KeyToken          = "token"
)

// KV is the scalar part of the durable store.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Settings wraps a KV with typed accessors. Missing keys read as zero values.
type Settings struct {
	kv KV
}

func New(kv KV) *Settings {
	return &Settings{kv: kv}
}

// Peripheral returns the bound sensor, or a zero identity when none is bound.
func (s *Settings) Peripheral(ctx context.Context) (telemetry.PeripheralIdentity, error) {
	id, _, err := s.kv.Get(ctx, KeyPeripheral)
	if err != nil {
		return telemetry.PeripheralIdentity{}, err
	}
	name, _, err := s.kv.Get(ctx, KeyPeripheralName)
	if err != nil {
		return telemetry.PeripheralIdentity{}, err
	}
	return telemetry.PeripheralIdentity{ID: id, Name: name}, nil
}

// SetPeripheral binds a sensor.
func (s *Settings) SetPeripheral(ctx context.Context, p telemetry.PeripheralIdentity) error {
	if err := s.kv.Set(ctx, KeyPeripheral, p.ID); err != nil {
		return err
	}
	return s.kv.Set(ctx, KeyPeripheralName, p.Name)
}

// StepTotal returns the persisted running step total.
func (s *Settings) StepTotal(ctx context.Context) (int64, error) {
	v, ok, err := s.kv.Get(ctx, KeyLastStepCount)
	if err != nil || !ok || v == "" {
		return 0, err
	}
	return strconv.ParseInt(v, 10, 64)
}

func (s *Settings) SetStepTotal(ctx context.Context, total int64) error {
	return s.kv.Set(ctx, KeyLastStepCount, strconv.FormatInt(total, 10))
}

// Background reports whether background-execution mode is enabled.
func (s *Settings) Background(ctx context.Context) (bool, error) {
	v, ok, err := s.kv.Get(ctx, KeyBackground)
	if err != nil || !ok {
		return false, err
	}
	return v == "1" || v == "true", nil
}

func (s *Settings) SetBackground(ctx context.Context, enabled bool) error {
	v := "0"
	if enabled {
		v = "1"
	}
	return s.kv.Set(ctx, KeyBackground, v)
}

// Token returns the cached bearer token, empty if none.
func (s *Settings) Token(ctx context.Context) (string, error) {
	v, _, err := s.kv.Get(ctx, KeyToken)
	return v, err
}

func (s *Settings) SetToken(ctx context.Context, token string) error {
	return s.kv.Set(ctx, KeyToken, token)
}
