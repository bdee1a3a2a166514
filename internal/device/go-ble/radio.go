package goble

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/pulsesync/internal/device"
)

// Radio implements device.Radio on top of a go-ble device.
type Radio struct {
	dev    ble.Device
	logger *logrus.Logger
}

// NewRadio opens the platform adapter through DeviceFactory.
func NewRadio(logger *logrus.Logger) (*Radio, error) {
	if logger == nil {
		logger = logrus.New()
	}
	dev, err := DeviceFactory()
	if err != nil {
		logger.WithField("error", err).Error("Failed to create BLE device")
		return nil, fmt.Errorf("failed to create BLE device: %w", err)
	}
	return &Radio{dev: dev, logger: logger}, nil
}

// Scan wraps the raw ble.Device.Scan to convert ble.Advertisement to device.Advertisement
func (r *Radio) Scan(ctx context.Context, allowDup bool, handler func(device.Advertisement)) error {
	err := r.dev.Scan(ctx, allowDup, func(adv ble.Advertisement) {
		handler(NewBLEAdvertisement(adv))
	})
	return device.NormalizeError(err)
}

// Dial connects to address and discovers the sensor service. The caller bounds the
// attempt through ctx.
func (r *Radio) Dial(ctx context.Context, address string) (device.Link, error) {
	if strings.TrimSpace(address) == "" {
		return nil, fmt.Errorf("device address is empty")
	}

	r.logger.WithField("address", address).Debug("Dialing BLE device...")
	client, err := r.dev.Dial(ctx, ble.NewAddr(address))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to device with address %q: %w", address, device.NormalizeError(err))
	}

	link, err := newBLELink(client, address, r.logger)
	if err != nil {
		if cancelErr := client.CancelConnection(); cancelErr != nil {
			r.logger.WithField("cancel_error", cancelErr).Warn("Failed to cancel connection after discovery failure")
		}
		return nil, err
	}
	return link, nil
}

// Stop releases the adapter.
func (r *Radio) Stop() error {
	return r.dev.Stop()
}
