package goble

import (
	"github.com/go-ble/ble"
	"github.com/srg/pulsesync/internal/device"
)

// DeviceFactory creates the platform ble.Device (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory = func() (ble.Device, error) {
	dev, err := newPlatformDevice()
	if err != nil {
		return nil, device.NormalizeError(err)
	}
	return dev, nil
}
