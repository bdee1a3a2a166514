package devicefactory

import (
	"github.com/sirupsen/logrus"
	"github.com/srg/pulsesync/internal/device"
	goble "github.com/srg/pulsesync/internal/device/go-ble"
)

// DeviceFactory opens the host radio used for scanning and dialing.
// This is a variable so that it can be overridden in tests.
var DeviceFactory = func(logger *logrus.Logger) (device.Radio, error) {
	radio, err := goble.NewRadio(logger)
	if err != nil {
		return nil, err
	}
	return radio, nil
}
