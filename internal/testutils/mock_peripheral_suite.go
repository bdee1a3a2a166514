//go:build test

package testutils

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/pulsesync/internal/device"
	"github.com/srg/pulsesync/internal/devicefactory"
	"github.com/stretchr/testify/suite"
)

// MockSensorSuite provides a reusable test suite with a fake radio installed as
// the device factory.
//
// Basic usage:
//
//	type ScanSuite struct {
//	    testutils.MockSensorSuite
//	}
//
//	func (s *ScanSuite) SetupTest() {
//	    s.WithAdvertisements(
//	        testutils.NewAdvertisementBuilder().WithAddress("AA:BB").WithName("Pulse").AsSensor(),
//	    )
//	    s.MockSensorSuite.SetupTest() // Call parent last to apply configuration
//	}
type MockSensorSuite struct {
	suite.Suite

	Helper      *TestHelper
	Logger      *logrus.Logger
	TestTimeout time.Duration

	// Radio is the fake installed for the current test.
	Radio *FakeRadio

	OriginalDeviceFactory func(logger *logrus.Logger) (device.Radio, error)

	advertisements []*AdvertisementBuilder
}

// SetupSuite runs once before all tests in the suite.
func (s *MockSensorSuite) SetupSuite() {
	s.Helper = NewTestHelper(s.T())
	s.Logger = s.Helper.Logger
	s.TestTimeout = 5 * time.Second

	s.OriginalDeviceFactory = devicefactory.DeviceFactory
	s.T().Cleanup(func() {
		if s.OriginalDeviceFactory != nil {
			devicefactory.DeviceFactory = s.OriginalDeviceFactory
		}
	})
}

// SetupTest installs a fresh FakeRadio replaying the configured advertisements.
func (s *MockSensorSuite) SetupTest() {
	s.Radio = NewFakeRadio(Advertisements(s.advertisements...)...)
	radio := s.Radio
	devicefactory.DeviceFactory = func(_ *logrus.Logger) (device.Radio, error) {
		return radio, nil
	}
}

// TearDownTest restores the device factory and forgets the configuration.
func (s *MockSensorSuite) TearDownTest() {
	if s.OriginalDeviceFactory != nil {
		devicefactory.DeviceFactory = s.OriginalDeviceFactory
	}
	s.advertisements = nil
	s.Radio = nil
}

// WithAdvertisements sets what the fake radio reports on every scan.
func (s *MockSensorSuite) WithAdvertisements(builders ...*AdvertisementBuilder) {
	s.advertisements = append(s.advertisements, builders...)
}
