// Package scanner discovers advertising sensors and locates the bound peripheral.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/pulsesync/internal/device"
	"github.com/srg/pulsesync/internal/live"
	"github.com/srg/pulsesync/internal/protocol"
)

// ErrNotFound is returned when a scan ends without seeing the requested peripheral.
var ErrNotFound = errors.New("peripheral not found")

// ProgressCallback is called when the scan phase changes
type ProgressCallback func(phase string)

// DeviceEventType marks if the device was newly discovered or updated
type DeviceEventType int

const (
	EventNew DeviceEventType = iota
	EventUpdated
)

type DeviceEvent struct {
	Type   DeviceEventType
	Sensor Sensor
}

// Sensor is one discovered peripheral.
type Sensor struct {
	Address    string
	Name       string
	RSSI       int
	HasService bool // advertises the sensor service
	LastSeen   time.Time
}

// ScanOptions configures scanning behavior
type ScanOptions struct {
	Duration        time.Duration
	DuplicateFilter bool
	// SensorsOnly drops peripherals that do not advertise the sensor service.
	SensorsOnly bool
}

// DefaultScanOptions returns default scanning options
func DefaultScanOptions() *ScanOptions {
	return &ScanOptions{
		Duration:        6 * time.Second,
		DuplicateFilter: true,
	}
}

// Scanner handles BLE device discovery
type Scanner struct {
	radio  device.ScanningDevice
	events *live.RingChannel[DeviceEvent]
	logger *logrus.Logger
}

// NewScanner creates a scanner over the given radio.
func NewScanner(radio device.ScanningDevice, logger *logrus.Logger) *Scanner {
	if logger == nil {
		logger = logrus.New()
	}
	return &Scanner{
		radio:  radio,
		events: live.NewRingChannel[DeviceEvent](100),
		logger: logger,
	}
}

// Events streams discovery events. Old events are overwritten when nobody reads.
func (s *Scanner) Events() <-chan DeviceEvent {
	return s.events.C()
}

// Scan collects every peripheral seen within opts.Duration, ordered by address.
func (s *Scanner) Scan(ctx context.Context, opts *ScanOptions, progressCallback ProgressCallback) ([]Sensor, error) {
	if opts == nil {
		opts = DefaultScanOptions()
	}
	if progressCallback == nil {
		progressCallback = func(string) {}
	}

	s.logger.WithField("duration", opts.Duration).Info("Starting BLE scan...")
	progressCallback("Scanning")

	scanCtx, cancel := context.WithTimeout(ctx, opts.Duration)
	defer cancel()

	devices := hashmap.New[string, *Sensor]()
	err := s.radio.Scan(scanCtx, !opts.DuplicateFilter, func(adv device.Advertisement) {
		s.handleAdvertisement(devices, adv, opts)
	})
	if err != nil && !isScanEnd(err) {
		return nil, fmt.Errorf("scan failed: %w", err)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	s.logger.WithField("device_count", devices.Len()).Info("BLE scan completed")
	progressCallback("Processing results")

	result := make([]Sensor, 0, devices.Len())
	devices.Range(func(_ string, value *Sensor) bool {
		result = append(result, *value)
		return true
	})
	sort.Slice(result, func(i, j int) bool { return result[i].Address < result[j].Address })
	return result, nil
}

// handleAdvertisement updates existing or adds a new device
func (s *Scanner) handleAdvertisement(devices *hashmap.Map[string, *Sensor], adv device.Advertisement, opts *ScanOptions) {
	sensor := toSensor(adv)
	if opts.SensorsOnly && !sensor.HasService {
		return
	}

	dev, existing := devices.GetOrInsert(sensor.Address, &sensor)
	if existing {
		dev.RSSI = sensor.RSSI
		dev.LastSeen = sensor.LastSeen
		if sensor.Name != "" {
			dev.Name = sensor.Name
		}
		s.events.ForceSend(DeviceEvent{Type: EventUpdated, Sensor: *dev})
		return
	}

	s.logger.WithFields(logrus.Fields{
		"device":  sensor.Name,
		"address": sensor.Address,
		"rssi":    sensor.RSSI,
	}).Info("Discovered new device")
	s.events.ForceSend(DeviceEvent{Type: EventNew, Sensor: sensor})
}

// FindFirst scans until an advertisement from address arrives, then stops the scan
// immediately. The first match wins; later advertisements are discarded.
func (s *Scanner) FindFirst(ctx context.Context, address string, timeout time.Duration) (Sensor, error) {
	scanCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		mu    sync.Mutex
		found *Sensor
	)

	s.logger.WithFields(logrus.Fields{
		"address": address,
		"timeout": timeout,
	}).Debug("Scanning for bound peripheral...")

	err := s.radio.Scan(scanCtx, false, func(adv device.Advertisement) {
		if !strings.EqualFold(adv.Addr(), address) {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if found != nil {
			return
		}
		sensor := toSensor(adv)
		found = &sensor
		cancel()
	})

	mu.Lock()
	defer mu.Unlock()
	if found != nil {
		return *found, nil
	}
	if ctx.Err() != nil {
		return Sensor{}, ctx.Err()
	}
	if err != nil && !isScanEnd(err) {
		return Sensor{}, fmt.Errorf("scan failed: %w", err)
	}
	return Sensor{}, ErrNotFound
}

func toSensor(adv device.Advertisement) Sensor {
	sensor := Sensor{
		Address:  adv.Addr(),
		Name:     adv.LocalName(),
		RSSI:     adv.RSSI(),
		LastSeen: time.Now(),
	}
	for _, svc := range adv.Services() {
		if protocol.SameUUID(svc, protocol.ServiceUUID) {
			sensor.HasService = true
			break
		}
	}
	return sensor
}

func isScanEnd(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
