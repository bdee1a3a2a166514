package goble

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/pulsesync/internal/device"
	"github.com/srg/pulsesync/internal/groutine"
	"github.com/srg/pulsesync/internal/protocol"
)

const (
	// DefaultBLEWriteChunkSize is the maximum number of bytes to write in a single BLE operation.
	// BLE 4.0/4.1 defines an ATT_MTU of 23 bytes (20 bytes payload after the ATT header).
	DefaultBLEWriteChunkSize = 20

	// DefaultBLEWriteDelay is the delay between consecutive write chunks.
	DefaultBLEWriteDelay = 10 * time.Millisecond
)

// BLELink is a device.Link over a go-ble client, restricted to the sensor service.
type BLELink struct {
	client  ble.Client
	address string
	logger  *logrus.Logger

	chars map[string]*ble.Characteristic // normalized UUID -> characteristic

	writeMutex sync.Mutex
	connMutex  sync.RWMutex
	subscribed map[string]bool

	done      chan struct{}
	closeOnce sync.Once
}

// newBLELink discovers the sensor service on an already dialed client.
func newBLELink(client ble.Client, address string, logger *logrus.Logger) (*BLELink, error) {
	if logger == nil {
		logger = logrus.New()
	}

	logger.WithField("address", address).Debug("Discovering services and characteristics...")
	profile, err := client.DiscoverProfile(true)
	if err != nil {
		return nil, fmt.Errorf("failed to discover profile: %w", device.NormalizeError(err))
	}

	l := &BLELink{
		client:     client,
		address:    address,
		logger:     logger,
		chars:      make(map[string]*ble.Characteristic),
		subscribed: make(map[string]bool),
		done:       make(chan struct{}),
	}

	serviceUUID := protocol.NormalizeUUID(protocol.ServiceUUID)
	found := false
	for _, svc := range profile.Services {
		if protocol.NormalizeUUID(svc.UUID.String()) != serviceUUID {
			continue
		}
		found = true
		for _, c := range svc.Characteristics {
			l.chars[protocol.NormalizeUUID(c.UUID.String())] = c
		}
	}
	if !found {
		return nil, &device.NotFoundError{Resource: "service", UUID: protocol.ServiceUUID}
	}

	logger.WithFields(logrus.Fields{
		"address":         address,
		"characteristics": len(l.chars),
	}).Debug("Sensor service discovered")

	l.monitor()
	return l, nil
}

// monitor closes done when the platform reports the link dropped.
func (l *BLELink) monitor() {
	dc, ok := l.client.(interface{ Disconnected() <-chan struct{} })
	if !ok {
		l.logger.Debug("Client does not expose Disconnected(); link loss is only seen on failed I/O")
		return
	}
	groutine.Go(context.Background(), "ble-link-monitor", func(ctx context.Context) {
		select {
		case <-dc.Disconnected():
			l.logger.WithField("address", l.address).Warn("Peripheral reported disconnection")
			l.markClosed()
		case <-l.done:
		}
	})
}

func (l *BLELink) markClosed() {
	l.closeOnce.Do(func() { close(l.done) })
}

func (l *BLELink) characteristic(uuid string) (*ble.Characteristic, error) {
	c, ok := l.chars[protocol.NormalizeUUID(uuid)]
	if !ok {
		return nil, &device.NotFoundError{Resource: "characteristic", UUID: uuid}
	}
	return c, nil
}

func (l *BLELink) isClosed() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

// Subscribe enables notifications on a characteristic. Each payload is copied before
// it is handed to handler.
func (l *BLELink) Subscribe(uuid string, handler func(data []byte)) error {
	if l.isClosed() {
		return device.ErrNotConnected
	}
	c, err := l.characteristic(uuid)
	if err != nil {
		return err
	}

	err = l.client.Subscribe(c, false, func(req []byte) {
		handler(append([]byte(nil), req...))
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", protocol.CharacteristicName(uuid), device.NormalizeError(err))
	}

	l.connMutex.Lock()
	l.subscribed[protocol.NormalizeUUID(uuid)] = true
	l.connMutex.Unlock()
	return nil
}

func (l *BLELink) Unsubscribe(uuid string) error {
	c, err := l.characteristic(uuid)
	if err != nil {
		return err
	}

	l.connMutex.Lock()
	key := protocol.NormalizeUUID(uuid)
	wasSubscribed := l.subscribed[key]
	delete(l.subscribed, key)
	l.connMutex.Unlock()

	if !wasSubscribed || l.isClosed() {
		return nil
	}
	if err := l.client.Unsubscribe(c, false); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", protocol.CharacteristicName(uuid), device.NormalizeError(err))
	}
	return nil
}

// Write sends data with response, in chunks of DefaultBLEWriteChunkSize.
func (l *BLELink) Write(uuid string, data []byte) error {
	if l.isClosed() {
		return device.ErrNotConnected
	}
	c, err := l.characteristic(uuid)
	if err != nil {
		return err
	}

	l.writeMutex.Lock()
	defer l.writeMutex.Unlock()

	for len(data) > 0 {
		n := len(data)
		if n > DefaultBLEWriteChunkSize {
			n = DefaultBLEWriteChunkSize
		}
		if err := l.client.WriteCharacteristic(c, data[:n], false); err != nil {
			return fmt.Errorf("write %s: %w", protocol.CharacteristicName(uuid), device.NormalizeError(err))
		}
		data = data[n:]
		if len(data) > 0 {
			time.Sleep(DefaultBLEWriteDelay)
		}
	}
	return nil
}

func (l *BLELink) Disconnected() <-chan struct{} {
	return l.done
}

// Close drops the connection. It is safe to call more than once.
func (l *BLELink) Close() error {
	if l.isClosed() {
		return nil
	}
	l.markClosed()

	l.logger.WithField("address", l.address).Info("Disconnecting from peripheral...")
	if err := l.client.CancelConnection(); err != nil {
		l.logger.WithField("error", err).Warn("Peripheral disconnected with errors")
		return device.NormalizeError(err)
	}
	return nil
}
