package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ConnectionState represents the specific kind of connection state failure
type ConnectionState string

const (
	NotConnected      ConnectionState = "not_connected"
	AlreadyConnected  ConnectionState = "already_connected"
	ConnectInProgress ConnectionState = "connect_in_progress"
	BluetoothOff      ConnectionState = "bluetooth_off"
)

// ConnectionError represents any connection-related problem
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

var (
	ErrNotConnected      = &ConnectionError{State: NotConnected}
	ErrAlreadyConnected  = &ConnectionError{State: AlreadyConnected}
	ErrConnectInProgress = &ConnectionError{State: ConnectInProgress}
	ErrBluetoothOff      = &ConnectionError{State: BluetoothOff}
)

var (
	ErrCharacteristicNotFound = errors.New("characteristic not found")
	ErrServiceNotFound        = errors.New("service not found")
	ErrTimeout                = errors.New("operation timed out")
)

// NotFoundError reports a service or characteristic missing from the peripheral's profile.
type NotFoundError struct {
	Resource string // "service" or "characteristic"
	UUID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.UUID)
}

// Is matches ErrCharacteristicNotFound or ErrServiceNotFound depending on Resource.
func (e *NotFoundError) Is(target error) bool {
	switch target {
	case ErrCharacteristicNotFound:
		return e.Resource == "characteristic"
	case ErrServiceNotFound:
		return e.Resource == "service"
	}
	return false
}

// NormalizeError maps known platform error strings onto the sentinels above.
// The original error is kept in the message.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return err
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "is bluetooth turned on"),
		strings.Contains(msg, "bluetooth is turned off"),
		strings.Contains(msg, "can't init hci"):
		return fmt.Errorf("%w: %v", ErrBluetoothOff, err)
	case strings.Contains(msg, "device not connected"),
		strings.Contains(msg, "disconnected"):
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	case strings.Contains(msg, "device already connected"):
		return fmt.Errorf("%w: %v", ErrAlreadyConnected, err)
	case strings.Contains(msg, "timed out"),
		strings.Contains(msg, "timeout"):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	default:
		return err
	}
}

// Advertisement is what a scan reports about one peripheral.
type Advertisement interface {
	LocalName() string
	Addr() string
	RSSI() int
	Services() []string
}

// ScanningDevice discovers advertising peripherals until ctx is done.
type ScanningDevice interface {
	Scan(ctx context.Context, allowDup bool, handler func(Advertisement)) error
}

// Link is a live connection to the sensor. Characteristics are addressed by UUID.
type Link interface {
	// Subscribe enables notifications; handler is called once per notification, in wire order.
	Subscribe(charUUID string, handler func(data []byte)) error
	Unsubscribe(charUUID string) error
	Write(charUUID string, data []byte) error
	// Disconnected is closed when the link drops or is closed.
	Disconnected() <-chan struct{}
	Close() error
}

// Dialer opens a Link to the peripheral with the given address.
type Dialer interface {
	Dial(ctx context.Context, address string) (Link, error)
}

// Radio is the host adapter: it can scan and dial.
type Radio interface {
	ScanningDevice
	Dialer
}
