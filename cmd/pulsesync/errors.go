package main

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/srg/pulsesync/internal/credential"
	"github.com/srg/pulsesync/internal/device"
	"github.com/srg/pulsesync/internal/supervisor"
	"github.com/srg/pulsesync/internal/syncer"
	"github.com/srg/pulsesync/internal/transport"
	"github.com/srg/pulsesync/scanner"
)

// Command-level errors
var (
	ErrNoServer = errors.New("no server configured")
)

// FormatUserError turns known failures into a one-line hint for the terminal.
// Anything else is printed as is.
func FormatUserError(err error) string {
	var status *transport.StatusError
	var se *syncer.SyncError

	switch {
	case errors.Is(err, credential.ErrNoCredential):
		return "no access token; run 'pulsesync token url' and then 'pulsesync token set <redirect-url>'"
	case errors.Is(err, ErrNoServer):
		return fmt.Sprintf("no server configured; set server_url in the config file or %s", "PULSESYNC_SERVER")
	case errors.Is(err, supervisor.ErrNoPeripheral):
		return "no sensor bound; run 'pulsesync scan' and 'pulsesync bind <address>'"
	case errors.Is(err, scanner.ErrNotFound):
		return "sensor not found; make sure it is powered on and in range"
	case errors.Is(err, device.ErrBluetoothOff):
		return "Bluetooth is turned off or unavailable"
	case errors.As(err, &status) && status.StatusCode == http.StatusUnauthorized:
		return "the server rejected the access token; store a fresh one with 'pulsesync token set'"
	case errors.As(err, &se):
		return fmt.Sprintf("upload failed, data is kept for the next attempt: %v", se.Err)
	default:
		return err.Error()
	}
}
