package relay

import "errors"

// Domain errors for the relay package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, relay.ErrRequestTimeout) {
//	    // device did not reply in time
//	}
var (
	// ErrNotConnected is returned when the target device has no live connection.
	ErrNotConnected = errors.New("relay: device not connected")

	// ErrSendFailed is returned when a frame could not be written to a
	// device's connection. The underlying cause is attached.
	ErrSendFailed = errors.New("relay: send failed")

	// ErrRequestTimeout is returned when a device does not reply to a
	// correlated request before the deadline.
	ErrRequestTimeout = errors.New("relay: request timed out")

	// ErrDeviceDisconnected is returned when the device's connection
	// closed while a request was still pending.
	ErrDeviceDisconnected = errors.New("relay: device disconnected")

	// ErrDuplicateRequest is returned when a request ID is already pending
	// for the same device. Request IDs are drawn from a 10-digit space, so
	// this indicates a logic error rather than a recoverable condition.
	ErrDuplicateRequest = errors.New("relay: duplicate request id")
)
