package relay

import "time"

// Events receives lifecycle notifications from the relay. Implementations
// must not block; the relay calls these from session goroutines.
type Events interface {
	DeviceConnected(deviceID, deviceName string)
	DeviceDisconnected(deviceID string)
	DevicePaired(userID, deviceID string)
	DeviceUnlinked(userID, deviceID string)
}

// Metrics receives operational measurements from the relay.
type Metrics interface {
	RecordConnection(deviceID string, connected bool)
	RecordRequest(deviceID string, duration time.Duration, outcome string)
}

// Request outcomes reported to Metrics.RecordRequest.
const (
	OutcomeOK           = "ok"
	OutcomeTimeout      = "timeout"
	OutcomeDisconnected = "disconnected"
	OutcomeSendFailed   = "send_failed"
	OutcomeCancelled    = "cancelled"
)

type noopEvents struct{}

func (noopEvents) DeviceConnected(string, string) {}
func (noopEvents) DeviceDisconnected(string)      {}
func (noopEvents) DevicePaired(string, string)    {}
func (noopEvents) DeviceUnlinked(string, string)  {}

type noopMetrics struct{}

func (noopMetrics) RecordConnection(string, bool)               {}
func (noopMetrics) RecordRequest(string, time.Duration, string) {}
