package mqtt

import "fmt"

// Topic prefixes for VRLink MQTT traffic.
const (
	// TopicPrefix is the base for all VRLink topics.
	TopicPrefix = "vrlink"

	// TopicPrefixEvents is the base for lifecycle event topics.
	TopicPrefixEvents = "vrlink/events"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "vrlink/system"
)

// Event names published under vrlink/events/device.
const (
	EventConnected    = "connected"
	EventDisconnected = "disconnected"
	EventPaired       = "paired"
	EventUnlinked     = "unlinked"
)

// Topics provides builders for VRLink MQTT topics.
// Using these helpers keeps topic naming consistent across the codebase.
type Topics struct{}

// DeviceEvent returns the topic for a device lifecycle event.
//
// Example: vrlink/events/device/connected
func (Topics) DeviceEvent(event string) string {
	return fmt.Sprintf("%s/device/%s", TopicPrefixEvents, event)
}

// SystemStatus returns the relay status topic.
//
// Example: vrlink/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllDeviceEvents returns a pattern matching every device event.
//
// Pattern: vrlink/events/device/+
func (Topics) AllDeviceEvents() string {
	return fmt.Sprintf("%s/device/+", TopicPrefixEvents)
}
