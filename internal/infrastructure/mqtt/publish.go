package mqtt

import (
	"encoding/json"
	"fmt"
	"time"
)

// Maximum payload size for MQTT messages (1MB).
// This prevents resource exhaustion and aligns with typical broker limits.
const maxPayloadSize = 1 << 20

// deviceEvent is the JSON shape published for lifecycle events.
type deviceEvent struct {
	Event     string `json:"event"`
	DeviceID  string `json:"device_id"`
	UserID    string `json:"user_id,omitempty"`
	Name      string `json:"device_name,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Publish sends a message to the specified MQTT topic.
//
// QoS levels: 0 at most once, 1 at least once, 2 exactly once. Retained
// messages are stored by the broker and delivered to new subscribers;
// use them for state, never for events.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}

// PublishDeviceEvent publishes a lifecycle event to the event topic for
// its kind. userID and deviceName may be empty when the event does not
// carry them.
func (c *Client) PublishDeviceEvent(event, deviceID, userID, deviceName string) error {
	payload, err := json.Marshal(deviceEvent{
		Event:     event,
		DeviceID:  deviceID,
		UserID:    userID,
		Name:      deviceName,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("%w: encoding event: %w", ErrPublishFailed, err)
	}

	return c.Publish(Topics{}.DeviceEvent(event), payload, byte(c.cfg.QoS), false)
}
