package mqtt

import (
	"errors"
	"testing"
)

// These tests cover the validation and state paths that do not require
// a live broker. Connection and round-trip behaviour is covered by
// integration tests that need Mosquitto at 127.0.0.1:1883.

func TestCloseNil(t *testing.T) {
	client := &Client{}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on unconnected client error = %v, want nil", err)
	}
}

func TestIsConnectedInitialState(t *testing.T) {
	client := &Client{}
	if client.IsConnected() {
		t.Error("IsConnected() should be false for uninitialised client")
	}
}

func TestPublishEmptyTopic(t *testing.T) {
	client := &Client{}
	if err := client.Publish("", []byte("x"), 1, false); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Publish() error = %v, want ErrInvalidTopic", err)
	}
}

func TestPublishInvalidQoS(t *testing.T) {
	client := &Client{}
	if err := client.Publish("vrlink/test", []byte("x"), 3, false); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Publish() error = %v, want ErrInvalidQoS", err)
	}
}

func TestPublishOversizedPayload(t *testing.T) {
	client := &Client{}
	payload := make([]byte, maxPayloadSize+1)

	if err := client.Publish("vrlink/test", payload, 1, false); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("Publish() error = %v, want ErrPublishFailed", err)
	}
}

func TestPublishDisconnected(t *testing.T) {
	client := &Client{}
	if err := client.Publish("vrlink/test", []byte("x"), 1, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
}

func TestTopicBuilders(t *testing.T) {
	tests := []struct {
		name     string
		builder  func() string
		expected string
	}{
		{
			name:     "DeviceEventConnected",
			builder:  func() string { return Topics{}.DeviceEvent(EventConnected) },
			expected: "vrlink/events/device/connected",
		},
		{
			name:     "DeviceEventPaired",
			builder:  func() string { return Topics{}.DeviceEvent(EventPaired) },
			expected: "vrlink/events/device/paired",
		},
		{
			name:     "SystemStatus",
			builder:  func() string { return Topics{}.SystemStatus() },
			expected: "vrlink/system/status",
		},
		{
			name:     "AllDeviceEvents",
			builder:  func() string { return Topics{}.AllDeviceEvents() },
			expected: "vrlink/events/device/+",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.builder(); got != tt.expected {
				t.Errorf("%s() = %q, want %q", tt.name, got, tt.expected)
			}
		})
	}
}
