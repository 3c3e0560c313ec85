package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// RecordConnection writes a connection event for a device. connected is
// true on register and false on disconnect.
//
// Satisfies the relay's Metrics interface; the write is dropped
// silently while disconnected so telemetry never blocks session
// teardown.
func (c *Client) RecordConnection(deviceID string, connected bool) {
	if !c.IsConnected() {
		return
	}

	state := "disconnected"
	if connected {
		state = "connected"
	}

	point := write.NewPoint(
		"connections",
		map[string]string{
			"device_id": deviceID,
			"state":     state,
		},
		map[string]interface{}{
			"count": 1,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// RecordRequest writes the latency and outcome of one request/reply
// exchange with a device.
func (c *Client) RecordRequest(deviceID string, duration time.Duration, outcome string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"requests",
		map[string]string{
			"device_id": deviceID,
			"outcome":   outcome,
		},
		map[string]interface{}{
			"duration_ms": float64(duration.Milliseconds()),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and
// fields, for measurements the helpers do not cover.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}
