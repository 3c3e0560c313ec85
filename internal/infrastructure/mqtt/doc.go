// Package mqtt publishes VRLink lifecycle events to an MQTT broker.
//
// The relay itself never depends on MQTT; this client is an optional
// sink wired in at startup when mqtt.enabled is set. Home-automation
// systems and dashboards subscribe to vrlink/events/# to react to
// devices connecting, pairing, and unlinking.
//
// The client is publish-only. It maintains the connection with
// auto-reconnect and a Last Will so subscribers can tell a crashed
// relay from a stopped one.
package mqtt
