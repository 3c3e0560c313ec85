// Package relay is the core of VRLink: the device-facing WebSocket server,
// the live connection registry, and the request/reply correlation engine.
//
// Devices initiate a persistent connection and identify themselves with a
// hello or pair frame. From then on the relay can push fire-and-forget
// messages to the device or issue correlated requests (one outbound
// request, exactly one matching reply, with timeout). Many devices share
// the one listener and many request/reply pairs may be in flight at once.
//
// The shared mutable state is deliberately small: Registry maps device IDs
// to live channels, PendingTable maps (device, request) pairs to one-shot
// result slots. Each is guarded by its own mutex, and neither lock is ever
// held across network or storage I/O.
//
// Service is the command surface consumed by the HTTP API (and ultimately
// by the chat bot): pairing-code generation, device lookup, unlink,
// send-message, and request-library.
package relay
