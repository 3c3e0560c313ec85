// Package influxdb records relay telemetry in InfluxDB v2.
//
// Two measurements are written: connection events (device connects and
// disconnects) and request metrics (library request latency and
// outcome). The relay does not depend on this package; it is an
// optional metrics sink wired in at startup when influxdb.enabled is
// set.
//
// Writes are non-blocking and batched by the client library, so a slow
// or unreachable InfluxDB never backs up the relay's hot paths. Async
// write failures surface through the SetOnError callback.
package influxdb
