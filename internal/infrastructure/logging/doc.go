// Package logging provides the structured logger used across VRLink Core.
//
// It wraps log/slog with the project's configuration (level, format,
// destination) and stamps every record with the service name and version.
package logging
