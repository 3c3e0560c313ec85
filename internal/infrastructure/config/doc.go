// Package config loads and validates VRLink Core configuration.
//
// Configuration is read from a YAML file, merged over hardcoded defaults,
// then overridden by VRLINK_* environment variables. See Load for the
// precedence rules and config.yaml in configs/ for a documented example.
package config
