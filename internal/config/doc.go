// Package config loads, normalizes, and validates mediahub configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// MEDIAHUB_SOCKET. The Config type centralizes every knob the hub daemon, the
// converter worker, and the CLI need: the well-known socket path, watchdog
// cadence, relay bind address, the supervised worker roster, and logging.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
