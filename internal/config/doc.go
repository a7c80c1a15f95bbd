// Package config loads, normalizes, and validates planet configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// PLANET_API_TOKEN and NTFY_TOPIC. The Config type centralizes every knob the
// daemon and CLI need, and derives the on-disk layout (installed binary,
// daemon repository, feed directories, database, socket) from base_dir.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
