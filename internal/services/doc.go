// Package services defines shared utilities consumed by the coordinators,
// the supervisor, and the daemon control surfaces.
//
// Key responsibilities:
//   - Context helpers that stamp feed IDs, operation names, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper so callers can classify
//     failures with errors.Is and report a stable Kind label.
//
// Use these helpers when wiring new coordinator logic so error handling and
// observability stay uniform across the daemon.
package services
