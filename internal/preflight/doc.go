// Package preflight provides readiness checks for the filesystem paths,
// binaries and services the daemon depends on.
//
// These checks run in two contexts:
//   - The daemon logs a dependency snapshot at startup and includes the
//     binary checks in its status payload.
//   - The CLI "planet status" command renders RunAll results when the daemon
//     is not running.
//
// Each check is gated by its config toggle: disabled features are skipped.
package preflight
