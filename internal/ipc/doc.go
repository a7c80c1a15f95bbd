// Package ipc exposes the daemon over JSON-RPC on a Unix socket and ships the
// matching client used by the CLI.
//
// The server registers a single "Planet" receiver whose methods wrap daemon
// operations. Feed and status payloads reuse the HTTP API DTOs so both
// surfaces stay in step.
package ipc
