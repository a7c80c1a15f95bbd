// Package ipfs talks to the supervised content daemon.
//
// Client wraps the loopback control API (POST /api/v0/<cmd>) with typed
// responses and per-call timeouts. Gateway reads published content over the
// local HTTP gateway. Runner shells out to the installed daemon binary for the
// operations the control API cannot perform before the daemon is running:
// init, config writes, recursive add, and the daemon process itself.
//
// Endpoints carries the negotiated loopback ports so every caller follows a
// port change without being rebuilt.
package ipfs
