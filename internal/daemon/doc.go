// Package daemon coordinates the long-running planet process.
//
// It wires configuration, the feed store, the daemon supervisor, port
// negotiation, the status poller, the publish and follow coordinators and the
// scheduler into a single lifecycle with flock-based locking to prevent
// multiple instances. The daemon exposes feed operations for the IPC and HTTP
// layers and owns notification forwarding.
//
// Keep orchestration logic here: publish, follow and supervision details
// live in their own packages while the daemon focuses on startup, shutdown
// and high level coordination.
package daemon
