// Command planet is the control CLI for the planet daemon.
//
// It launches and stops the background daemon, manages local and followed
// feeds over the IPC socket, and renders status, node and log views. Read-only
// feed listings fall back to the database when the daemon is offline.
package main
