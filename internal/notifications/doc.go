// Package notifications forwards daemon events to ntfy.
//
// The default implementation publishes to the ntfy topic configured in
// config.toml and degrades to a no-op when no topic is set. Each event type
// maps to one short message; per-type switches in the notifications section
// suppress the noisy ones.
package notifications
