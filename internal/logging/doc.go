// Package logging assembles structured slog loggers and formatting helpers used
// across planet components.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so coordinator code can tag log
// lines with feed IDs, operations, and pass correlation IDs. Per-component
// level overrides let operators turn up a single subsystem (for example the
// supervisor) without flooding the rest of the log.
//
// Prefer these constructors over hand-rolled slog setup so new components
// emit data with the same shape and routing as the rest of the daemon.
package logging
