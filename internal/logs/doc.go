// Package logs tails the planet log and the content daemon log for the CLI.
//
// Negative offsets return the last N lines; follow mode blocks on file
// change notifications until new lines arrive or the wait elapses.
package logs
