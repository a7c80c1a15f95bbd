// Package api defines wire-format types and converters for the IPC and HTTP
// API layer. It translates feed store models and daemon snapshots into
// transport-friendly DTOs that the CLI and other consumers can render
// without coupling to internal types.
//
// # Key Types
//
// Feed/Article: transport representation of a feed and its articles, with
// in-flight publish/update flags from the operation ledger.
//
// NodeStatus: supervisor state, ports, last error and health snapshot.
//
// DaemonStatus: aggregated runtime information including dependencies.
//
// # Converters
//
// FromFeed, FromArticle: store models to DTOs.
//
// FromHealth: health.Status to NodeHealth.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Timestamps use RFC3339 with milliseconds and
// are omitted when unset.
package api
