// Package daemon implements ctd's IPC surface (spec §6): transport
// listeners for the Unix/TCP endpoints, the newline-delimited JSON
// frame protocol, per-connection cancellation, generation-handle
// snapshot isolation across reindexes, and command dispatch to
// internal/query, internal/expand, and internal/ingest.
package daemon
