// Package watch implements the filesystem watcher and debounce stage
// of spec §4.8: subscribe to every workspace member root, coalesce
// bursts within a debounce window, map changed paths to their owning
// unit by longest-prefix match, and hand the affected unit set to a
// caller-supplied reindex callback. The actual reindex (steps
// 4.3/4.4/4.5) lives in internal/ingest; this package only decides
// which units need it and when.
package watch
