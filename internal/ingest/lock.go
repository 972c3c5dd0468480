package ingest

import "sync/atomic"

// RunLock gives a daemon non-blocking lock semantics around a single
// reindex at a time: CompareAndSwap-based rather than sync.Mutex,
// since the daemon needs to refuse a concurrent reindex rather than
// queue behind one.
type RunLock struct {
	state atomic.Int32 // 0 = idle, 1 = running
}

// TryAcquire attempts to start a run without blocking. Returns false
// if a run is already in progress.
func (l *RunLock) TryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Release marks the run as finished. Must only be called by the
// goroutine that successfully acquired the lock.
func (l *RunLock) Release() {
	l.state.Store(0)
}

// pipelineLock serializes IngestWorkspace/IngestUnits within a
// process. This is a different guarantee from a daemon's own
// singleflight coalescing of duplicate reindex requests: it protects
// the pipeline itself against two unrelated callers (e.g. a direct
// caller and a daemon sharing a process in tests) staging into the
// same side store at once.
var pipelineLock RunLock
