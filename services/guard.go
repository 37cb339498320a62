package services

import "sync/atomic"

// RunGuard serializes pipeline executions. Sync and cleanup mutate the
// same collections, so at most one run may be in flight; overlapping
// triggers are rejected, not queued.
type RunGuard struct {
	busy atomic.Bool
}

// TryAcquire reports whether the caller may start a run.
func (g *RunGuard) TryAcquire() bool {
	return g.busy.CompareAndSwap(false, true)
}

func (g *RunGuard) Release() {
	g.busy.Store(false)
}
