package crawler

import (
	"github.com/JakeFAU/crawlqueue/internal/metrics"
	"github.com/JakeFAU/crawlqueue/internal/queue"
)

// Capacity returns how many invocations can be started right now: the free
// concurrency slots, capped by the queued backlog.
func Capacity(limit int, snap queue.Snapshot) int {
	available := limit - len(snap.Queue.Processing)
	queued := len(snap.Queue.Queued)
	if available <= 0 || queued <= 0 {
		return 0
	}
	return min(available, queued)
}

// StartJobs calls spec.Start once per free slot and returns how many it started.
// The snapshot may already be stale; Register rejects any overshoot.
func StartJobs(spec JobSpec, snap queue.Snapshot) int {
	if spec.Start == nil {
		return 0
	}
	n := Capacity(spec.Config.ConcurrencyLimit, snap)
	for i := 0; i < n; i++ {
		spec.Start()
	}
	metrics.Init()
	metrics.ObserveScheduled(n)
	return n
}
