package recycler

import (
	"github.com/ajitpratap0/recycler/pkg/lockfree"
)

// stats are bumped from every worker, so each counter sits on its own cache line.
type stats struct {
	gets        lockfree.PaddedCounter
	hits        lockfree.PaddedCounter
	allocations lockfree.PaddedCounter
	recycles    lockfree.PaddedCounter
	crossWorker lockfree.PaddedCounter
	dropped     lockfree.PaddedCounter
	violations  lockfree.PaddedCounter
	scavenges   lockfree.PaddedCounter
	queues      lockfree.PaddedCounter
	reclaimed   lockfree.PaddedCounter
	stacks      lockfree.Gauge
}

// Stats is a point-in-time snapshot of a recycler's counters. Counters are
// read one at a time, so a snapshot taken under load is approximate.
type Stats struct {
	// Gets is the number of Get calls.
	Gets uint64 `json:"gets"`
	// Hits is the number of Get calls served from a stack.
	Hits uint64 `json:"hits"`
	// Allocations is the number of objects built by the construction hook.
	Allocations uint64 `json:"allocations"`
	// Recycles is the number of accepted Recycle calls, stored or dropped.
	Recycles uint64 `json:"recycles"`
	// CrossWorkerRecycles counts accepted recycles by a worker other than the owner.
	CrossWorkerRecycles uint64 `json:"cross_worker_recycles"`
	// Dropped counts recycled objects left to the garbage collector because a
	// stack was full, a shared budget was exhausted or an owner had exited.
	Dropped uint64 `json:"dropped"`
	// Violations counts recycles rejected because the handle was already pooled.
	Violations uint64 `json:"violations"`
	// Scavenges counts attempts to refill an empty stack from its queues.
	Scavenges uint64 `json:"scavenges"`
	// QueuesCreated counts weak order queues ever attached.
	QueuesCreated uint64 `json:"queues_created"`
	// QueuesReclaimed counts queues dropped after their donor exited.
	QueuesReclaimed uint64 `json:"queues_reclaimed"`
	// Stacks is the number of live per-worker stacks.
	Stacks int64 `json:"stacks"`
}

// HitRatio returns Hits/Gets, or 0 before the first Get.
func (s Stats) HitRatio() float64 {
	if s.Gets == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Gets)
}

func (s *stats) snapshot() Stats {
	return Stats{
		Gets:                s.gets.Get(),
		Hits:                s.hits.Get(),
		Allocations:         s.allocations.Get(),
		Recycles:            s.recycles.Get(),
		CrossWorkerRecycles: s.crossWorker.Get(),
		Dropped:             s.dropped.Get(),
		Violations:          s.violations.Get(),
		Scavenges:           s.scavenges.Get(),
		QueuesCreated:       s.queues.Get(),
		QueuesReclaimed:     s.reclaimed.Get(),
		Stacks:              s.stacks.Get(),
	}
}
