// Package recycler implements a per-worker object pool with a lock-free
// cross-worker return path.
//
// Architecture
//
// Every Recycler keeps one bounded stack per Worker. A Worker stands for a
// long-lived goroutine: it borrows objects with Get and gives them back with
// Recycle. While a worker recycles its own objects nothing is shared, so the
// fast path is a slice append and a slice pop.
//
// When a worker recycles an object created by another worker, the object is
// appended to a weak order queue that the donor owns and the owner's stack
// links to. Queues are chains of fixed-size links; the donor publishes each
// slot with an atomic store, and the owner drains whole links when its local
// stack runs dry. Queued objects draw on a shared capacity budget per stack,
// so a flood of returns from other workers cannot grow memory without bound.
//
// Core Types:
//
//   - Recycler[T]: the pool, one per object type and configuration
//   - Handle[T]: bound to one object for its lifetime, detects double recycles
//   - Worker: identity of the goroutine driving Get and Recycle
//
// Lifecycle
//
// Workers must be retired with Exit. An exited worker's stacks are forgotten
// by every recycler; objects it had queued into other workers' stacks are
// still delivered, after which the queues are reclaimed.
//
// Usage
//
//	type frame struct {
//		handle *recycler.Handle[*frame]
//		data   []byte
//	}
//
//	frames := recycler.MustNew(func(h *recycler.Handle[*frame]) *frame {
//		return &frame{handle: h, data: make([]byte, 0, 1500)}
//	}, recycler.WithName("frames"))
//
//	w := recycler.NewWorker("reader")
//	defer w.Exit()
//
//	f := frames.Get(w)
//	// ... use f ...
//	f.data = f.data[:0]
//	if err := f.handle.Recycle(w); err != nil {
//		// f was already pooled
//	}
//
// Objects that do not fit anywhere are dropped and reclaimed by the garbage
// collector; Get then constructs a new one. Stats exposes counters for hits,
// allocations, cross-worker returns and drops.
package recycler
