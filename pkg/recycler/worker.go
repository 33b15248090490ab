package recycler

import (
	"sync"
	"sync/atomic"
)

// pruneThreshold is the number of donor queue entries a worker keeps before
// it sweeps entries whose target stacks belong to exited workers.
const pruneThreshold = 32

var workerIDs atomic.Uint64

// Worker identifies a long-lived execution context (typically one goroutine)
// that borrows from and returns to recyclers. Each recycler keeps one Stack
// per Worker; a Worker also remembers, for every foreign Stack it has
// returned objects to, the weak order queue it feeds.
//
// A Worker must be driven by a single goroutine at a time. Workers are
// shared freely across recyclers of different types.
type Worker struct {
	id    uint64
	name  string
	alive atomic.Bool

	// delayed maps a foreign stack to the queue this worker appends to, or to
	// queueLimit when the stack refused a new queue. Only the goroutine
	// driving the worker touches it.
	delayed map[any]any

	mu    sync.Mutex
	hooks []func()
}

// queueLimit marks a stack that already tracks its maximum number of donor
// queues. Returns from this worker to that stack are dropped.
type queueLimit struct{}

// ownerAliver is implemented by every stack so a worker can prune entries
// for stacks whose owners have exited without knowing their element type.
type ownerAliver interface {
	ownerAlive() bool
}

// NewWorker registers a new live worker. The name is only used in logs.
func NewWorker(name string) *Worker {
	w := &Worker{
		id:   workerIDs.Add(1),
		name: name,
	}
	w.alive.Store(true)
	return w
}

// ID returns the worker's unique, non-zero identifier.
func (w *Worker) ID() uint64 {
	return w.id
}

// Name returns the name given to NewWorker.
func (w *Worker) Name() string {
	return w.name
}

// Alive reports whether Exit has not been called yet.
func (w *Worker) Alive() bool {
	return w.alive.Load()
}

// Exit marks the worker as gone. Every recycler forgets the worker's Stack,
// and queues the worker fed into other stacks are handed over and reclaimed
// by their owners on their next scavenge. Exit is idempotent and should be
// called by the goroutine driving the worker, or after synchronizing with it.
func (w *Worker) Exit() {
	if !w.alive.CompareAndSwap(true, false) {
		return
	}

	w.mu.Lock()
	hooks := w.hooks
	w.hooks = nil
	w.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
	w.delayed = nil
}

// onExit registers fn to run when the worker exits. It returns false, without
// registering, when the worker has already exited.
func (w *Worker) onExit(fn func()) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.alive.Load() {
		return false
	}
	w.hooks = append(w.hooks, fn)
	return true
}

// delayedQueue returns the entry recorded for stack, if any.
func (w *Worker) delayedQueue(stack any) (any, bool) {
	q, ok := w.delayed[stack]
	return q, ok
}

// setDelayedQueue records the entry for stack, sweeping stale entries first
// when the map has grown.
func (w *Worker) setDelayedQueue(stack, q any) {
	if w.delayed == nil {
		w.delayed = make(map[any]any)
	}
	if len(w.delayed) >= pruneThreshold {
		w.pruneDelayed()
	}
	w.delayed[stack] = q
}

func (w *Worker) pruneDelayed() int {
	pruned := 0
	for k := range w.delayed {
		if s, ok := k.(ownerAliver); ok && !s.ownerAlive() {
			delete(w.delayed, k)
			pruned++
		}
	}
	return pruned
}
