package recycler

import (
	"sync/atomic"

	"github.com/ajitpratap0/recycler/pkg/errors"
)

// Handle ties one pooled object to the Stack that owns it and tracks whether
// the object is currently borrowed (outstanding) or sitting in a pool.
//
// A handle is created once, together with its object, by the recycler's
// construction hook and lives as long as the object does. The object must
// keep its handle so it can be given back:
//
//	type conn struct {
//		handle *recycler.Handle[*conn]
//		buf    []byte
//	}
//
//	conns := recycler.MustNew(func(h *recycler.Handle[*conn]) *conn {
//		return &conn{handle: h, buf: make([]byte, 0, 4096)}
//	})
//
//	c := conns.Get(w)
//	defer c.handle.Recycle(w)
type Handle[T comparable] struct {
	id     uint64
	parent *Recycler[T]
	stack  *stack[T]
	value  T

	// lastRecycledBy is zero while the object is outstanding and holds the ID
	// of the worker that recycled it while it is pooled.
	lastRecycledBy atomic.Uint64
}

// ID returns the handle's identifier, unique within its recycler.
func (h *Handle[T]) ID() uint64 {
	return h.id
}

// Value returns the object bound to this handle.
func (h *Handle[T]) Value() T {
	return h.value
}

// Pooled reports whether the object has been recycled and not borrowed again.
func (h *Handle[T]) Pooled() bool {
	return h.lastRecycledBy.Load() != 0
}

// Recycle gives the bound object back on behalf of w.
func (h *Handle[T]) Recycle(w *Worker) error {
	return h.parent.Recycle(w, h.value, h)
}

func (h *Handle[T]) bind(s *stack[T]) {
	h.stack = s
}

// markRecycled moves the handle from outstanding to pooled. Exactly one of
// any number of concurrent callers succeeds; every other call, and every
// call on an already pooled handle, fails without changing state.
func (h *Handle[T]) markRecycled(by *Worker) error {
	if h.lastRecycledBy.CompareAndSwap(0, by.id) {
		return nil
	}
	return errors.New(errors.ErrorTypeRecycleViolation, "recycled already").
		WithDetail("recycler", h.parent.name).
		WithDetail("handle", h.id).
		WithDetail("worker", by.id).
		WithDetail("recycled_by", h.lastRecycledBy.Load())
}

func (h *Handle[T]) markOutstanding() {
	h.lastRecycledBy.Store(0)
}
