package recycler

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ajitpratap0/recycler/pkg/errors"
	"github.com/ajitpratap0/recycler/pkg/logger"
)

// Recycler pools objects of type T per worker. Get and Recycle on the
// worker that created an object touch only that worker's stack and take no
// locks; a Recycle from any other worker goes through a weak order queue the
// owner drains lazily.
//
// Type parameter T is typically a pointer to the pooled struct. Every
// Recycler has its own stacks, independent from any other Recycler.
type Recycler[T comparable] struct {
	name                 string
	newObject            func(*Handle[T]) T
	maxCapacity          int
	linkCapacity         int
	sharedCapacityFactor int
	maxQueuesPerStack    int

	// stacks maps a *Worker to its *stack[T]. Entries are created lazily by
	// their own worker and removed when the worker exits.
	stacks sync.Map

	handleIDs atomic.Uint64
	queueIDs  atomic.Uint64
	stats     stats
	logger    *zap.Logger
}

// New creates a recycler whose construction hook newObject builds a fresh
// object bound to the given handle. The hook must not recycle or cache the
// object itself.
//
// Example:
//
//	r, err := recycler.New(
//	    func(h *recycler.Handle[*Frame]) *Frame { return &Frame{handle: h} },
//	    recycler.WithName("frames"),
//	    recycler.WithMaxCapacityPerWorker(1024),
//	)
func New[T comparable](newObject func(*Handle[T]) T, opts ...Option) (*Recycler[T], error) {
	if newObject == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "construction hook is required")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.validate(); err != nil {
		return nil, err
	}

	l := o.logger
	if l == nil {
		l = logger.Get()
	}

	return &Recycler[T]{
		name:                 o.name,
		newObject:            newObject,
		maxCapacity:          o.maxCapacity,
		linkCapacity:         nextPowerOfTwo(o.linkCapacity),
		sharedCapacityFactor: o.sharedCapacityFactor,
		maxQueuesPerStack:    o.maxQueuesPerStack,
		logger:               l.With(zap.String("recycler", o.name)),
	}, nil
}

// MustNew is like New but panics on invalid options. It suits package-level
// recyclers.
func MustNew[T comparable](newObject func(*Handle[T]) T, opts ...Option) *Recycler[T] {
	r, err := New(newObject, opts...)
	if err != nil {
		panic(err)
	}
	return r
}

// Name returns the recycler's name.
func (r *Recycler[T]) Name() string {
	return r.name
}

// MaxCapacityPerWorker returns the configured per-worker capacity.
func (r *Recycler[T]) MaxCapacityPerWorker() int {
	return r.maxCapacity
}

// LinkCapacity returns the effective (power of two) link size.
func (r *Recycler[T]) LinkCapacity() int {
	return r.linkCapacity
}

// Get returns an object for w: the most recently recycled one held by w's
// stack, one returned to w by another worker, or a freshly constructed one.
// Get never fails. A nil or exited worker always gets a new, unpooled object.
func (r *Recycler[T]) Get(w *Worker) T {
	r.stats.gets.Increment()
	if r.maxCapacity == 0 || w == nil || !w.Alive() {
		return r.construct(nil)
	}

	s := r.stackFor(w)
	if h := s.pop(); h != nil {
		r.stats.hits.Increment()
		return h.value
	}
	return r.construct(s)
}

func (r *Recycler[T]) construct(s *stack[T]) T {
	r.stats.allocations.Increment()
	h := &Handle[T]{id: r.handleIDs.Add(1), parent: r}
	h.bind(s)
	h.value = r.newObject(h)
	return h.value
}

// Recycle gives obj back on behalf of w. h must be the handle obj was
// constructed with. Recycling an object that is already pooled fails with an
// error matching ErrRecycledAlready and leaves the pool untouched, whichever
// worker tries. Objects that do not fit (full stack, exhausted shared
// budget, owner exited) are silently left to the garbage collector.
func (r *Recycler[T]) Recycle(w *Worker, obj T, h *Handle[T]) error {
	if h == nil {
		return errors.New(errors.ErrorTypeValidation, "nil handle").
			WithDetail("recycler", r.name)
	}
	if w == nil {
		return errors.New(errors.ErrorTypeValidation, "nil worker").
			WithDetail("recycler", r.name)
	}
	if h.parent != r {
		return errors.New(errors.ErrorTypeOwnership, "handle belongs to another recycler").
			WithDetail("recycler", r.name).
			WithDetail("handle", h.id)
	}
	if h.value != obj {
		return errors.New(errors.ErrorTypeOwnership, "object does not belong to handle").
			WithDetail("recycler", r.name).
			WithDetail("handle", h.id)
	}

	if err := h.markRecycled(w); err != nil {
		r.stats.violations.Increment()
		r.logger.Warn("recycle violation",
			zap.Uint64("handle", h.id),
			zap.Uint64("worker", w.id),
			errors.Field(err))
		return err
	}
	r.stats.recycles.Increment()

	s := h.stack
	switch {
	case s == nil:
		r.stats.dropped.Increment()
	case s.owner == w:
		// An exited owner's stack is already forgotten.
		if !w.Alive() || !s.push(h) {
			r.stats.dropped.Increment()
		}
	default:
		r.stats.crossWorker.Increment()
		if !w.Alive() || !s.pushFromOtherWorker(h, w) {
			r.stats.dropped.Increment()
		}
	}
	return nil
}

// LocalCapacity returns the capacity of w's stack.
func (r *Recycler[T]) LocalCapacity(w *Worker) int {
	if r.maxCapacity == 0 || w == nil || !w.Alive() {
		return 0
	}
	if s := r.loadStack(w); s != nil {
		return s.capacity()
	}
	return r.maxCapacity
}

// LocalSize returns how many objects w's stack holds locally. Objects
// returned by other workers and still waiting in queues are not counted.
func (r *Recycler[T]) LocalSize(w *Worker) int {
	if r.maxCapacity == 0 || w == nil || !w.Alive() {
		return 0
	}
	if s := r.loadStack(w); s != nil {
		return s.size()
	}
	return 0
}

// Queued returns how many objects other workers have returned to w that
// w has not drained yet.
func (r *Recycler[T]) Queued(w *Worker) int {
	if r.maxCapacity == 0 || w == nil || !w.Alive() {
		return 0
	}
	if s := r.loadStack(w); s != nil {
		return s.queued()
	}
	return 0
}

// Stats returns a snapshot of the recycler's counters.
func (r *Recycler[T]) Stats() Stats {
	return r.stats.snapshot()
}

// stackFor returns w's stack, creating it on first use. Only w's goroutine
// calls it for w.
// loadStack returns w's stack without creating it.
func (r *Recycler[T]) loadStack(w *Worker) *stack[T] {
	if v, ok := r.stacks.Load(w); ok {
		return v.(*stack[T])
	}
	return nil
}

func (r *Recycler[T]) stackFor(w *Worker) *stack[T] {
	if v, ok := r.stacks.Load(w); ok {
		return v.(*stack[T])
	}

	v, loaded := r.stacks.LoadOrStore(w, newStack(r, w))
	s := v.(*stack[T])
	if loaded {
		return s
	}

	r.stats.stacks.Add(1)
	if !w.onExit(func() { r.forget(w) }) {
		r.forget(w)
	}
	r.logger.Debug("stack created",
		zap.Uint64("worker", w.id),
		zap.String("worker_name", w.name),
		zap.Int("max_capacity", r.maxCapacity))
	return s
}

func (r *Recycler[T]) forget(w *Worker) {
	if _, ok := r.stacks.LoadAndDelete(w); ok {
		r.stats.stacks.Add(-1)
	}
}
