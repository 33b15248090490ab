package recycler

import (
	"sync/atomic"
)

// weakOrderQueue carries objects that one donor worker returns to a stack it
// does not own. The donor appends at the tail without touching the stack; the
// stack's owner drains from the head during a scavenge. Ordering is FIFO per
// donor and nothing is promised across donors, hence "weak order".
//
// The queue holds its donor only to ask whether it is still alive. Every
// queued handle holds one unit of the stack's shared capacity, returned when
// the handle is transferred or the queue is reclaimed.
type weakOrderQueue[T comparable] struct {
	id    uint64
	donor *Worker

	// head is read and advanced by the owner, tail by the donor.
	head *link[T]
	tail *link[T]

	// next chains the queues attached to one stack in creation order.
	next atomic.Pointer[weakOrderQueue[T]]

	budget       *atomic.Int64
	linkCapacity int
}

func newWeakOrderQueue[T comparable](id uint64, donor *Worker, budget *atomic.Int64, linkCapacity int) *weakOrderQueue[T] {
	l := newLink[T](linkCapacity)
	return &weakOrderQueue[T]{
		id:           id,
		donor:        donor,
		head:         l,
		tail:         l,
		budget:       budget,
		linkCapacity: linkCapacity,
	}
}

// reserve takes n units from budget, failing when fewer remain.
func reserve(budget *atomic.Int64, n int64) bool {
	for {
		available := budget.Load()
		if available < n {
			return false
		}
		if budget.CompareAndSwap(available, available-n) {
			return true
		}
	}
}

// add queues h for the owner. It returns false, and drops h, when the shared
// capacity of the target stack is exhausted. Donor side only.
func (q *weakOrderQueue[T]) add(h *Handle[T]) bool {
	if !reserve(q.budget, 1) {
		return false
	}

	tail := q.tail
	if tail.full() {
		next := newLink[T](q.linkCapacity)
		tail.next.Store(next)
		q.tail = next
		tail = next
	}
	tail.push(h)
	return true
}

// transfer moves as many queued handles as the stack has room for, oldest
// first, and releases their capacity units. It reports whether anything was
// moved. Owner side only.
func (q *weakOrderQueue[T]) transfer(dst *stack[T]) bool {
	head := q.head
	if head == nil {
		return false
	}

	moved := 0
	for {
		room := dst.maxCapacity - len(dst.elements)
		if room <= 0 {
			break
		}
		if head.exhausted() {
			next := head.next.Load()
			if next == nil {
				break
			}
			// The exhausted link becomes garbage once head moves past it.
			q.head = next
			head = next
			continue
		}

		var n int
		dst.elements, n = head.drainInto(dst.elements, room)
		if n == 0 {
			break
		}
		moved += n
	}

	if moved > 0 {
		q.budget.Add(int64(moved))
	}
	return moved > 0
}

// len returns the number of handles waiting in the queue. Owner side only.
func (q *weakOrderQueue[T]) len() int {
	n := 0
	for l := q.head; l != nil; l = l.next.Load() {
		n += l.unread()
	}
	return n
}

// hasFinalData reports whether anything is left to drain. Owner side only.
func (q *weakOrderQueue[T]) hasFinalData() bool {
	return q.len() > 0
}

// reclaim drops whatever is still queued and gives all reserved capacity
// back to the stack. It returns the number of handles dropped. Owner side
// only, after the queue has been unlinked.
func (q *weakOrderQueue[T]) reclaim() int {
	dropped := q.len()
	if dropped > 0 {
		q.budget.Add(int64(dropped))
	}
	q.head = nil
	return dropped
}
