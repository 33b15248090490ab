package recycler

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// stack is one worker's private pool for one recycler. Its elements slice is
// touched only by the owner, so pop and push on the owner never synchronize.
// Objects returned by other workers arrive through weak order queues and are
// moved into elements by the owner when it runs dry.
type stack[T comparable] struct {
	parent      *Recycler[T]
	owner       *Worker
	elements    []*Handle[T]
	maxCapacity int

	// availableSharedCapacity bounds how many handles all queues feeding this
	// stack may hold together. Donors reserve from it, the owner releases.
	availableSharedCapacity atomic.Int64
	maxQueues               int32
	queues                  atomic.Int32

	// mu serializes changes to the queue list. Reads never take it.
	mu   sync.Mutex
	head atomic.Pointer[weakOrderQueue[T]]
	tail *weakOrderQueue[T]

	// Scavenge position, owner only.
	cursor *weakOrderQueue[T]
	prev   *weakOrderQueue[T]
}

func newStack[T comparable](parent *Recycler[T], owner *Worker) *stack[T] {
	initial := parent.maxCapacity
	if initial > initialCapacity {
		initial = initialCapacity
	}

	s := &stack[T]{
		parent:      parent,
		owner:       owner,
		elements:    make([]*Handle[T], 0, initial),
		maxCapacity: parent.maxCapacity,
		maxQueues:   int32(parent.maxQueuesPerStack),
	}

	shared := parent.maxCapacity / parent.sharedCapacityFactor
	if shared < parent.linkCapacity {
		shared = parent.linkCapacity
	}
	s.availableSharedCapacity.Store(int64(shared))
	return s
}

func (s *stack[T]) ownerAlive() bool {
	return s.owner.Alive()
}

// capacity is the configured ceiling of the local array.
func (s *stack[T]) capacity() int {
	return s.maxCapacity
}

// size counts only locally held objects, not handles waiting in queues.
func (s *stack[T]) size() int {
	return len(s.elements)
}

// pop hands out the most recently pushed object, scavenging the queues when
// the local array is empty. It returns nil when nothing is available.
func (s *stack[T]) pop() *Handle[T] {
	n := len(s.elements)
	if n == 0 {
		if !s.scavenge() {
			return nil
		}
		n = len(s.elements)
	}

	n--
	h := s.elements[n]
	s.elements[n] = nil
	s.elements = s.elements[:n]
	h.markOutstanding()
	return h
}

// push stores an object returned by the owner. It reports false, dropping the
// object, when the stack is at capacity.
func (s *stack[T]) push(h *Handle[T]) bool {
	if len(s.elements) >= s.maxCapacity {
		return false
	}
	s.elements = append(s.elements, h)
	return true
}

// pushFromOtherWorker queues an object returned by donor. It never touches
// the local array. It reports false when the object was dropped.
func (s *stack[T]) pushFromOtherWorker(h *Handle[T], donor *Worker) bool {
	if !s.owner.Alive() {
		// Owner gone: let donor drop this stack and any other dead ones.
		donor.pruneDelayed()
		return false
	}

	entry, ok := donor.delayedQueue(s)
	if !ok {
		q := s.attachQueue(donor)
		if q == nil {
			donor.setDelayedQueue(s, queueLimit{})
			return false
		}
		donor.setDelayedQueue(s, q)
		return q.add(h)
	}

	q, ok := entry.(*weakOrderQueue[T])
	if !ok {
		// queueLimit: this stack refused a queue from donor before.
		return false
	}
	return q.add(h)
}

// attachQueue creates donor's queue and appends it to the queue list, or
// returns nil when the stack already tracks its maximum number of queues.
func (s *stack[T]) attachQueue(donor *Worker) *weakOrderQueue[T] {
	if s.maxQueues > 0 {
		for {
			n := s.queues.Load()
			if n >= s.maxQueues {
				s.parent.logger.Debug("donor queue limit reached",
					zap.Uint64("owner", s.owner.id),
					zap.Uint64("donor", donor.id),
					zap.Int32("queues", n))
				return nil
			}
			if s.queues.CompareAndSwap(n, n+1) {
				break
			}
		}
	} else {
		s.queues.Add(1)
	}

	q := newWeakOrderQueue[T](s.parent.queueIDs.Add(1), donor, &s.availableSharedCapacity, s.parent.linkCapacity)

	s.mu.Lock()
	if s.tail == nil {
		s.head.Store(q)
	} else {
		s.tail.next.Store(q)
	}
	s.tail = q
	s.mu.Unlock()

	s.parent.stats.queues.Increment()
	s.parent.logger.Debug("weak order queue created",
		zap.Uint64("owner", s.owner.id),
		zap.Uint64("donor", donor.id),
		zap.Uint64("queue", q.id))
	return q
}

// unlink removes q, whose predecessor is prev (nil for the list head).
func (s *stack[T]) unlink(prev, q *weakOrderQueue[T]) {
	s.mu.Lock()
	next := q.next.Load()
	if prev == nil {
		s.head.Store(next)
	} else {
		prev.next.Store(next)
	}
	if s.tail == q {
		s.tail = prev
	}
	s.mu.Unlock()
	s.queues.Add(-1)
}

// scavenge refills the local array from the queues. The first pass resumes
// where the previous scavenge stopped; if that finds nothing it wraps around
// once to the oldest queue, so queues behind the old position are visited
// too. On failure the position is reset to the oldest queue.
func (s *stack[T]) scavenge() bool {
	s.parent.stats.scavenges.Increment()
	resumed := s.cursor != nil
	if s.scavengeSome() {
		return true
	}
	s.prev = nil
	s.cursor = s.head.Load()
	if resumed && s.scavengeSome() {
		return true
	}
	s.prev = nil
	s.cursor = s.head.Load()
	return false
}

func (s *stack[T]) scavengeSome() bool {
	cursor, prev := s.cursor, s.prev
	if cursor == nil {
		prev = nil
		cursor = s.head.Load()
		if cursor == nil {
			return false
		}
	}

	success := false
	for cursor != nil {
		if cursor.transfer(s) {
			success = true
			break
		}

		next := cursor.next.Load()
		if !cursor.donor.Alive() && !cursor.hasFinalData() {
			// Nobody writes to the queue any more and it is drained: drop it
			// and free its capacity.
			dropped := cursor.reclaim()
			s.unlink(prev, cursor)
			s.parent.stats.reclaimed.Increment()
			if dropped > 0 {
				s.parent.stats.dropped.Add(uint64(dropped))
			}
			s.parent.logger.Debug("weak order queue reclaimed",
				zap.Uint64("owner", s.owner.id),
				zap.Uint64("donor", cursor.donor.id),
				zap.Uint64("queue", cursor.id))
		} else {
			prev = cursor
		}
		cursor = next
	}

	s.prev = prev
	s.cursor = cursor
	return success
}

// queued returns the number of handles waiting in all queues. Owner side only.
func (s *stack[T]) queued() int {
	n := 0
	for q := s.head.Load(); q != nil; q = q.next.Load() {
		n += q.len()
	}
	return n
}
