package recycler

import (
	"sync/atomic"
)

// link is a fixed-size chunk of a weak order queue. The donor worker is the
// only writer and publishes each handle by advancing writeIndex; the owning
// stack's worker is the only reader and owns readIndex.
type link[T comparable] struct {
	elements   []*Handle[T]
	writeIndex atomic.Int32
	readIndex  int
	next       atomic.Pointer[link[T]]
}

func newLink[T comparable](capacity int) *link[T] {
	return &link[T]{elements: make([]*Handle[T], capacity)}
}

// full reports whether no slot is left for writing. Donor side only.
func (l *link[T]) full() bool {
	return int(l.writeIndex.Load()) == len(l.elements)
}

// push appends h. The caller must have checked that the link is not full.
func (l *link[T]) push(h *Handle[T]) {
	w := l.writeIndex.Load()
	l.elements[w] = h
	l.writeIndex.Store(w + 1)
}

// exhausted reports whether every slot has been written and read.
func (l *link[T]) exhausted() bool {
	return l.readIndex == len(l.elements)
}

// unread returns the number of published handles not yet drained.
func (l *link[T]) unread() int {
	return int(l.writeIndex.Load()) - l.readIndex
}

// drainInto appends up to room handles to dst in write order and returns the
// grown slice and the number moved.
func (l *link[T]) drainInto(dst []*Handle[T], room int) ([]*Handle[T], int) {
	start := l.readIndex
	n := int(l.writeIndex.Load()) - start
	if n > room {
		n = room
	}
	if n <= 0 {
		return dst, 0
	}

	end := start + n
	for i := start; i < end; i++ {
		dst = append(dst, l.elements[i])
		l.elements[i] = nil
	}
	l.readIndex = end
	return dst, n
}
