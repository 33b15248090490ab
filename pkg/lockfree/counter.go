// Package lockfree provides lock-free counters for statistics that are
// updated from many goroutines on hot paths.
package lockfree

import (
	"sync/atomic"
)

// AtomicCounter is a monotonically increasing uint64 that readers may
// sample while writers bump it.
type AtomicCounter struct {
	value atomic.Uint64
}

// NewAtomicCounter returns a zero counter. The zero value is also ready.
func NewAtomicCounter() *AtomicCounter {
	return &AtomicCounter{}
}

func (c *AtomicCounter) Increment() {
	c.value.Add(1)
}

// Add adds delta.
func (c *AtomicCounter) Add(delta uint64) {
	c.value.Add(delta)
}

// Get returns the current value.
func (c *AtomicCounter) Get() uint64 {
	return c.value.Load()
}

// Reset sets the counter back to zero. Increments racing with Reset may be
// lost.
func (c *AtomicCounter) Reset() {
	c.value.Store(0)
}

// PaddedCounter is an AtomicCounter that occupies a full cache line, so
// neighbouring counters in a struct do not false-share when different
// goroutines bump them.
type PaddedCounter struct {
	AtomicCounter
	_padding [7]uint64 //nolint:unused // 56 bytes padding to fill the cache line
}

// Gauge is a lock-free signed value that can move in both directions.
type Gauge struct {
	value    atomic.Int64
	_padding [7]uint64 //nolint:unused
}

// Add atomically adds delta and returns the new value.
func (g *Gauge) Add(delta int64) int64 {
	return g.value.Add(delta)
}

// Get returns the current value.
func (g *Gauge) Get() int64 {
	return g.value.Load()
}

// Max raises the gauge to v if v is larger than the current value.
func (g *Gauge) Max(v int64) {
	for {
		cur := g.value.Load()
		if v <= cur || g.value.CompareAndSwap(cur, v) {
			return
		}
	}
}
