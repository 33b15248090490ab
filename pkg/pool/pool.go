package pool

import (
	"sync"

	"github.com/ajitpratap0/recycler/pkg/recycler"
)

// Pool is a typed object pool. Values are wrapped in an Item which carries
// the recycler handle, so T needs no knowledge of pooling.
//
// Type parameter T can be any type. Pointer-free value types such as slices
// and small structs are stored inline in the Item.
type Pool[T any] struct {
	name  string
	rec   *recycler.Recycler[*Item[T]]
	reset func(*T)
}

// Item is a pooled value. Value may be used freely until Release.
type Item[T any] struct {
	Value T

	pool   *Pool[T]
	handle *recycler.Handle[*Item[T]]
}

// New creates a typed pool with custom allocation and reset functions.
// The newValue function is called when the worker's stack is empty. The
// reset function runs on Release, before the item is pooled again.
//
// Parameters:
//   - name: Pool name, used in logs and GetGlobalStats
//   - newValue: Factory function to create new instances of type T
//   - reset: Optional cleanup function called before recycling
//   - opts: Recycler options (capacity, link size, logger)
//
// Example:
//
//	p, err := pool.New("scratch",
//	    func() []byte { return make([]byte, 0, 1024) },
//	    func(b *[]byte) { *b = (*b)[:0] },
//	)
func New[T any](name string, newValue func() T, reset func(*T), opts ...recycler.Option) (*Pool[T], error) {
	p := &Pool[T]{name: name, reset: reset}

	opts = append([]recycler.Option{recycler.WithName(name)}, opts...)
	rec, err := recycler.New(func(h *recycler.Handle[*Item[T]]) *Item[T] {
		return &Item[T]{Value: newValue(), pool: p, handle: h}
	}, opts...)
	if err != nil {
		return nil, err
	}
	p.rec = rec
	return p, nil
}

// MustNew is like New but panics when the options are invalid.
func MustNew[T any](name string, newValue func() T, reset func(*T), opts ...recycler.Option) *Pool[T] {
	p, err := New(name, newValue, reset, opts...)
	if err != nil {
		panic(err)
	}
	return p
}

// Name returns the pool name.
func (p *Pool[T]) Name() string {
	return p.name
}

// Get borrows an item on behalf of w.
func (p *Pool[T]) Get(w *recycler.Worker) *Item[T] {
	return p.rec.Get(w)
}

// Stats returns the underlying recycler's counters.
func (p *Pool[T]) Stats() recycler.Stats {
	return p.rec.Stats()
}

// LocalSize returns how many items w holds in its stack.
func (p *Pool[T]) LocalSize(w *recycler.Worker) int {
	return p.rec.LocalSize(w)
}

// Release resets the value and gives the item back on behalf of w, which
// need not be the worker that borrowed it. Releasing an item twice returns
// an error matching recycler.ErrRecycledAlready.
func (i *Item[T]) Release(w *recycler.Worker) error {
	if i.handle == nil {
		// Oversized buffer handed out without a pool.
		return nil
	}
	if i.handle.Pooled() {
		// Leave the value alone; it may already sit in a stack.
		return i.pool.rec.Recycle(w, i, i.handle)
	}
	if i.pool.reset != nil {
		i.pool.reset(&i.Value)
	}
	return i.pool.rec.Recycle(w, i, i.handle)
}

// StatsSource is anything that reports recycler counters.
type StatsSource interface {
	Stats() recycler.Stats
}

var (
	registryMu sync.RWMutex
	registry   = map[string]StatsSource{}
)

// Register adds a named source to the set reported by GetGlobalStats.
// Registering a name again replaces the previous source.
func Register(name string, src StatsSource) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = src
}

// Unregister removes a named source.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(registry, name)
}

// GetGlobalStats returns statistics for the global pools and every source
// added with Register. This is useful for monitoring pool efficiency and
// spotting leaks.
//
// The returned map always contains:
//   - "message": the Message pool
//   - "buffer_<size>": one entry per bucket of the default BufferPool
//
// Example:
//
//	for name, s := range pool.GetGlobalStats() {
//	    fmt.Printf("%s: %.2f%% hit rate\n", name, s.HitRatio()*100)
//	}
func GetGlobalStats() map[string]recycler.Stats {
	registryMu.RLock()
	defer registryMu.RUnlock()

	out := make(map[string]recycler.Stats, len(registry))
	for name, src := range registry {
		out[name] = src.Stats()
	}
	return out
}

// Sources returns a copy of the registered sources, keyed by name.
func Sources() map[string]StatsSource {
	registryMu.RLock()
	defer registryMu.RUnlock()

	out := make(map[string]StatsSource, len(registry))
	for name, src := range registry {
		out[name] = src
	}
	return out
}
