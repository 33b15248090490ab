package pool

import (
	"strconv"

	"github.com/ajitpratap0/recycler/pkg/recycler"
)

// DefaultBufferSizes are the bucket sizes of NewBufferPool: powers of two
// from 512 bytes to 1MB.
var DefaultBufferSizes = []int{
	512,     // 512B
	1024,    // 1KB
	4096,    // 4KB
	16384,   // 16KB
	65536,   // 64KB
	262144,  // 256KB
	1048576, // 1MB
}

// Buffers is the process-wide buffer pool.
var Buffers = NewBufferPool()

func init() {
	for _, b := range Buffers.buckets {
		Register(b.Name(), b)
	}
}

// BufferPool manages byte buffers in size buckets, one typed pool per size.
// Get picks the smallest bucket that fits the request.
type BufferPool struct {
	buckets []*Pool[[]byte]
	sizes   []int
}

// NewBufferPool creates a buffer pool with DefaultBufferSizes. Larger buckets
// keep fewer buffers per worker so a single worker cannot hold more than a
// few megabytes of idle memory per bucket.
func NewBufferPool(opts ...recycler.Option) *BufferPool {
	return NewBufferPoolWithSizes(DefaultBufferSizes, opts...)
}

// NewBufferPoolWithSizes creates a buffer pool with the given ascending
// bucket sizes.
func NewBufferPoolWithSizes(sizes []int, opts ...recycler.Option) *BufferPool {
	p := &BufferPool{
		buckets: make([]*Pool[[]byte], len(sizes)),
		sizes:   append([]int(nil), sizes...),
	}
	for i, size := range p.sizes {
		size := size
		bucketOpts := append([]recycler.Option{
			recycler.WithMaxCapacityPerWorker(bucketCapacity(size)),
		}, opts...)
		p.buckets[i] = MustNew("buffer_"+strconv.Itoa(size),
			func() []byte { return make([]byte, size) },
			func(b *[]byte) { *b = (*b)[:cap(*b)] },
			bucketOpts...)
	}
	return p
}

// bucketCapacity keeps roughly 4MB of idle buffers per worker per bucket,
// between 4 and 256 buffers.
func bucketCapacity(size int) int {
	n := (4 << 20) / size
	switch {
	case n < 4:
		return 4
	case n > 256:
		return 256
	}
	return n
}

// Get returns a buffer of length size from the smallest fitting bucket.
// Requests above the largest bucket get an unpooled buffer whose Release is
// a no-op.
//
// Example:
//
//	buf := pool.Buffers.Get(w, 2048) // 4KB buffer with length 2048
//	defer buf.Release(w)
func (p *BufferPool) Get(w *recycler.Worker, size int) *Item[[]byte] {
	for i, s := range p.sizes {
		if s >= size {
			item := p.buckets[i].Get(w)
			item.Value = item.Value[:size]
			return item
		}
	}
	return &Item[[]byte]{Value: make([]byte, size)}
}

// Sizes returns the bucket sizes.
func (p *BufferPool) Sizes() []int {
	return append([]int(nil), p.sizes...)
}

// Stats returns per-bucket statistics keyed by bucket name.
func (p *BufferPool) Stats() map[string]recycler.Stats {
	out := make(map[string]recycler.Stats, len(p.buckets))
	for _, b := range p.buckets {
		out[b.Name()] = b.Stats()
	}
	return out
}
