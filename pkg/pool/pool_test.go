package pool

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/recycler/pkg/recycler"
	"github.com/ajitpratap0/recycler/pkg/testutil"
)

func newWorker(t *testing.T) *recycler.Worker {
	t.Helper()
	w := recycler.NewWorker(t.Name())
	t.Cleanup(w.Exit)
	return w
}

func TestPoolReusesAndResets(t *testing.T) {
	w := newWorker(t)
	resets := 0
	p := MustNew("ints",
		func() []int { return make([]int, 0, 4) },
		func(s *[]int) {
			resets++
			*s = (*s)[:0]
		})

	item := p.Get(w)
	item.Value = append(item.Value, 1, 2, 3)
	require.NoError(t, item.Release(w))
	assert.Equal(t, 1, resets)
	assert.Equal(t, 1, p.LocalSize(w))

	again := p.Get(w)
	assert.Same(t, item, again)
	assert.Empty(t, again.Value)

	stats := p.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Allocations)
}

func TestItemDoubleReleaseLeavesValueAlone(t *testing.T) {
	w := newWorker(t)
	resets := 0
	p := MustNew("counted", func() int { return 7 }, func(v *int) {
		resets++
		*v = 0
	})

	item := p.Get(w)
	require.NoError(t, item.Release(w))

	err := item.Release(w)
	assert.ErrorIs(t, err, recycler.ErrRecycledAlready)
	assert.Equal(t, 1, resets)
}

func TestNewRejectsInvalidOptions(t *testing.T) {
	_, err := New("bad", func() int { return 0 }, nil, recycler.WithLinkCapacity(0))
	assert.ErrorIs(t, err, recycler.ErrInvalidConfig)
}

func TestMessageLifecycle(t *testing.T) {
	w := newWorker(t)

	m := NewMessage(w, "orders", "create", []byte("payload"))
	m.SetMetadata("content-type", "json")
	id := m.ID
	assert.NotZero(t, id)

	v, ok := m.GetMetadata("content-type")
	assert.True(t, ok)
	assert.Equal(t, "json", v)

	require.NoError(t, m.Release(w))
	assert.ErrorIs(t, m.Release(w), recycler.ErrRecycledAlready)

	again := GetMessage(w)
	assert.Same(t, m, again)
	assert.Greater(t, again.ID, id)
	assert.Empty(t, again.Directory)
	assert.Empty(t, again.Method)
	assert.Empty(t, again.Payload)
	assert.Empty(t, again.Metadata)
	assert.Equal(t, messagePayloadCapacity, cap(again.Payload))
	require.NoError(t, again.Release(w))
}

func TestMessageResetDropsLargePayload(t *testing.T) {
	m := &Message{Payload: make([]byte, 100*1024)}
	m.Reset()
	assert.Equal(t, messagePayloadCapacity, cap(m.Payload))
	assert.Empty(t, m.Payload)
}

func TestMessageReleasedByAnotherWorker(t *testing.T) {
	owner := newWorker(t)
	m := GetMessage(owner)
	m.Method = "ping"

	done := make(chan error)
	go func() {
		other := recycler.NewWorker("other")
		defer other.Exit()
		done <- m.Release(other)
	}()
	require.NoError(t, <-done)

	assert.Same(t, m, GetMessage(owner))
	assert.Empty(t, m.Method)
}

func TestPrivateMessagePool(t *testing.T) {
	w := newWorker(t)
	p, err := NewMessagePool(recycler.WithName("private"), recycler.WithMaxCapacityPerWorker(4))
	require.NoError(t, err)

	m := GetMessageFrom(p, w)
	assert.NotZero(t, m.ID)
	require.NoError(t, m.Release(w))

	assert.Equal(t, 1, p.LocalSize(w))
	assert.Equal(t, 0, MessagePool.LocalSize(w))
	assert.Same(t, m, GetMessageFrom(p, w))

	_, err = NewMessagePool(recycler.WithMaxCapacityPerWorker(-1))
	assert.ErrorIs(t, err, recycler.ErrInvalidConfig)
}

func TestBufferPoolBuckets(t *testing.T) {
	w := newWorker(t)
	p := NewBufferPoolWithSizes([]int{64, 256})

	small := p.Get(w, 10)
	assert.Len(t, small.Value, 10)
	assert.Equal(t, 64, cap(small.Value))

	mid := p.Get(w, 65)
	assert.Equal(t, 256, cap(mid.Value))

	huge := p.Get(w, 1000)
	assert.Len(t, huge.Value, 1000)
	assert.NoError(t, huge.Release(w))
	assert.NoError(t, huge.Release(w), "unpooled buffers ignore releases")

	require.NoError(t, small.Release(w))
	again := p.Get(w, 64)
	assert.Same(t, small, again)
	assert.Len(t, again.Value, 64)

	stats := p.Stats()
	assert.Equal(t, uint64(1), stats["buffer_64"].Hits)
	assert.Equal(t, uint64(1), stats["buffer_256"].Allocations)
	assert.Equal(t, []int{64, 256}, p.Sizes())
}

func TestBucketCapacity(t *testing.T) {
	assert.Equal(t, 256, bucketCapacity(512))
	assert.Equal(t, 64, bucketCapacity(65536))
	assert.Equal(t, 4, bucketCapacity(1048576))
}

func TestGlobalStats(t *testing.T) {
	stats := GetGlobalStats()
	assert.Contains(t, stats, "message")
	for _, size := range DefaultBufferSizes {
		_, ok := stats["buffer_"+strconv.Itoa(size)]
		assert.True(t, ok, "bucket %d", size)
	}

	custom := MustNew("custom_stats", func() int { return 0 }, nil)
	Register("custom_stats", custom)
	t.Cleanup(func() { Unregister("custom_stats") })

	w := newWorker(t)
	custom.Get(w)
	assert.Equal(t, uint64(1), GetGlobalStats()["custom_stats"].Gets)
	assert.Contains(t, Sources(), "custom_stats")
}

func TestSteadyStateRecyclingDoesNotAllocate(t *testing.T) {
	testutil.SkipIfShort(t)
	w := newWorker(t)
	p := MustNew("frames",
		func() []byte { return make([]byte, 0, 512) },
		func(b *[]byte) { *b = (*b)[:0] })
	require.NoError(t, p.Get(w).Release(w))

	testutil.NewAllocationCheck(t, "pool get/release").
		AllowPerCycle(0.01).
		Run(func() int64 {
			const cycles = 100_000
			for i := 0; i < cycles; i++ {
				item := p.Get(w)
				item.Value = append(item.Value, byte(i))
				if err := item.Release(w); err != nil {
					t.Fatal(err)
				}
			}
			return cycles
		})
	assert.Equal(t, uint64(1), p.Stats().Allocations)
}
