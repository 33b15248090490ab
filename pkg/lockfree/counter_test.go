package lockfree

import (
	"sync"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
)

func TestAtomicCounterConcurrent(t *testing.T) {
	c := NewAtomicCounter()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				c.Increment()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(8000), c.Get())

	c.Add(5)
	assert.Equal(t, uint64(8005), c.Get())

	c.Reset()
	assert.Equal(t, uint64(0), c.Get())
}

func TestPaddedCounterFillsCacheLine(t *testing.T) {
	assert.Equal(t, uintptr(64), unsafe.Sizeof(PaddedCounter{}))
	assert.Equal(t, uintptr(64), unsafe.Sizeof(Gauge{}))
}

func TestGaugeMax(t *testing.T) {
	var g Gauge

	assert.Equal(t, int64(3), g.Add(3))
	g.Max(2)
	assert.Equal(t, int64(3), g.Get())
	g.Max(10)
	assert.Equal(t, int64(10), g.Get())
	assert.Equal(t, int64(9), g.Add(-1))
}
