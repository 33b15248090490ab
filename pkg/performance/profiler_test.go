package performance

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

var sink []*[64]byte

func TestResourceMonitorCountsMallocsSinceReset(t *testing.T) {
	rm := NewResourceMonitor()

	for i := 0; i < 1000; i++ {
		sink = append(sink, new([64]byte))
	}
	usage := rm.GetResourceUsage()
	assert.GreaterOrEqual(t, usage.Mallocs, uint64(1000))
	assert.NotZero(t, usage.HeapAlloc)
	assert.GreaterOrEqual(t, usage.GoroutineCount, 1)

	sink = nil
	rm.Reset()
	runtime.GC()
	usage = rm.GetResourceUsage()
	assert.GreaterOrEqual(t, usage.GCCount, uint32(1))
	assert.Less(t, usage.Mallocs, uint64(1000))
}

func TestResourceMonitorProcessFigures(t *testing.T) {
	rm := NewResourceMonitor()
	if rm.process == nil {
		t.Skip("process information unavailable on this platform")
	}

	usage := rm.GetResourceUsage()
	assert.NotZero(t, usage.MemoryRSS)
	assert.GreaterOrEqual(t, usage.CPUPercent, 0.0)
}

func TestMallocsPer(t *testing.T) {
	u := &ResourceUsage{Mallocs: 50}
	assert.Equal(t, 0.5, u.MallocsPer(100))
	assert.Zero(t, u.MallocsPer(0))

	var missing *ResourceUsage
	assert.Zero(t, missing.MallocsPer(10))
}
