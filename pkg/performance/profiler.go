// Package performance samples process and runtime resource usage around
// recycler workloads.
package performance

import (
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// ResourceUsage is one sample of process, system and Go runtime figures.
// Mallocs and the GC figures count from the monitor's baseline.
type ResourceUsage struct {
	CPUPercent            float64       `json:"cpu_percent"`
	SystemCPUPercent      float64       `json:"system_cpu_percent"`
	MemoryRSS             uint64        `json:"memory_rss"`
	MemoryVMS             uint64        `json:"memory_vms"`
	SystemMemoryPercent   float64       `json:"system_memory_percent"`
	SystemMemoryAvailable uint64        `json:"system_memory_available"`
	HeapAlloc             uint64        `json:"heap_alloc"`
	Mallocs               uint64        `json:"mallocs"`
	GCCount               uint32        `json:"gc_count"`
	GCPauseTotal          time.Duration `json:"gc_pause_total"`
	GoroutineCount        int           `json:"goroutines"`
	ThreadCount           int32         `json:"threads"`
}

// MallocsPer returns the heap allocations made per unit of work, or 0 when
// no work was done. A recycler in steady state drives this towards zero.
func (u *ResourceUsage) MallocsPer(units int64) float64 {
	if u == nil || units <= 0 {
		return 0
	}
	return float64(u.Mallocs) / float64(units)
}

// ResourceMonitor monitors process and system resources. Counters that grow
// monotonically (CPU time, mallocs, GC) are reported relative to the moment
// the monitor was created or last reset.
type ResourceMonitor struct {
	process *process.Process

	mu           sync.RWMutex
	startCPUTime float64
	startTime    time.Time
	startMem     runtime.MemStats
}

// NewResourceMonitor creates a resource monitor for the current process.
// Process-level figures are left at zero when the platform does not expose
// them.
func NewResourceMonitor() *ResourceMonitor {
	proc, _ := process.NewProcess(int32(os.Getpid()))

	rm := &ResourceMonitor{process: proc}
	rm.Reset()
	return rm
}

// Reset makes the current moment the baseline for relative figures.
func (rm *ResourceMonitor) Reset() {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.startTime = time.Now()
	rm.startCPUTime = 0
	if rm.process != nil {
		if cpuTime, err := rm.process.Times(); err == nil {
			rm.startCPUTime = cpuTime.Total()
		}
	}
	runtime.ReadMemStats(&rm.startMem)
}

// GetResourceUsage samples usage now. Figures the platform cannot report
// stay zero.
func (rm *ResourceMonitor) GetResourceUsage() *ResourceUsage {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	usage := &ResourceUsage{}

	if rm.process != nil {
		if cpuTime, err := rm.process.Times(); err == nil {
			if elapsed := time.Since(rm.startTime).Seconds(); elapsed > 0 {
				usage.CPUPercent = ((cpuTime.Total() - rm.startCPUTime) / elapsed) * 100
			}
		}

		if memInfo, err := rm.process.MemoryInfo(); err == nil {
			usage.MemoryRSS = memInfo.RSS
			usage.MemoryVMS = memInfo.VMS
		}

		usage.ThreadCount, _ = rm.process.NumThreads()
	}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		usage.SystemCPUPercent = percents[0]
	}

	if vmStat, err := mem.VirtualMemory(); err == nil {
		usage.SystemMemoryPercent = vmStat.UsedPercent
		usage.SystemMemoryAvailable = vmStat.Available
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	usage.HeapAlloc = m.HeapAlloc
	usage.Mallocs = m.Mallocs - rm.startMem.Mallocs
	usage.GCCount = m.NumGC - rm.startMem.NumGC
	usage.GCPauseTotal = time.Duration(m.PauseTotalNs - rm.startMem.PauseTotalNs)
	usage.GoroutineCount = runtime.NumGoroutine()

	return usage
}
