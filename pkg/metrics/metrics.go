// Package metrics exposes recycler statistics and bench measurements as
// Prometheus metrics.
//
// # Overview
//
// The metrics package provides:
//   - StatsCollector, a prometheus.Collector that reads recycler counters at
//     scrape time, so the recycler fast path never touches Prometheus
//   - Pre-defined bench metrics for cycles, latency and throughput
//   - Throughput and latency tracking utilities
//
// # Basic Usage
//
//	// Export a recycler
//	if _, err := metrics.Register(prometheus.DefaultRegisterer, "frames", frames); err != nil {
//	    return err
//	}
//
//	// Track throughput
//	tracker := metrics.NewThroughputTracker("cross")
//	for i := 0; i < cycles; i++ {
//	    cycle()
//	    tracker.Increment(1)
//	}
//	throughput := tracker.GetAndReset()
//
// # Metric Types
//
// Counter: Monotonically increasing values (e.g., total Get calls)
// Gauge: Values that can go up or down (e.g., live stacks)
// Histogram: Distribution of values (e.g., Get latency)
package metrics

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ajitpratap0/recycler/pkg/recycler"
)

const namespace = "recycler"

// StatsSource is anything that reports recycler counters: a Recycler, a
// pool.Pool or a test double.
type StatsSource interface {
	Stats() recycler.Stats
}

type counterDesc struct {
	desc  *prometheus.Desc
	value func(recycler.Stats) float64
}

func newCounterDesc(name, help string, value func(recycler.Stats) float64) counterDesc {
	return counterDesc{
		desc:  prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, []string{"recycler"}, nil),
		value: value,
	}
}

// StatsCollector exports the counters of any number of named sources. It
// reads them at scrape time. Safe for concurrent use.
type StatsCollector struct {
	mu      sync.RWMutex
	sources map[string]StatsSource

	counters []counterDesc
	stacks   *prometheus.Desc
	hitRatio *prometheus.Desc
}

// NewStatsCollector creates an empty collector.
//
// Example:
//
//	collector := metrics.NewStatsCollector()
//	collector.Add("messages", pool.MessagePool)
//	prometheus.MustRegister(collector)
func NewStatsCollector() *StatsCollector {
	return &StatsCollector{
		sources: make(map[string]StatsSource),
		counters: []counterDesc{
			newCounterDesc("gets_total", "Total number of Get calls",
				func(s recycler.Stats) float64 { return float64(s.Gets) }),
			newCounterDesc("hits_total", "Get calls served from a stack",
				func(s recycler.Stats) float64 { return float64(s.Hits) }),
			newCounterDesc("allocations_total", "Objects built by the construction hook",
				func(s recycler.Stats) float64 { return float64(s.Allocations) }),
			newCounterDesc("recycles_total", "Accepted Recycle calls",
				func(s recycler.Stats) float64 { return float64(s.Recycles) }),
			newCounterDesc("cross_worker_recycles_total", "Recycles by a worker other than the owner",
				func(s recycler.Stats) float64 { return float64(s.CrossWorkerRecycles) }),
			newCounterDesc("dropped_total", "Recycled objects left to the garbage collector",
				func(s recycler.Stats) float64 { return float64(s.Dropped) }),
			newCounterDesc("violations_total", "Recycles rejected because the object was already pooled",
				func(s recycler.Stats) float64 { return float64(s.Violations) }),
			newCounterDesc("scavenges_total", "Attempts to refill an empty stack from its queues",
				func(s recycler.Stats) float64 { return float64(s.Scavenges) }),
			newCounterDesc("queues_created_total", "Weak order queues attached to stacks",
				func(s recycler.Stats) float64 { return float64(s.QueuesCreated) }),
			newCounterDesc("queues_reclaimed_total", "Weak order queues reclaimed after their donor exited",
				func(s recycler.Stats) float64 { return float64(s.QueuesReclaimed) }),
		},
		stacks: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "stacks"),
			"Live per-worker stacks", []string{"recycler"}, nil),
		hitRatio: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "hit_ratio"),
			"Share of Get calls served from a stack", []string{"recycler"}, nil),
	}
}

// Add starts exporting src under name, replacing any source of that name.
func (c *StatsCollector) Add(name string, src StatsSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sources[name] = src
}

// Remove stops exporting name.
func (c *StatsCollector) Remove(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sources, name)
}

// Describe implements prometheus.Collector.
func (c *StatsCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, cd := range c.counters {
		ch <- cd.desc
	}
	ch <- c.stacks
	ch <- c.hitRatio
}

// Collect implements prometheus.Collector.
func (c *StatsCollector) Collect(ch chan<- prometheus.Metric) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for name, src := range c.sources {
		s := src.Stats()
		for _, cd := range c.counters {
			ch <- prometheus.MustNewConstMetric(cd.desc, prometheus.CounterValue, cd.value(s), name)
		}
		ch <- prometheus.MustNewConstMetric(c.stacks, prometheus.GaugeValue, float64(s.Stacks), name)
		ch <- prometheus.MustNewConstMetric(c.hitRatio, prometheus.GaugeValue, s.HitRatio(), name)
	}
}

// Register exports a single source through a new collector on reg.
func Register(reg prometheus.Registerer, name string, src StatsSource) (*StatsCollector, error) {
	c := NewStatsCollector()
	c.Add(name, src)
	if err := reg.Register(c); err != nil {
		return nil, err
	}
	return c, nil
}

var (
	// CyclesCompleted tracks borrow/return cycles completed by the bench.
	// Labels: mode (local/cross/mixed)
	//
	// Example:
	//	metrics.CyclesCompleted.WithLabelValues("cross").Add(1000)
	CyclesCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recycler_bench_cycles_total",
			Help: "Total number of bench borrow/return cycles",
		},
		[]string{"mode"},
	)

	// OperationLatency tracks the distribution of Get and Recycle latencies in
	// nanoseconds, sampled by the bench. The buckets target nanosecond-scale
	// operations.
	// Labels: operation (get/recycle), mode
	OperationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "recycler_bench_operation_latency_nanoseconds",
			Help: "Sampled Get/Recycle latency in nanoseconds",
			Buckets: []float64{
				10,    // 10ns - Local pop or push
				50,    // 50ns - Local path with a cache miss
				100,   // 100ns - Cross-worker append
				1000,  // 1μs - Scavenge over several links
				10000, // 10μs - Construction of a new object
				1e5,   // 100μs - Scheduler interference
			},
		},
		[]string{"operation", "mode"},
	)

	// Throughput tracks bench cycles per second
	Throughput = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "recycler_bench_throughput_cycles_per_second",
			Help: "Current bench throughput in cycles per second",
		},
		[]string{"mode"},
	)

	// PeakOutstanding tracks the highest number of borrowed objects seen
	PeakOutstanding = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "recycler_bench_peak_outstanding",
			Help: "Highest number of objects borrowed at once during a bench run",
		},
		[]string{"mode"},
	)
)

// Timer provides a simple timing mechanism for measuring operation durations.
// It captures the start time on creation and calculates elapsed time on stop.
type Timer struct {
	start time.Time
	name  string
}

// NewTimer creates a new timer and starts timing immediately.
// The name parameter is for identification in logs or metrics.
//
// Example:
//
//	timer := metrics.NewTimer("warmup")
//	warmup()
//	logger.Info("warmed up", zap.Duration("duration", timer.Stop()))
func NewTimer(name string) *Timer {
	return &Timer{
		start: time.Now(),
		name:  name,
	}
}

// Name returns the timer's name.
func (t *Timer) Name() string {
	return t.name
}

// Stop returns the elapsed duration since creation. The timer can be
// stopped multiple times.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// ThroughputTracker tracks throughput (cycles per second) over time windows.
// Thread-safe for concurrent use.
type ThroughputTracker struct {
	count     atomic.Int64 // Cycles since last reset
	mu        sync.Mutex
	lastReset time.Time
	mode      string
}

// NewThroughputTracker creates a new throughput tracker for a bench mode,
// used as the metric label.
func NewThroughputTracker(mode string) *ThroughputTracker {
	return &ThroughputTracker{
		lastReset: time.Now(),
		mode:      mode,
	}
}

// Increment adds n to the cycle count. Safe for concurrent use.
func (t *ThroughputTracker) Increment(n int64) {
	t.count.Add(n)
}

// GetAndReset calculates the current throughput, updates the Prometheus
// metric, resets the counter, and returns the calculated throughput.
func (t *ThroughputTracker) GetAndReset() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := time.Since(t.lastReset).Seconds()
	if elapsed == 0 {
		return 0
	}

	throughput := float64(t.count.Swap(0)) / elapsed
	t.lastReset = time.Now()

	Throughput.WithLabelValues(t.mode).Set(throughput)
	return throughput
}

// LatencyTracker keeps the most recent latency samples for percentiles.
type LatencyTracker struct {
	mu      sync.Mutex
	values  []time.Duration
	next    int
	maxSize int
}

// NewLatencyTracker creates a tracker holding up to maxSize samples.
func NewLatencyTracker(maxSize int) *LatencyTracker {
	return &LatencyTracker{
		values:  make([]time.Duration, 0, maxSize),
		maxSize: maxSize,
	}
}

// Record records a latency value, overwriting the oldest when full.
func (l *LatencyTracker) Record(d time.Duration) {
	if l.maxSize <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.values) < l.maxSize {
		l.values = append(l.values, d)
		return
	}
	l.values[l.next] = d
	l.next = (l.next + 1) % l.maxSize
}

// Len returns the number of samples held.
func (l *LatencyTracker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.values)
}

// GetPercentile returns the percentile value (0-100) of the held samples.
func (l *LatencyTracker) GetPercentile(p float64) time.Duration {
	l.mu.Lock()
	sorted := slices.Clone(l.values)
	l.mu.Unlock()

	if len(sorted) == 0 {
		return 0
	}
	slices.Sort(sorted)

	index := int(float64(len(sorted)) * p / 100)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	if index < 0 {
		index = 0
	}
	return sorted[index]
}
