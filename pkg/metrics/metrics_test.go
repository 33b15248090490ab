package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/recycler/pkg/recycler"
)

type fixedSource recycler.Stats

func (f fixedSource) Stats() recycler.Stats { return recycler.Stats(f) }

func TestStatsCollectorExportsCounters(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	src := fixedSource{Gets: 10, Hits: 4, Allocations: 6, Dropped: 2, Stacks: 3}

	_, err := Register(reg, "frames", src)
	require.NoError(t, err)

	expected := `
# HELP recycler_gets_total Total number of Get calls
# TYPE recycler_gets_total counter
recycler_gets_total{recycler="frames"} 10
# HELP recycler_hits_total Get calls served from a stack
# TYPE recycler_hits_total counter
recycler_hits_total{recycler="frames"} 4
# HELP recycler_dropped_total Recycled objects left to the garbage collector
# TYPE recycler_dropped_total counter
recycler_dropped_total{recycler="frames"} 2
# HELP recycler_stacks Live per-worker stacks
# TYPE recycler_stacks gauge
recycler_stacks{recycler="frames"} 3
# HELP recycler_hit_ratio Share of Get calls served from a stack
# TYPE recycler_hit_ratio gauge
recycler_hit_ratio{recycler="frames"} 0.4
`
	err = testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"recycler_gets_total", "recycler_hits_total", "recycler_dropped_total",
		"recycler_stacks", "recycler_hit_ratio")
	assert.NoError(t, err)
}

func TestStatsCollectorTracksLiveRecycler(t *testing.T) {
	r := recycler.MustNew(func(h *recycler.Handle[*int]) *int { return new(int) })
	w := recycler.NewWorker("metrics")
	defer w.Exit()

	c := NewStatsCollector()
	c.Add("ints", r)

	// 10 counters and 2 gauges per source.
	assert.Equal(t, 12, testutil.CollectAndCount(c))

	r.Get(w)
	r.Get(w)
	assert.Equal(t, 12, testutil.CollectAndCount(c, "recycler_gets_total", "recycler_hits_total",
		"recycler_allocations_total", "recycler_recycles_total", "recycler_cross_worker_recycles_total",
		"recycler_dropped_total", "recycler_violations_total", "recycler_scavenges_total",
		"recycler_queues_created_total", "recycler_queues_reclaimed_total", "recycler_stacks",
		"recycler_hit_ratio"))

	c.Add("other", r)
	assert.Equal(t, 24, testutil.CollectAndCount(c))

	c.Remove("other")
	c.Remove("ints")
	assert.Equal(t, 0, testutil.CollectAndCount(c))
}

func TestRegisterTwiceFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := Register(reg, "a", fixedSource{})
	require.NoError(t, err)
	_, err = Register(reg, "b", fixedSource{})
	assert.Error(t, err)
}

func TestThroughputTracker(t *testing.T) {
	tracker := NewThroughputTracker("test_mode")
	tracker.Increment(500)
	time.Sleep(10 * time.Millisecond)

	got := tracker.GetAndReset()
	assert.Greater(t, got, 0.0)
	assert.Equal(t, got, testutil.ToFloat64(Throughput.WithLabelValues("test_mode")))
	assert.Equal(t, int64(0), tracker.count.Load())
}

func TestLatencyTrackerPercentiles(t *testing.T) {
	l := NewLatencyTracker(4)
	assert.Equal(t, time.Duration(0), l.GetPercentile(50))

	for _, d := range []time.Duration{40, 10, 30, 20} {
		l.Record(d)
	}
	assert.Equal(t, time.Duration(10), l.GetPercentile(0))
	assert.Equal(t, time.Duration(30), l.GetPercentile(50))
	assert.Equal(t, time.Duration(40), l.GetPercentile(100))

	// The oldest sample (40) is overwritten.
	l.Record(5)
	assert.Equal(t, 4, l.Len())
	assert.Equal(t, time.Duration(30), l.GetPercentile(100))

	NewLatencyTracker(0).Record(1)
}

func TestTimer(t *testing.T) {
	timer := NewTimer("phase")
	assert.Equal(t, "phase", timer.Name())
	assert.GreaterOrEqual(t, timer.Stop(), time.Duration(0))
}
