package bench

import (
	"fmt"
	"io"
	"time"

	"github.com/ajitpratap0/recycler/pkg/config"
	"github.com/ajitpratap0/recycler/pkg/json"
	"github.com/ajitpratap0/recycler/pkg/performance"
	"github.com/ajitpratap0/recycler/pkg/recycler"
)

// Result reports one bench run.
type Result struct {
	Mode    string `json:"mode"`
	Workers int    `json:"workers"`
	Cycles  int    `json:"cycles_per_worker"`
	Batch   int    `json:"batch"`
	HandOff int    `json:"hand_off"`

	TotalCycles int64         `json:"total_cycles"`
	Duration    time.Duration `json:"duration_ns"`
	Throughput  float64       `json:"throughput_cycles_per_second"`

	Stats    recycler.Stats `json:"stats"`
	HitRatio float64        `json:"hit_ratio"`

	// PeakOutstanding is the most messages borrowed and not yet returned at
	// any one time. It never exceeds OutstandingBound.
	PeakOutstanding  int64 `json:"peak_outstanding"`
	OutstandingBound int64 `json:"outstanding_bound"`

	GetLatencyP50     time.Duration `json:"get_latency_p50_ns"`
	GetLatencyP99     time.Duration `json:"get_latency_p99_ns"`
	RecycleLatencyP50 time.Duration `json:"recycle_latency_p50_ns"`
	RecycleLatencyP99 time.Duration `json:"recycle_latency_p99_ns"`

	// Compression names the hand-off codec; CodecStats counts its reuse.
	Compression string          `json:"compression,omitempty"`
	CodecStats  *recycler.Stats `json:"codec_stats,omitempty"`

	Resources       *performance.ResourceUsage `json:"resources,omitempty"`
	MallocsPerCycle float64                    `json:"mallocs_per_cycle"`
}

// OutstandingBound returns the most messages a workload can hold at once.
// Every worker holds at most one batch. Hand-offs add one full inbox per
// worker plus the message a worker is returning.
func OutstandingBound(cfg config.BenchConfig, workers int) int64 {
	bound := int64(workers) * int64(cfg.Batch)
	if cfg.Mode != config.ModeLocal {
		bound += int64(workers) * int64(cfg.HandOff+1)
	}
	return bound
}

func (st *run) report(workers int, duration time.Duration, usage *performance.ResourceUsage) *Result {
	stats := st.messages.Stats()
	total := int64(workers) * int64(st.cfg.Cycles)

	var throughput float64
	if duration > 0 {
		throughput = float64(total) / duration.Seconds()
	}
	st.throughput.GetAndReset()

	res := &Result{
		Mode:              st.cfg.Mode,
		Workers:           workers,
		Cycles:            st.cfg.Cycles,
		Batch:             st.cfg.Batch,
		HandOff:           st.cfg.HandOff,
		TotalCycles:       total,
		Duration:          duration,
		Throughput:        throughput,
		Stats:             stats,
		HitRatio:          stats.HitRatio(),
		PeakOutstanding:   st.peak.Get(),
		OutstandingBound:  OutstandingBound(st.cfg, workers),
		GetLatencyP50:     st.getLatency.GetPercentile(50),
		GetLatencyP99:     st.getLatency.GetPercentile(99),
		RecycleLatencyP50: st.putLatency.GetPercentile(50),
		RecycleLatencyP99: st.putLatency.GetPercentile(99),
		Resources:         usage,
		MallocsPerCycle:   usage.MallocsPer(total),
	}
	if st.codec != nil {
		codecStats := st.codec.Stats()
		res.Compression = string(st.codec.Algorithm())
		res.CodecStats = &codecStats
	}
	return res
}

// WriteJSON writes the result as indented JSON.
func (r *Result) WriteJSON(w io.Writer) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	_, err = w.Write(append(data, '\n'))
	return err
}

// WriteText writes a human-readable summary.
func (r *Result) WriteText(w io.Writer) error {
	_, err := fmt.Fprintf(w, `Recycler bench (%s)
  workers:           %d
  cycles/worker:     %d
  batch:             %d
  duration:          %v
  throughput:        %.0f cycles/sec
  hit ratio:         %.4f
  allocations:       %d
  cross-worker:      %d
  dropped:           %d
  queues:            %d created, %d reclaimed
  peak outstanding:  %d (bound %d)
  get latency:       p50 %v, p99 %v
  recycle latency:   p50 %v, p99 %v
`,
		r.Mode, r.Workers, r.Cycles, r.Batch, r.Duration, r.Throughput, r.HitRatio,
		r.Stats.Allocations, r.Stats.CrossWorkerRecycles, r.Stats.Dropped,
		r.Stats.QueuesCreated, r.Stats.QueuesReclaimed,
		r.PeakOutstanding, r.OutstandingBound,
		r.GetLatencyP50, r.GetLatencyP99, r.RecycleLatencyP50, r.RecycleLatencyP99,
	)
	if err != nil {
		return err
	}
	if r.CodecStats != nil {
		_, err = fmt.Fprintf(w, "  compression:       %s, %d codecs for %d uses\n",
			r.Compression, r.CodecStats.Allocations, r.CodecStats.Gets)
		if err != nil {
			return err
		}
	}
	if r.Resources == nil {
		return nil
	}
	_, err = fmt.Fprintf(w, "  memory:            rss %d bytes, heap %d bytes, %d mallocs (%.3f/cycle), %d GCs\n",
		r.Resources.MemoryRSS, r.Resources.HeapAlloc, r.Resources.Mallocs, r.MallocsPerCycle, r.Resources.GCCount)
	return err
}
