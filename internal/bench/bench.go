// Package bench drives recyclers with many concurrent workers and reports
// how well objects were reused.
//
// Every worker performs a fixed number of borrow/return cycles on pooled
// messages. In local mode a worker returns everything it borrows. In cross
// mode every message is handed to the next worker of a ring, which returns
// it on the owner's behalf. Mixed mode hands off every other message.
// With a compression codec configured, handed-off payloads are compressed
// by the sender and verified by the receiver.
package bench

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	concpool "github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ajitpratap0/recycler/pkg/compression"
	"github.com/ajitpratap0/recycler/pkg/config"
	"github.com/ajitpratap0/recycler/pkg/errors"
	"github.com/ajitpratap0/recycler/pkg/lockfree"
	"github.com/ajitpratap0/recycler/pkg/logger"
	"github.com/ajitpratap0/recycler/pkg/metrics"
	"github.com/ajitpratap0/recycler/pkg/observability"
	"github.com/ajitpratap0/recycler/pkg/performance"
	"github.com/ajitpratap0/recycler/pkg/pool"
	"github.com/ajitpratap0/recycler/pkg/recycler"
)

// latencySampleEvery is the cycle interval between timed Get and Recycle
// calls. Timing every call would dominate the cost being measured.
const latencySampleEvery = 64

// Runner executes bench workloads. A Runner may be reused; every Run builds
// a fresh recycler so counters start at zero.
type Runner struct {
	cfg       config.BenchConfig
	opts      []recycler.Option
	logger    *zap.Logger
	phases    *observability.PhaseTracker
	collector *metrics.StatsCollector
}

// NewRunner validates cfg and creates a runner whose recyclers are built
// with opts.
func NewRunner(cfg config.BenchConfig, opts []recycler.Option, log *zap.Logger) (*Runner, error) {
	cfg.Mode = strings.ToLower(cfg.Mode)
	c := config.Default()
	c.Bench = cfg
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Runner{
		cfg:    cfg,
		opts:   opts,
		logger: log.With(zap.String("component", "bench"), zap.String("mode", cfg.Mode)),
		phases: observability.NewPhaseTracker("bench"),
	}, nil
}

// WithCollector exports the recycler of every run through c while the run
// is in progress.
func (r *Runner) WithCollector(c *metrics.StatsCollector) *Runner {
	r.collector = c
	return r
}

// run holds the state shared by the workers of one Run.
type run struct {
	cfg         config.BenchConfig
	messages    *recycler.Recycler[*pool.Message]
	payload     []byte
	outstanding lockfree.Gauge
	peak        lockfree.Gauge
	throughput  *metrics.ThroughputTracker
	getLatency  *metrics.LatencyTracker
	putLatency  *metrics.LatencyTracker
	inboxes     []chan *pool.Message
	received    []int
	// codec is nil without compression
	codec *compression.Compressor
	// limiter is nil when the run is not throttled
	limiter *rate.Limiter
}

// Run executes the configured workload and reports on it. It fails if a
// worker fails, ctx is cancelled, the configured timeout expires, or more
// objects were outstanding at once than the workload allows.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	workers := r.cfg.GetWorkers()
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}
	ctx = logger.NewContext(ctx, zap.String("mode", r.cfg.Mode))

	opts := append([]recycler.Option{recycler.WithLogger(r.logger)}, r.opts...)
	opts = append(opts, recycler.WithName("bench-"+r.cfg.Mode))
	messages, err := pool.NewMessagePool(opts...)
	if err != nil {
		return nil, err
	}
	if r.collector != nil {
		r.collector.Add("bench", messages)
		defer r.collector.Remove("bench")
	}

	st := &run{
		cfg:        r.cfg,
		messages:   messages,
		payload:    makePayload(r.cfg.PayloadSize),
		throughput: metrics.NewThroughputTracker(r.cfg.Mode),
		getLatency: metrics.NewLatencyTracker(4096),
		putLatency: metrics.NewLatencyTracker(4096),
		inboxes:    make([]chan *pool.Message, workers),
		received:   make([]int, workers),
	}
	for i := range st.inboxes {
		st.inboxes[i] = make(chan *pool.Message, r.cfg.HandOff)
	}
	if r.cfg.Rate > 0 {
		st.limiter = rate.NewLimiter(rate.Limit(r.cfg.Rate), r.cfg.Batch)
	}
	if alg, _ := compression.ParseAlgorithm(r.cfg.Compression); alg != compression.None {
		st.codec, err = compression.NewCompressor(compression.Config{Algorithm: alg},
			recycler.WithLogger(r.logger))
		if err != nil {
			return nil, err
		}
	}

	ol := observability.NewOperationLogger(ctx, "bench",
		zap.Int("workers", workers),
		zap.Int("cycles", r.cfg.Cycles),
		zap.Int("batch", r.cfg.Batch),
	)
	ol.LogStart("starting bench")

	monitor := performance.NewResourceMonitor()
	timer := metrics.NewTimer("bench")

	err = r.phases.TrackOperation(ctx, "run", func(ctx context.Context, span *observability.Span) error {
		span.SetAttribute("workers", workers)
		span.SetAttribute("cycles", r.cfg.Cycles)
		span.SetAttribute("mode", r.cfg.Mode)
		return st.runWorkers(ctx, workers)
	})
	duration := timer.Stop()
	if err != nil {
		ol.LogError("bench failed", err)
		return nil, err
	}

	var result *Result
	err = r.phases.TrackOperation(ctx, "report", func(ctx context.Context, span *observability.Span) error {
		result = st.report(workers, duration, monitor.GetResourceUsage())
		span.RecordStats("messages", result.Stats)
		if result.CodecStats != nil {
			span.RecordStats("codecs", *result.CodecStats)
		}
		span.SetAttribute("peak_outstanding", result.PeakOutstanding)
		if result.PeakOutstanding > result.OutstandingBound {
			return errors.New(errors.ErrorTypeInternal, "outstanding objects exceeded the workload bound").
				WithDetail("peak", result.PeakOutstanding).
				WithDetail("bound", result.OutstandingBound)
		}
		return nil
	})
	if err != nil {
		ol.LogError("bench report rejected", err)
		return result, err
	}

	metrics.PeakOutstanding.WithLabelValues(r.cfg.Mode).Set(float64(result.PeakOutstanding))
	ol.LogStats("message recycler", result.Stats, zap.String("recycler", st.messages.Name()))
	if result.CodecStats != nil {
		ol.LogStats("codec recycler", *result.CodecStats, zap.String("compression", result.Compression))
	}
	ol.LogComplete("bench finished",
		zap.Float64("throughput", result.Throughput),
		zap.Int64("peak_outstanding", result.PeakOutstanding),
	)
	return result, nil
}

// runWorkers starts one goroutine per worker and waits for all of them.
// Workers exit only after every goroutine is done, so late returns to a
// finished worker's stack are still stored.
func (st *run) runWorkers(ctx context.Context, n int) error {
	ws := make([]*recycler.Worker, n)
	for i := range ws {
		ws[i] = recycler.NewWorker(fmt.Sprintf("bench-%d", i))
	}
	defer func() {
		for _, w := range ws {
			w.Exit()
		}
	}()

	p := concpool.New().WithContext(ctx).WithCancelOnError().WithFirstError()
	for i, w := range ws {
		i, w := i, w
		p.Go(func(ctx context.Context) error {
			return st.work(logger.NewContext(ctx, zap.String("worker", w.Name())), i, w)
		})
	}
	return p.Wait()
}

// handOff reports whether the k-th message of a worker goes to the next
// worker of the ring.
func handOff(mode string, k int) bool {
	switch mode {
	case config.ModeCross:
		return true
	case config.ModeMixed:
		return k%2 == 1
	default:
		return false
	}
}

// handOffs returns how many of cycles messages are handed off. Every worker
// receives exactly this many from its predecessor.
func handOffs(mode string, cycles int) int {
	switch mode {
	case config.ModeCross:
		return cycles
	case config.ModeMixed:
		return cycles / 2
	default:
		return 0
	}
}

// work runs the cycles of worker i, then keeps returning messages handed to
// it until its predecessor has sent all of its own.
func (st *run) work(ctx context.Context, i int, w *recycler.Worker) error {
	inbox := st.inboxes[i]
	next := st.inboxes[(i+1)%len(st.inboxes)]
	expect := handOffs(st.cfg.Mode, st.cfg.Cycles)
	held := make([]*pool.Message, 0, st.cfg.Batch)
	label := strconv.Itoa(i)

	for k := 0; k < st.cfg.Cycles; {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := min(st.cfg.Batch, st.cfg.Cycles-k)
		if st.limiter != nil {
			if err := st.limiter.WaitN(ctx, n); err != nil {
				return err
			}
		}
		for j := 0; j < n; j++ {
			held = append(held, st.borrow(w, label, k+j))
		}
		st.peak.Max(st.outstanding.Add(int64(n)))

		// Return in reverse so the next batch pops the same objects.
		for j := n - 1; j >= 0; j-- {
			m := held[j]
			if !handOff(st.cfg.Mode, k+j) {
				if err := st.release(w, m); err != nil {
					return err
				}
				continue
			}
			if err := st.send(ctx, i, w, next, m); err != nil {
				return err
			}
		}
		held = held[:0]
		k += n
		st.throughput.Increment(int64(n))
		metrics.CyclesCompleted.WithLabelValues(st.cfg.Mode).Add(float64(n))
	}

	for st.received[i] < expect {
		select {
		case m := <-inbox:
			if err := st.receive(i, w, m); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	logger.FromContext(ctx).Debug("worker finished",
		zap.Int("cycles", st.cfg.Cycles),
		zap.Int("received", expect),
		zap.Int("local_size", st.messages.LocalSize(w)))
	return nil
}

// send hands m to the next worker. While the next inbox is full it keeps
// draining its own, so a ring of full inboxes cannot deadlock.
func (st *run) send(ctx context.Context, i int, w *recycler.Worker, next chan<- *pool.Message, m *pool.Message) error {
	if st.codec != nil {
		buf, err := st.codec.Compress(w, m.Payload)
		if err != nil {
			return err
		}
		m.Payload = append(m.Payload[:0], buf.Value...)
		if err := buf.Release(w); err != nil {
			return err
		}
	}
	for {
		select {
		case next <- m:
			return nil
		case in := <-st.inboxes[i]:
			if err := st.receive(i, w, in); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (st *run) receive(i int, w *recycler.Worker, m *pool.Message) error {
	intact := m.Method == st.cfg.Mode
	if intact && st.codec != nil {
		buf, err := st.codec.Decompress(w, m.Payload)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeInternal, "handed-off payload did not decode").
				WithDetail("worker", i).
				WithDetail("message", m.ID)
		}
		intact = bytes.Equal(buf.Value, st.payload)
		if err := buf.Release(w); err != nil {
			return err
		}
	} else if intact {
		intact = len(m.Payload) == len(st.payload)
	}
	if !intact {
		return errors.New(errors.ErrorTypeInternal, "handed-off message was modified in flight").
			WithDetail("worker", i).
			WithDetail("message", m.ID)
	}
	st.received[i]++
	return st.release(w, m)
}

func (st *run) borrow(w *recycler.Worker, label string, k int) *pool.Message {
	var start time.Time
	sampled := k%latencySampleEvery == 0
	if sampled {
		start = time.Now()
	}

	m := pool.GetMessageFrom(st.messages, w)

	if sampled {
		d := time.Since(start)
		st.getLatency.Record(d)
		metrics.OperationLatency.WithLabelValues("get", st.cfg.Mode).Observe(float64(d.Nanoseconds()))
	}

	m.Directory = "bench"
	m.Method = st.cfg.Mode
	m.Payload = append(m.Payload, st.payload...)
	m.SetMetadata("worker", label)
	return m
}

func (st *run) release(w *recycler.Worker, m *pool.Message) error {
	sampled := m.ID%latencySampleEvery == 0
	var start time.Time
	if sampled {
		start = time.Now()
	}

	err := m.Release(w)

	if sampled {
		d := time.Since(start)
		st.putLatency.Record(d)
		metrics.OperationLatency.WithLabelValues("recycle", st.cfg.Mode).Observe(float64(d.Nanoseconds()))
	}
	st.outstanding.Add(-1)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "release failed")
	}
	return nil
}

func makePayload(size int) []byte {
	p := make([]byte, size)
	for i := range p {
		p[i] = byte('a' + i%26)
	}
	return p
}
