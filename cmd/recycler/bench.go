package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/recycler/internal/bench"
	"github.com/ajitpratap0/recycler/pkg/config"
	"github.com/ajitpratap0/recycler/pkg/logger"
	"github.com/ajitpratap0/recycler/pkg/metrics"
	"github.com/ajitpratap0/recycler/pkg/observability"
	"github.com/ajitpratap0/recycler/pkg/pool"
)

// benchFlags holds the command line overrides of the bench command. A flag
// only replaces the file value when it was set explicitly.
type benchFlags struct {
	configFile  string
	workers     int
	cycles      int
	mode        string
	batch       int
	handOff     int
	payloadSize int
	timeout     time.Duration
	compression string
	rate        float64
	maxCapacity int
	linkCap     int
	logLevel    string
	metricsAddr string
	trace       bool
	jsonOutput  bool
	holdMetrics time.Duration
}

func newBenchCmd() *cobra.Command {
	var f benchFlags
	defaults := config.Default()

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run a borrow/return workload against a recycler",
		Long: `Run N workers performing M borrow/return cycles each on pooled messages.

Modes:
  local  every worker returns what it borrows
  cross  every message is returned by the next worker of a ring
  mixed  every other message is returned by the next worker

Example:
  recycler bench --workers 8 --cycles 1000000 --mode cross --json
  recycler bench --mode mixed --compression zstd`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(f.configFile)
			if err != nil {
				return err
			}
			f.apply(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runBench(cmd, cfg, f)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&f.configFile, "config", "c", "", "Path to a YAML configuration file")
	flags.IntVarP(&f.workers, "workers", "w", defaults.Bench.Workers, "Number of concurrent workers")
	flags.IntVarP(&f.cycles, "cycles", "n", defaults.Bench.Cycles, "Borrow/return cycles per worker")
	flags.StringVarP(&f.mode, "mode", "m", defaults.Bench.Mode, "Workload mode (local, cross, mixed)")
	flags.IntVar(&f.batch, "batch", defaults.Bench.Batch, "Messages a worker holds before returning them")
	flags.IntVar(&f.handOff, "hand-off", defaults.Bench.HandOff, "Depth of each worker's inbox in cross and mixed modes")
	flags.IntVar(&f.payloadSize, "payload-size", defaults.Bench.PayloadSize, "Bytes written into every borrowed message")
	flags.DurationVar(&f.timeout, "timeout", defaults.Bench.Timeout, "Bench timeout")
	flags.Float64Var(&f.rate, "rate", defaults.Bench.Rate, "Cap on cycles per second across all workers (0 = unlimited)")
	flags.StringVar(&f.compression, "compression", defaults.Bench.Compression, "Codec for handed-off payloads (none, gzip, deflate, snappy, s2, lz4, zstd)")
	flags.IntVar(&f.maxCapacity, "max-capacity", defaults.Recycler.MaxCapacityPerWorker, "Maximum pooled objects per worker (0 disables pooling)")
	flags.IntVar(&f.linkCap, "link-capacity", defaults.Recycler.LinkCapacity, "Handles per weak order queue link")
	flags.StringVar(&f.logLevel, "log-level", "error", "Log level (debug, info, warn, error)")
	flags.StringVar(&f.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while the bench runs")
	flags.DurationVar(&f.holdMetrics, "hold-metrics", 0, "Keep serving metrics this long after the bench finishes")
	flags.BoolVar(&f.trace, "trace", false, "Write OpenTelemetry spans of the bench phases to stderr")
	flags.BoolVar(&f.jsonOutput, "json", false, "Print the report as JSON")

	return cmd
}

// apply copies explicitly set flags over cfg.
func (f *benchFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("workers") {
		cfg.Bench.Workers = f.workers
	}
	if changed("cycles") {
		cfg.Bench.Cycles = f.cycles
	}
	if changed("mode") {
		cfg.Bench.Mode = f.mode
	}
	if changed("batch") {
		cfg.Bench.Batch = f.batch
	}
	if changed("hand-off") {
		cfg.Bench.HandOff = f.handOff
	}
	if changed("payload-size") {
		cfg.Bench.PayloadSize = f.payloadSize
	}
	if changed("timeout") {
		cfg.Bench.Timeout = f.timeout
	}
	if changed("rate") {
		cfg.Bench.Rate = f.rate
	}
	if changed("compression") {
		cfg.Bench.Compression = f.compression
	}
	if changed("max-capacity") {
		cfg.Recycler.MaxCapacityPerWorker = f.maxCapacity
	}
	if changed("link-capacity") {
		cfg.Recycler.LinkCapacity = f.linkCap
	}
	if changed("log-level") || f.configFile == "" {
		cfg.Logging.Level = f.logLevel
	}
	if changed("metrics-addr") {
		cfg.Observability.EnableMetrics = f.metricsAddr != ""
		cfg.Observability.MetricsAddr = f.metricsAddr
	}
	if changed("trace") {
		cfg.Observability.EnableTracing = f.trace
	}
}

func runBench(cmd *cobra.Command, cfg *config.Config, f benchFlags) error {
	if err := logger.Init(cfg.Logging.LoggerConfig()); err != nil {
		return err
	}
	log := logger.With(zap.String("component", "recycler-cli"))
	defer func() { _ = logger.Sync() }()

	if cfg.Observability.EnableTracing {
		obs := observability.DefaultConfig()
		obs.Tracing.ServiceName = cfg.Name
		obs.Tracing.ServiceVersion = version
		obs.Tracing.SamplingRate = cfg.Observability.TracingSampleRate
		obs.Tracing.ExporterType = "stdout"
		obs.Tracing.Writer = cmd.ErrOrStderr()
		obs.Logging = cfg.Logging.LoggerConfig()
		if err := observability.Initialize(obs); err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := observability.Shutdown(ctx); err != nil {
				log.Warn("failed to shut down tracing", zap.Error(err))
			}
		}()
	}

	collector := metrics.NewStatsCollector()
	for name, src := range pool.Sources() {
		collector.Add(name, src)
	}

	if cfg.Observability.EnableMetrics {
		_, stop, err := serveMetrics(cfg.Observability.MetricsAddr, collector, log)
		if err != nil {
			return err
		}
		defer func() {
			if f.holdMetrics > 0 {
				log.Info("holding metrics endpoint", zap.Duration("for", f.holdMetrics))
				time.Sleep(f.holdMetrics)
			}
			stop()
		}()
	}

	runner, err := bench.NewRunner(cfg.Bench, cfg.Recycler.Options(), log)
	if err != nil {
		return err
	}
	runner.WithCollector(collector)

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	result, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	if f.jsonOutput {
		return result.WriteJSON(cmd.OutOrStdout())
	}
	return result.WriteText(cmd.OutOrStdout())
}

// serveMetrics serves the process metrics and the recycler collector on addr
// until the returned stop function is called. It returns the address
// actually bound, which differs from addr when addr uses port 0.
func serveMetrics(addr string, collector *metrics.StatsCollector, log *zap.Logger) (string, func(), error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(collector); err != nil {
		return "", nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(
		prometheus.Gatherers{prometheus.DefaultGatherer, reg},
		promhttp.HandlerOpts{},
	))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, err
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", zap.Error(err))
		}
	}()
	log.Info("serving metrics", zap.String("addr", ln.Addr().String()))

	return ln.Addr().String(), func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
