// Package config provides the configuration for recycler deployments and
// the bench tool. One Config structure carries every section:
//   - Recycler: per-worker capacity, link size, shared budget, queue cap
//   - Bench: the synthetic workload driven by cmd/recycler bench
//   - Logging: zap logger settings
//   - Observability: metrics endpoint and tracing
//
// Example usage:
//
//	cfg := config.Default()
//	cfg.Recycler.MaxCapacityPerWorker = 1024
//
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
//	r, err := recycler.New(newFrame, cfg.Recycler.Options()...)
package config

import (
	"runtime"
	"strings"
	"time"

	"github.com/ajitpratap0/recycler/pkg/compression"
	"github.com/ajitpratap0/recycler/pkg/errors"
	"github.com/ajitpratap0/recycler/pkg/logger"
	"github.com/ajitpratap0/recycler/pkg/recycler"
)

// Config is the single configuration structure loaded from YAML.
type Config struct {
	// Name identifies the deployment in logs and traces
	Name string `yaml:"name" json:"name"`
	// Version indicates the configuration version
	Version string `yaml:"version" json:"version"`

	// Recycler sizes every recycler created from this configuration
	Recycler RecyclerConfig `yaml:"recycler" json:"recycler"`

	// Bench describes the synthetic workload
	Bench BenchConfig `yaml:"bench" json:"bench"`

	// Logging configures the global zap logger
	Logging LoggingConfig `yaml:"logging" json:"logging"`

	// Observability settings for metrics and tracing
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

// RecyclerConfig mirrors the recycler options.
type RecyclerConfig struct {
	// MaxCapacityPerWorker bounds each worker's stack (0 disables pooling)
	MaxCapacityPerWorker int `yaml:"max_capacity_per_worker" json:"max_capacity_per_worker"`
	// LinkCapacity is the number of handles per queue link, rounded up to a power of two
	LinkCapacity int `yaml:"link_capacity" json:"link_capacity"`
	// MaxSharedCapacityFactor divides MaxCapacityPerWorker into the cross-worker budget
	MaxSharedCapacityFactor int `yaml:"max_shared_capacity_factor" json:"max_shared_capacity_factor"`
	// MaxQueuesPerStack caps the donor workers one stack accepts (0 = unlimited)
	MaxQueuesPerStack int `yaml:"max_queues_per_stack" json:"max_queues_per_stack"`
}

// BenchConfig describes the bench workload.
type BenchConfig struct {
	// Workers is the number of concurrent workers
	Workers int `yaml:"workers" json:"workers"`
	// Cycles is the number of borrow/return cycles per worker
	Cycles int `yaml:"cycles" json:"cycles"`
	// Mode is one of local, cross or mixed
	Mode string `yaml:"mode" json:"mode"`
	// Batch is how many objects a worker holds before returning them
	Batch int `yaml:"batch" json:"batch"`
	// HandOff is the depth of the channel feeding each worker in cross mode
	HandOff int `yaml:"hand_off" json:"hand_off"`
	// PayloadSize is the number of bytes written into every borrowed message
	PayloadSize int `yaml:"payload_size" json:"payload_size"`
	// Timeout bounds the whole run
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	// Rate caps the cycles per second of the whole run (0 = unlimited)
	Rate float64 `yaml:"rate" json:"rate"`
	// Compression is the codec applied to payloads handed to another worker
	// (none, gzip, deflate, snappy, s2, lz4, zstd)
	Compression string `yaml:"compression" json:"compression"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error
	Level string `yaml:"level" json:"level"`
	// Development enables stack traces on warnings and human-friendly output
	Development bool `yaml:"development" json:"development"`
	// Encoding is json or console
	Encoding string `yaml:"encoding" json:"encoding"`
	// OutputPaths lists sinks (stdout, stderr or file paths)
	OutputPaths []string `yaml:"output_paths" json:"output_paths"`
}

// ObservabilityConfig contains monitoring and tracing settings.
type ObservabilityConfig struct {
	// EnableMetrics serves Prometheus metrics on MetricsAddr
	EnableMetrics bool `yaml:"enable_metrics" json:"enable_metrics"`
	// MetricsAddr is the listen address of the metrics endpoint
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`
	// EnableTracing activates OpenTelemetry tracing to stdout
	EnableTracing bool `yaml:"enable_tracing" json:"enable_tracing"`
	// TracingSampleRate controls trace sampling (0.0-1.0)
	TracingSampleRate float64 `yaml:"tracing_sample_rate" json:"tracing_sample_rate"`
}

// Bench modes.
const (
	ModeLocal = "local"
	ModeCross = "cross"
	ModeMixed = "mixed"
)

// Default returns a Config with the recycler's own defaults and a small
// local-mode bench.
//
// Example:
//
//	cfg := config.Default()
//	cfg.Bench.Mode = config.ModeCross
func Default() *Config {
	return &Config{
		Name:    "recycler",
		Version: "1.0.0",
		Recycler: RecyclerConfig{
			MaxCapacityPerWorker:    recycler.DefaultMaxCapacityPerWorker,
			LinkCapacity:            recycler.DefaultLinkCapacity,
			MaxSharedCapacityFactor: recycler.DefaultMaxSharedCapacityFactor,
			MaxQueuesPerStack:       recycler.DefaultMaxQueuesPerStack,
		},
		Bench: BenchConfig{
			Workers:     runtime.NumCPU(),
			Cycles:      100000,
			Mode:        ModeLocal,
			Batch:       8,
			HandOff:     64,
			PayloadSize: 256,
			Timeout:     5 * time.Minute,
			Compression: string(compression.None),
		},
		Logging: LoggingConfig{
			Level:       "info",
			Encoding:    "json",
			OutputPaths: []string{"stderr"},
		},
		Observability: ObservabilityConfig{
			EnableMetrics:     false,
			MetricsAddr:       ":9090",
			EnableTracing:     false,
			TracingSampleRate: 1.0,
		},
	}
}

// Validate checks required fields and value ranges. It returns the first
// problem found as a config error.
func (c *Config) Validate() error {
	if c.Name == "" {
		return invalid("name is required", "name", c.Name)
	}

	r := c.Recycler
	if r.MaxCapacityPerWorker < 0 {
		return invalid("max_capacity_per_worker cannot be negative", "max_capacity_per_worker", r.MaxCapacityPerWorker)
	}
	if r.LinkCapacity <= 0 {
		return invalid("link_capacity must be positive", "link_capacity", r.LinkCapacity)
	}
	if r.MaxSharedCapacityFactor <= 0 {
		return invalid("max_shared_capacity_factor must be positive", "max_shared_capacity_factor", r.MaxSharedCapacityFactor)
	}
	if r.MaxQueuesPerStack < 0 {
		return invalid("max_queues_per_stack cannot be negative", "max_queues_per_stack", r.MaxQueuesPerStack)
	}

	b := c.Bench
	if b.Workers < 0 {
		return invalid("workers cannot be negative", "workers", b.Workers)
	}
	if b.Cycles <= 0 {
		return invalid("cycles must be positive", "cycles", b.Cycles)
	}
	switch strings.ToLower(b.Mode) {
	case ModeLocal, ModeCross, ModeMixed:
	default:
		return invalid("mode must be local, cross or mixed", "mode", b.Mode)
	}
	if b.Batch <= 0 {
		return invalid("batch must be positive", "batch", b.Batch)
	}
	if b.HandOff < 0 {
		return invalid("hand_off cannot be negative", "hand_off", b.HandOff)
	}
	if b.PayloadSize < 0 {
		return invalid("payload_size cannot be negative", "payload_size", b.PayloadSize)
	}
	if b.Rate < 0 {
		return invalid("rate cannot be negative", "rate", b.Rate)
	}
	if _, err := compression.ParseAlgorithm(b.Compression); err != nil {
		return invalid("compression must be none, gzip, deflate, snappy, s2, lz4 or zstd", "compression", b.Compression)
	}

	if rate := c.Observability.TracingSampleRate; rate < 0 || rate > 1 {
		return invalid("tracing_sample_rate must be between 0 and 1", "tracing_sample_rate", rate)
	}
	return nil
}

func invalid(msg, field string, value interface{}) error {
	return errors.New(errors.ErrorTypeConfig, msg).WithDetail(field, value)
}

// GetWorkers returns the number of bench workers, ensuring it's at least 1
func (b *BenchConfig) GetWorkers() int {
	if b.Workers <= 0 {
		return runtime.NumCPU()
	}
	return b.Workers
}

// Options converts the section into recycler options.
func (r RecyclerConfig) Options() []recycler.Option {
	return []recycler.Option{
		recycler.WithMaxCapacityPerWorker(r.MaxCapacityPerWorker),
		recycler.WithLinkCapacity(r.LinkCapacity),
		recycler.WithMaxSharedCapacityFactor(r.MaxSharedCapacityFactor),
		recycler.WithMaxQueuesPerStack(r.MaxQueuesPerStack),
	}
}

// LoggerConfig converts the section into a logger configuration.
func (l LoggingConfig) LoggerConfig() logger.Config {
	return logger.Config{
		Level:       l.Level,
		Development: l.Development,
		Encoding:    l.Encoding,
		OutputPaths: l.OutputPaths,
	}
}
