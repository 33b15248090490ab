package observability

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.uber.org/multierr"

	"github.com/ajitpratap0/recycler/pkg/errors"
	"github.com/ajitpratap0/recycler/pkg/logger"
)

// initTracing installs a tracer provider exporting to the configured writer.
// The "none" exporter samples and ends spans without exporting them, which
// keeps span contexts valid for log correlation.
func initTracing(config TracingConfig) error {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(config.ServiceName),
			semconv.ServiceVersionKey.String(config.ServiceVersion),
			semconv.DeploymentEnvironmentKey.String(config.Environment),
		),
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to create trace resource")
	}

	var sampler sdktrace.Sampler
	switch {
	case config.SamplingRate <= 0:
		sampler = sdktrace.NeverSample()
	case config.SamplingRate >= 1:
		sampler = sdktrace.AlwaysSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(config.SamplingRate)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	}

	switch config.ExporterType {
	case "none":
		// Spans are sampled and ended but never exported.
	default:
		var w io.Writer = os.Stdout
		if config.Writer != nil {
			w = config.Writer
		}
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeConfig, "failed to create stdout exporter")
		}
		opts = append(opts, sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(config.BatchTimeout),
			sdktrace.WithMaxExportBatchSize(config.MaxExportBatch),
			sdktrace.WithMaxQueueSize(config.MaxQueueSize),
		))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	tracer = tp.Tracer(config.ServiceName)

	return nil
}

// initMetrics initializes the metrics provider. Prometheus carries the
// exported metrics; the otel meter stays a no-op unless the process installs
// a meter provider of its own.
func initMetrics(config MetricsConfig) error {
	meter = otel.Meter(config.Namespace)
	return nil
}

// initLogging builds the global logger from the logging section.
func initLogging(config logger.Config) error {
	if err := logger.Init(config); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to build logger")
	}
	return nil
}

// DefaultConfig returns the configuration used by the CLI, overridable with
// ENVIRONMENT, TRACING_EXPORTER, LOG_LEVEL and LOG_FORMAT.
func DefaultConfig() ObservabilityConfig {
	return ObservabilityConfig{
		Tracing: TracingConfig{
			ServiceName:    "recycler",
			ServiceVersion: "1.0.0",
			Environment:    getEnv("ENVIRONMENT", "development"),
			SamplingRate:   1.0,
			ExporterType:   getEnv("TRACING_EXPORTER", "stdout"),
			BatchTimeout:   5 * time.Second,
			MaxExportBatch: 512,
			MaxQueueSize:   2048,
		},
		Metrics: MetricsConfig{
			Namespace: "recycler",
		},
		Logging: logger.Config{
			Level:       getEnv("LOG_LEVEL", "info"),
			Encoding:    getEnv("LOG_FORMAT", "json"),
			OutputPaths: []string{"stderr"},
			Development: getEnv("ENVIRONMENT", "development") == "development",
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Shutdown flushes pending spans and syncs the logger. Every step runs
// even when an earlier one fails; the failures are combined.
func Shutdown(ctx context.Context) error {
	var err error
	if tp, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); ok {
		if serr := tp.Shutdown(ctx); serr != nil {
			err = multierr.Append(err, errors.Wrap(serr, errors.ErrorTypeInternal, "failed to shutdown tracer"))
		}
	}
	if serr := logger.Sync(); serr != nil && !isConsoleSyncError(serr) {
		err = multierr.Append(err, errors.Wrap(serr, errors.ErrorTypeFile, "failed to sync logger"))
	}
	return err
}

// isConsoleSyncError reports whether err comes from syncing a terminal or
// pipe, which zap cannot do on most platforms (uber-go/zap#328).
func isConsoleSyncError(err error) bool {
	msg := err.Error()
	for _, s := range []string{"bad file descriptor", "invalid argument", "inappropriate ioctl", "/dev/stdout", "/dev/stderr"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
