// Package observability provides tracing, structured operation logging and
// phase metrics for recycler workloads.
package observability

import (
	"context"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ajitpratap0/recycler/pkg/errors"
	"github.com/ajitpratap0/recycler/pkg/logger"
	"github.com/ajitpratap0/recycler/pkg/recycler"
)

var (
	tracer trace.Tracer
	meter  metric.Meter

	initOnce sync.Once
	initErr  error
)

// TracingConfig contains tracing configuration
type TracingConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	SamplingRate   float64
	ExporterType   string    // "stdout" or "none"
	Writer         io.Writer // stdout exporter target, os.Stdout when nil
	BatchTimeout   time.Duration
	MaxExportBatch int
	MaxQueueSize   int
}

// MetricsConfig contains metrics configuration
type MetricsConfig struct {
	Namespace string
}

// ObservabilityConfig contains all observability configuration
type ObservabilityConfig struct {
	Tracing TracingConfig
	Metrics MetricsConfig
	Logging logger.Config
}

// Initialize sets up tracing, the meter and the global logger, in that
// order. Only the first call has any effect; later calls return its error.
func Initialize(config ObservabilityConfig) error {
	initOnce.Do(func() {
		steps := []func() error{
			func() error { return initTracing(config.Tracing) },
			func() error { return initMetrics(config.Metrics) },
			func() error { return initLogging(config.Logging) },
		}
		for _, step := range steps {
			if initErr = step(); initErr != nil {
				return
			}
		}
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
	})
	return initErr
}

// GetTracer returns the global tracer, or the otel global one before
// Initialize.
func GetTracer() trace.Tracer {
	if tracer == nil {
		return otel.Tracer("recycler")
	}
	return tracer
}

// GetMeter returns the global meter
func GetMeter() metric.Meter {
	if meter == nil {
		return otel.Meter("recycler")
	}
	return meter
}

// GetLogger returns the global logger
func GetLogger() *zap.Logger {
	return logger.Get()
}

// Span wraps a trace span. Attributes set through it are buffered and
// attached in one call when the span ends.
type Span struct {
	span    trace.Span
	started time.Time
	attrs   []attribute.KeyValue
}

// NewSpan starts a span named operationName.
func NewSpan(ctx context.Context, operationName string) (context.Context, *Span) {
	ctx, span := GetTracer().Start(ctx, operationName)
	return ctx, &Span{span: span, started: time.Now()}
}

// SetAttribute buffers key=value. Values without a native attribute type
// are recorded as their %v rendering; uint64 values above MaxInt64 saturate.
func (s *Span) SetAttribute(key string, value interface{}) {
	s.attrs = append(s.attrs, toAttribute(key, value))
}

// RecordStats buffers a recycler counter snapshot as prefix.<counter>
// attributes.
func (s *Span) RecordStats(prefix string, st recycler.Stats) {
	s.attrs = append(s.attrs,
		attribute.Int64(prefix+".gets", saturate(st.Gets)),
		attribute.Int64(prefix+".hits", saturate(st.Hits)),
		attribute.Int64(prefix+".allocations", saturate(st.Allocations)),
		attribute.Int64(prefix+".cross_worker_recycles", saturate(st.CrossWorkerRecycles)),
		attribute.Int64(prefix+".dropped", saturate(st.Dropped)),
		attribute.Int64(prefix+".violations", saturate(st.Violations)),
		attribute.Float64(prefix+".hit_ratio", st.HitRatio()),
	)
}

// AddEvent adds an event to the span
func (s *Span) AddEvent(name string, attrs ...attribute.KeyValue) {
	s.span.AddEvent(name, trace.WithAttributes(attrs...))
}

// SetStatus sets the span status
func (s *Span) SetStatus(code codes.Code, description string) {
	s.span.SetStatus(code, description)
}

// SpanContext returns the underlying span context.
func (s *Span) SpanContext() trace.SpanContext {
	return s.span.SpanContext()
}

// End attaches the buffered attributes, ends the span and returns how long
// it was open.
func (s *Span) End() time.Duration {
	if len(s.attrs) > 0 {
		s.span.SetAttributes(s.attrs...)
		s.attrs = nil
	}
	s.span.End()
	return time.Since(s.started)
}

func toAttribute(key string, value interface{}) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case bool:
		return attribute.Bool(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case uint64:
		return attribute.Int64(key, saturate(v))
	case float64:
		return attribute.Float64(key, v)
	case time.Duration:
		return attribute.String(key, v.String())
	case fmt.Stringer:
		return attribute.String(key, v.String())
	default:
		return attribute.String(key, fmt.Sprint(v))
	}
}

func saturate(v uint64) int64 {
	if v > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}

// PhaseTracker traces, times and counts the phases of one component's run,
// such as the run and report phases of a bench.
type PhaseTracker struct {
	component string
	logger    *zap.Logger
	completed metric.Int64Counter
}

// NewPhaseTracker creates a tracker for component.
func NewPhaseTracker(component string) *PhaseTracker {
	log := GetLogger().With(zap.String("component", component))
	completed, err := GetMeter().Int64Counter("recycler.phases",
		metric.WithDescription("Completed phases by component and status"))
	if err != nil {
		log.Warn("failed to create phase counter", zap.Error(err))
	}
	return &PhaseTracker{component: component, logger: log, completed: completed}
}

// TrackOperation runs fn inside a span named component.operation. The
// context passed to fn carries the span. The outcome is recorded in the
// phase histogram and counter and logged; fn's error is returned unchanged.
func (pt *PhaseTracker) TrackOperation(ctx context.Context, operation string, fn func(ctx context.Context, span *Span) error) error {
	ctx, span := NewSpan(ctx, pt.component+"."+operation)
	span.SetAttribute("component", pt.component)
	span.SetAttribute("operation", operation)

	err := fn(ctx, span)
	status := "success"
	if err != nil {
		status = "error"
		span.span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttribute("error", true)
		span.SetAttribute("error.type", string(errors.GetType(err)))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	elapsed := span.End()

	RecordDuration(pt.component, operation, status, elapsed)
	if pt.completed != nil {
		pt.completed.Add(ctx, 1, metric.WithAttributes(
			attribute.String("component", pt.component),
			attribute.String("operation", operation),
			attribute.String("status", status),
		))
	}

	fields := []zap.Field{zap.String("operation", operation), zap.Duration("duration", elapsed)}
	if err != nil {
		pt.logger.Error("phase failed", append(fields, zap.Error(err), errors.Field(err))...)
	} else {
		pt.logger.Debug("phase completed", fields...)
	}
	return err
}
