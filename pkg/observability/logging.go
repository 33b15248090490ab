package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ajitpratap0/recycler/pkg/errors"
	"github.com/ajitpratap0/recycler/pkg/logger"
	"github.com/ajitpratap0/recycler/pkg/recycler"
)

// OperationLogger logs the lifecycle of one long-running operation and
// stamps every entry with the trace of the context it was created from.
type OperationLogger struct {
	logger    *zap.Logger
	operation string
	startTime time.Time
}

// NewOperationLogger creates a logger for operation carrying the fields
// stored in ctx. Trace and span IDs are added when ctx carries a valid span.
func NewOperationLogger(ctx context.Context, operation string, fields ...zap.Field) *OperationLogger {
	fields = append(fields, zap.String("operation", operation))

	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		fields = append(fields,
			zap.String("trace_id", span.SpanContext().TraceID().String()),
			zap.String("span_id", span.SpanContext().SpanID().String()),
		)
	}

	return &OperationLogger{
		logger:    logger.FromContext(ctx).With(fields...),
		operation: operation,
		startTime: time.Now(),
	}
}

// Logger returns the underlying zap logger.
func (ol *OperationLogger) Logger() *zap.Logger {
	return ol.logger
}

// LogStart logs the start of an operation
func (ol *OperationLogger) LogStart(msg string, fields ...zap.Field) {
	ol.logger.Info(msg, append(fields, zap.String("phase", "start"))...)
}

// LogProgress logs operation progress; progress is a fraction in [0, 1].
func (ol *OperationLogger) LogProgress(msg string, progress float64, fields ...zap.Field) {
	ol.logger.Info(msg, append(fields,
		zap.String("phase", "progress"),
		zap.Float64("progress_percent", progress*100),
		zap.Duration("elapsed", time.Since(ol.startTime)),
	)...)
}

// LogComplete logs the completion of an operation
func (ol *OperationLogger) LogComplete(msg string, fields ...zap.Field) {
	ol.logger.Info(msg, append(fields,
		zap.String("phase", "complete"),
		zap.Duration("total_duration", time.Since(ol.startTime)),
	)...)
}

// LogError logs an operation error
func (ol *OperationLogger) LogError(msg string, err error, fields ...zap.Field) {
	ol.logger.Error(msg, append(fields,
		zap.String("phase", "error"),
		zap.Duration("duration_before_error", time.Since(ol.startTime)),
		zap.Error(err),
		errors.Field(err),
	)...)
}

// LogStats logs a recycler counter snapshot under the stats phase.
func (ol *OperationLogger) LogStats(msg string, stats recycler.Stats, fields ...zap.Field) {
	ol.logger.Info(msg, append(append(fields, zap.String("phase", "stats")), StatsFields(stats)...)...)
}

// StatsFields flattens stats into zap fields named after the Prometheus
// counters.
func StatsFields(s recycler.Stats) []zap.Field {
	return []zap.Field{
		zap.Uint64("gets", s.Gets),
		zap.Uint64("hits", s.Hits),
		zap.Uint64("allocations", s.Allocations),
		zap.Uint64("recycles", s.Recycles),
		zap.Uint64("cross_worker_recycles", s.CrossWorkerRecycles),
		zap.Uint64("dropped", s.Dropped),
		zap.Uint64("violations", s.Violations),
		zap.Uint64("scavenges", s.Scavenges),
		zap.Uint64("queues_created", s.QueuesCreated),
		zap.Uint64("queues_reclaimed", s.QueuesReclaimed),
		zap.Int64("stacks", s.Stacks),
		zap.Float64("hit_ratio", s.HitRatio()),
	}
}
