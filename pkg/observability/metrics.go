package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var phaseDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "recycler",
		Subsystem: "phase",
		Name:      "duration_seconds",
		Help:      "Duration of tracked phases in seconds",
		Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1.0, 5.0, 10.0, 30.0, 60.0, 300.0},
	},
	[]string{"component", "operation", "status"},
)

// RecordDuration records the duration of a completed phase.
func RecordDuration(component, operation, status string, duration time.Duration) {
	phaseDuration.WithLabelValues(component, operation, status).Observe(duration.Seconds())
}
