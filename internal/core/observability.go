package core

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsRecorder receives the outcome of every service operation.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) Observe(context.Context, string, bool, time.Duration) {}

// PrometheusMetricsRecorder exports operation counters and latencies.
type PrometheusMetricsRecorder struct {
	operations *prometheus.CounterVec
	durations  *prometheus.HistogramVec
}

// NewPrometheusMetricsRecorder registers the catalog operation collectors on
// reg. A nil reg falls back to the default registerer.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) *PrometheusMetricsRecorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &PrometheusMetricsRecorder{
		operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_operations_total",
				Help: "Catalog service operations by outcome",
			},
			[]string{"operation", "status"},
		),
		durations: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "catalog_operation_duration_seconds",
				Help:    "Catalog service operation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// Observe records a service operation outcome.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
	}
	r.operations.WithLabelValues(operation, status).Inc()
	r.durations.WithLabelValues(operation).Observe(duration.Seconds())
}
