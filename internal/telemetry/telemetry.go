// Package telemetry exposes the service's Prometheus metrics: scheduler
// ticks, dispatch counts, execution durations, and discovery counts, per
// §6's telemetry-sink contract.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles every counter/gauge/histogram the service emits. A single
// Metrics is constructed once at startup and threaded into the scheduler and
// the file-check service. The message handlers do not receive it, so
// FilesProcessed is registered but never incremented.
type Metrics struct {
	SchedulerTicks        prometheus.Counter
	ConfigurationsDue      prometheus.Counter
	ExecutionsDispatched   prometheus.Counter
	ExecutionsSkippedInFlight prometheus.Counter
	ExecutionDuration      *prometheus.HistogramVec
	FilesDiscovered        *prometheus.CounterVec
	FilesProcessed         *prometheus.CounterVec
	AdapterErrors          *prometheus.CounterVec
}

// NewMetrics builds and registers every metric against reg. Passing
// prometheus.NewRegistry() in tests avoids colliding with the default
// global registry across parallel test packages.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SchedulerTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "filediscovery",
			Name:      "scheduler_ticks_total",
			Help:      "Number of scheduler tick loop iterations.",
		}),
		ConfigurationsDue: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "filediscovery",
			Name:      "configurations_due_total",
			Help:      "Number of configuration due-window evaluations that were due.",
		}),
		ExecutionsDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "filediscovery",
			Name:      "executions_dispatched_total",
			Help:      "Number of file-check executions dispatched by the scheduler.",
		}),
		ExecutionsSkippedInFlight: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "filediscovery",
			Name:      "executions_skipped_inflight_total",
			Help:      "Number of due configurations skipped because a prior execution was still in flight.",
		}),
		ExecutionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "filediscovery",
			Name:      "execution_duration_seconds",
			Help:      "Duration of file-check executions.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"protocol", "status"}),
		FilesDiscovered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "filediscovery",
			Name:      "files_discovered_total",
			Help:      "Number of newly discovered files.",
		}, []string{"protocol"}),
		FilesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "filediscovery",
			Name:      "files_processed_total",
			Help:      "Number of files successfully downloaded and checksummed.",
		}, []string{"protocol"}),
		AdapterErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "filediscovery",
			Name:      "adapter_errors_total",
			Help:      "Number of adapter errors by protocol and category.",
		}, []string{"protocol", "category"}),
	}
	reg.MustRegister(
		m.SchedulerTicks, m.ConfigurationsDue, m.ExecutionsDispatched, m.ExecutionsSkippedInFlight,
		m.ExecutionDuration, m.FilesDiscovered, m.FilesProcessed, m.AdapterErrors,
	)
	return m
}
