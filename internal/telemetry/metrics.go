// Package telemetry holds the Prometheus collectors this service exposes
// under /metrics, grounded on the teacher's per-service registry pattern
// (vendor/github.com/wisbric/core/pkg/telemetry), now owned locally since
// that internal platform library isn't part of this module's dependency
// surface (see DESIGN.md).
package telemetry

import "github.com/prometheus/client_golang/prometheus"

// HTTPRequestDuration tracks HTTP request latency by method, route, and
// status code.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "blulok",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "route", "status"},
)

// RoutePassIssuedTotal counts successful Route Pass issuances.
var RoutePassIssuedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "blulok",
		Subsystem: "routepass",
		Name:      "issued_total",
		Help:      "Total number of Route Passes issued, by path.",
	},
	[]string{"path"},
)

// RoutePassFailedTotal counts failed Route Pass issuance attempts by kind.
var RoutePassFailedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "blulok",
		Subsystem: "routepass",
		Name:      "failed_total",
		Help:      "Total number of failed Route Pass issuance attempts, by failure kind.",
	},
	[]string{"kind"},
)

// DenylistCommandsSentTotal counts unicast denylist commands by command type.
var DenylistCommandsSentTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "blulok",
		Subsystem: "denylist",
		Name:      "commands_sent_total",
		Help:      "Total number of denylist commands unicast to facilities, by cmd_type.",
	},
	[]string{"cmd_type"},
)

// DenylistCommandsSkippedTotal counts commands the optimizer suppressed.
var DenylistCommandsSkippedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "blulok",
		Subsystem: "denylist",
		Name:      "commands_skipped_total",
		Help:      "Total number of denylist commands skipped by the optimizer, by cmd_type.",
	},
	[]string{"cmd_type"},
)

// PrunerRemovedTotal counts denylist rows removed by the pruner.
var PrunerRemovedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "blulok",
		Subsystem: "pruner",
		Name:      "removed_total",
		Help:      "Total number of expired denylist entries removed by the pruner.",
	},
)

// All returns every blulok-specific metric for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		RoutePassIssuedTotal,
		RoutePassFailedTotal,
		DenylistCommandsSentTotal,
		DenylistCommandsSkippedTotal,
		PrunerRemovedTotal,
	}
}

// NewMetricsRegistry creates a fresh Prometheus registry carrying the
// process collectors, the shared HTTPRequestDuration metric, and any
// additional service-specific collectors.
func NewMetricsRegistry(extra ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		HTTPRequestDuration,
	)
	reg.MustRegister(extra...)
	return reg
}
