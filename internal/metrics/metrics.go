// Package metrics provides Prometheus instrumentation for the bridge.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentbridge_http_requests_total",
		Help: "Total number of HTTP requests.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agentbridge_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)

// Server metrics.
var (
	EventsAppendedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentbridge_events_appended_total",
		Help: "Total number of events appended to thread logs.",
	}, []string{"type"})

	SSEStreamsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agentbridge_sse_streams_active",
		Help: "Number of currently open event stream connections.",
	})

	AdmissionRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentbridge_admission_rejected_total",
		Help: "Total number of agent messages rejected by thread controls.",
	}, []string{"code"})
)

// Coordinator metrics.
var (
	DispatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentbridge_dispatches_total",
		Help: "Total number of adapter dispatches by outcome.",
	}, []string{"agent", "outcome"})

	AdapterDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agentbridge_adapter_duration_seconds",
		Help:    "Adapter invocation duration in seconds.",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"agent"})

	ActiveInvocations = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agentbridge_active_invocations",
		Help: "Number of adapter invocations currently running.",
	})

	HeartbeatsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agentbridge_heartbeats_total",
		Help: "Total number of presence heartbeat rounds completed.",
	})
)
