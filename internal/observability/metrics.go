// Package observability wires Prometheus metrics and OpenTelemetry
// tracing for the runtime.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TurnsTotal counts agent turns by agent name and outcome.
	TurnsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "conductor",
		Name:      "turns_total",
		Help:      "Agent turns processed, labeled by agent and outcome.",
	}, []string{"agent", "status"})

	// ToolExecutionsTotal counts tool executions by tool and outcome.
	ToolExecutionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "conductor",
		Name:      "tool_executions_total",
		Help:      "Tool executions, labeled by tool and outcome.",
	}, []string{"tool", "status"})

	// StreamChunksTotal counts streamed chunks delivered to clients.
	StreamChunksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "conductor",
		Name:      "stream_chunks_total",
		Help:      "Stream chunks delivered to clients.",
	})

	// ActiveConnections tracks currently registered client connections.
	ActiveConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "conductor",
		Name:      "active_connections",
		Help:      "Currently registered client connections.",
	})

	// TurnDuration observes end-to-end turn latency per agent.
	TurnDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "conductor",
		Name:      "turn_duration_seconds",
		Help:      "End-to-end agent turn latency.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
	}, []string{"agent"})
)

func init() {
	prometheus.MustRegister(
		TurnsTotal,
		ToolExecutionsTotal,
		StreamChunksTotal,
		ActiveConnections,
		TurnDuration,
	)
}

// MetricsHandler serves the Prometheus scrape endpoint.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
