// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry = prometheus.NewRegistry()

	RunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "opsmind",
		Name:      "runs_total",
		Help:      "Completed graph runs by terminal status.",
	}, []string{"status"})

	NodeTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "opsmind",
		Name:      "node_transitions_total",
		Help:      "Graph node executions by node id.",
	}, []string{"node"})

	AdapterCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "opsmind",
		Name:      "adapter_calls_total",
		Help:      "Tool adapter calls by backend and result source.",
	}, []string{"backend", "source"})

	AdapterDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "opsmind",
		Name:      "adapter_call_seconds",
		Help:      "Tool adapter call latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"backend"})
)

func init() {
	registry.MustRegister(RunsTotal, NodeTransitions, AdapterCalls, AdapterDuration)
}

// Handler serves the registry for GET /metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
