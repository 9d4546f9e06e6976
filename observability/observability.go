// Package observability owns the process-local prometheus registry.
//
// These metrics describe the collector itself (events dispatched, flush
// failures, reconnect attempts) and are scraped from the local /metrics
// endpoint. The validator time-series pushed to the remote store go through
// the sink package instead.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the process-wide registry all factories register into.
var Registry = prometheus.NewRegistry()

// Per-subsystem factories. Each package declares its metrics through the
// factory for its area so registration happens at init time and duplicate
// registration panics surface immediately.
var (
	CollectorFactory = promauto.With(Registry)
	ReconcileFactory = promauto.With(Registry)
	SinkFactory      = promauto.With(Registry)
	ExporterFactory  = promauto.With(Registry)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// MetricsHandler returns the HTTP handler serving the local registry.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
