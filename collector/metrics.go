package collector

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/realgrapedrop/xrpl-validator-dashboard-sub000/observability"
)

const (
	metricsNamespace = "xrplmon"
	metricsSubsystem = "collector"
)

var (
	eventsDispatched = observability.CollectorFactory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "stream_events_total",
			Help:      "Stream events dispatched by kind",
		},
		[]string{"kind"},
	)

	handlerFailures = observability.CollectorFactory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "handler_failures_total",
			Help:      "Event handler invocations that panicked or failed",
		},
		[]string{"kind"},
	)

	pollTicks = observability.CollectorFactory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "poll_ticks_total",
			Help:      "Poll loop ticks by loop name and result",
		},
		[]string{"loop", "result"},
	)

	reconnects = observability.CollectorFactory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "reconnect_attempts_total",
			Help:      "Supervisor reconnection attempts by result",
		},
		[]string{"result"},
	)
)
