package reconcile

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/realgrapedrop/xrpl-validator-dashboard-sub000/observability"
)

const (
	metricsNamespace = "xrplmon"
	metricsSubsystem = "reconcile"
)

var (
	ledgersFinalized = observability.ReconcileFactory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "ledgers_finalized_total",
			Help:      "Ledgers finalized by outcome",
		},
		[]string{"outcome"},
	)

	lateRepairs = observability.ReconcileFactory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "late_repairs_total",
			Help:      "Finalized outcomes corrected by a late validation, by new outcome",
		},
		[]string{"outcome"},
	)

	pendingRecords = observability.ReconcileFactory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "pending_records",
			Help:      "Ledger records currently held by the engine (pending plus retained)",
		},
	)

	consensusAnomalies = observability.ReconcileFactory.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "consensus_anomalies_total",
			Help:      "Records whose consensus hash never arrived within several grace periods",
		},
	)
)
