package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/alitto/pond/v2"

	"github.com/realgrapedrop/xrpl-validator-dashboard-sub000/logging"
)

// StoreReader reads last-known series values from the remote store.
type StoreReader interface {
	QueryLast(ctx context.Context, expr string) (float64, bool, error)
}

// UptimeSource reports the upstream node's current uptime in seconds.
type UptimeSource interface {
	Uptime(ctx context.Context) (int64, error)
}

// RecoveryConfig parameterizes restart recovery.
type RecoveryConfig struct {
	// UptimeMetric is the store series carrying the node's uptime samples,
	// written by the fast poll loop.
	UptimeMetric string

	// Timeout bounds the whole recovery phase.
	Timeout time.Duration
}

// RecoverState restores the engine's counters after a collector restart.
//
// Two independent questions are answered: what were our counters when we last
// wrote to the store, and did the upstream node itself restart since then.
// The windowed counters always resume from the stored values. The raw
// validation counter resumes only if the node kept running; a node restart
// (current uptime below the stored uptime sample) resets it to zero, because
// the node's own event stream restarted from scratch.
//
// Recovery is best effort: an unreachable store logs a warning and the
// engine starts from zero rather than refusing to run.
func RecoverState(
	ctx context.Context,
	logger logging.Logger,
	store StoreReader,
	node UptimeSource,
	engine *Engine,
	config RecoveryConfig,
) {
	logger = logging.ForComponent(logger, logging.ComponentRecovery)
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, config.Timeout)
	defer cancel()

	var (
		mu        sync.Mutex
		recovered = map[string]float64{}
	)

	queries := []string{
		MetricAgreements1h,
		MetricMissed1h,
		MetricAgreements24h,
		MetricMissed24h,
		MetricValidationsTotal,
		config.UptimeMetric,
	}

	pool := pond.NewPool(3)
	for _, expr := range queries {
		pool.Submit(func() {
			value, found, err := store.QueryLast(ctx, expr)
			if err != nil {
				logger.Warn().Err(err).Str("query", expr).Msg("counter recovery query failed")
				return
			}
			if !found {
				return
			}
			mu.Lock()
			recovered[expr] = value
			mu.Unlock()
		})
	}
	pool.StopAndWait()

	counts := WindowCounts{
		Agreements1h:  int(recovered[MetricAgreements1h]),
		Missed1h:      int(recovered[MetricMissed1h]),
		Agreements24h: int(recovered[MetricAgreements24h]),
		Missed24h:     int(recovered[MetricMissed24h]),
	}

	validationsSeen := int64(recovered[MetricValidationsTotal])
	storedUptime, hadUptime := recovered[config.UptimeMetric]

	upstreamRestarted := false
	currentUptime, err := node.Uptime(ctx)
	switch {
	case err != nil:
		logger.Warn().Err(err).Msg("could not read current node uptime, resuming counters as-is")
	case hadUptime && float64(currentUptime) < storedUptime:
		upstreamRestarted = true
	}

	if upstreamRestarted {
		logger.Info().
			Int64("current_uptime", currentUptime).
			Float64("stored_uptime", storedUptime).
			Msg("upstream node restarted, resetting raw validation counter")
		validationsSeen = 0
	}

	engine.SeedRecovered(counts, validationsSeen)
	logger.Info().
		Int("agreements_1h", counts.Agreements1h).
		Int("missed_1h", counts.Missed1h).
		Int("agreements_24h", counts.Agreements24h).
		Int("missed_24h", counts.Missed24h).
		Int64("validations_seen", validationsSeen).
		Bool("upstream_restarted", upstreamRestarted).
		Msg("counter recovery complete")
}
