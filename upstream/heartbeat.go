package upstream

import (
	"context"
	"time"

	"github.com/realgrapedrop/xrpl-validator-dashboard-sub000/health"
	"github.com/realgrapedrop/xrpl-validator-dashboard-sub000/logging"
)

// Pinger is the transport surface the heartbeat monitor needs: a liveness
// probe and the ability to tear the connection down when probes keep failing.
type Pinger interface {
	Ping(ctx context.Context) error
	ForceClose()
}

// HeartbeatConfig controls probe cadence and escalation.
type HeartbeatConfig struct {
	// Interval between probes.
	Interval time.Duration

	// ProbeTimeout bounds one probe; it must be shorter than Interval.
	ProbeTimeout time.Duration

	// FailureThreshold is the consecutive failure count that forces a
	// connection teardown.
	FailureThreshold int32
}

// DefaultHeartbeatConfig returns the standard 30s/10s/3 probe settings.
func DefaultHeartbeatConfig() HeartbeatConfig {
	return HeartbeatConfig{
		Interval:         30 * time.Second,
		ProbeTimeout:     10 * time.Second,
		FailureThreshold: 3,
	}
}

// HeartbeatMonitor detects a silently hung stream connection: a socket that
// delivers no messages and raises no errors. After FailureThreshold
// consecutive probe failures it force-closes the transport and marks the
// connection unhealthy, which unblocks the listen loop.
type HeartbeatMonitor struct {
	logger logging.Logger
	pinger Pinger
	health *health.ConnectionHealth
	config HeartbeatConfig
}

// NewHeartbeatMonitor builds a monitor; Run starts probing.
func NewHeartbeatMonitor(
	logger logging.Logger,
	pinger Pinger,
	connHealth *health.ConnectionHealth,
	config HeartbeatConfig,
) *HeartbeatMonitor {
	if config.Interval == 0 {
		config = DefaultHeartbeatConfig()
	}
	return &HeartbeatMonitor{
		logger: logging.ForComponent(logger, logging.ComponentHeartbeat),
		pinger: pinger,
		health: connHealth,
		config: config,
	}
}

// Run probes until the context ends.
func (m *HeartbeatMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	m.logger.Info().
		Dur("interval", m.config.Interval).
		Dur("probe_timeout", m.config.ProbeTimeout).
		Msg("heartbeat monitor started")

	for {
		select {
		case <-ctx.Done():
			m.logger.Info().Msg("heartbeat monitor stopped")
			return
		case <-ticker.C:
			if !m.health.Connected() {
				// Nothing to probe while the supervisor is reconnecting.
				continue
			}
			m.Probe(ctx)
		}
	}
}

// Probe runs a single liveness check and applies the escalation rules. It is
// exported so tests can drive the state machine without the ticker.
func (m *HeartbeatMonitor) Probe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, m.config.ProbeTimeout)
	err := m.pinger.Ping(probeCtx)
	cancel()

	if err == nil {
		m.health.ResetHeartbeatFailures()
		return
	}

	failures := m.health.RecordHeartbeatFailure()
	m.logger.Warn().
		Err(err).
		Int32("consecutive_failures", failures).
		Msg("heartbeat probe failed")

	if failures >= m.config.FailureThreshold {
		m.logger.Error().
			Int32("consecutive_failures", failures).
			Msg("heartbeat threshold exceeded, forcing connection close")
		m.pinger.ForceClose()
		m.health.SetConnected(false)
	}
}
