// Package stateexport implements the realtime state exporter: a separate
// process that polls the node on a short cycle and answers "what is the state
// right now" directly to the dashboard layer, bypassing the remote store's
// ingestion and query latency entirely.
package stateexport

import (
	"context"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/realgrapedrop/xrpl-validator-dashboard-sub000/logging"
	"github.com/realgrapedrop/xrpl-validator-dashboard-sub000/upstream"
)

// Snapshot is the latest polled node state. It is replaced wholesale on each
// poll cycle and read concurrently by the query API; never partially updated.
type Snapshot struct {
	// State is the raw server_state string; StateValue its numeric mapping.
	State      string
	StateValue int64

	// StateFlags is the per-state boolean vector (exactly one true when the
	// state is a known one).
	StateFlags map[string]bool

	Uptime       int64
	BuildVersion string
	PubkeyNode   string
	StatePolled  time.Time

	PeerCount   int64
	PeersInsane int64
	PeersPolled time.Time
}

// Config holds the exporter's poll cadences.
type Config struct {
	StateInterval time.Duration
	PeersInterval time.Duration

	// Staleness bounds how old the state poll may be before /health reports
	// the exporter itself unhealthy.
	Staleness time.Duration
}

// NodeClient is the polled surface the exporter needs, satisfied by
// *upstream.Client.
type NodeClient interface {
	ServerInfo(ctx context.Context) (*upstream.ServerInfo, error)
	Peers(ctx context.Context) ([]upstream.Peer, error)
}

// Exporter runs the two poll loops and owns the shared snapshot.
type Exporter struct {
	logger logging.Logger
	client NodeClient
	config Config

	mu       sync.RWMutex
	snapshot Snapshot

	now func() time.Time
}

// New builds an exporter over the given upstream client.
func New(logger logging.Logger, client NodeClient, config Config) *Exporter {
	if config.StateInterval == 0 {
		config.StateInterval = time.Second
	}
	if config.PeersInterval == 0 {
		config.PeersInterval = 5 * time.Second
	}
	if config.Staleness == 0 {
		config.Staleness = 10 * time.Second
	}
	return &Exporter{
		logger: logging.ForComponent(logger, logging.ComponentExporter),
		client: client,
		config: config,
		now:    time.Now,
	}
}

// Run polls until the context ends. The two loops are independent: a slow
// peers poll never delays the state poll.
func (e *Exporter) Run(ctx context.Context) {
	p := pool.New().WithContext(ctx)
	p.Go(func(ctx context.Context) error {
		e.pollLoop(ctx, e.config.StateInterval, e.pollState)
		return nil
	})
	p.Go(func(ctx context.Context) error {
		e.pollLoop(ctx, e.config.PeersInterval, e.pollPeers)
		return nil
	})
	_ = p.Wait()
}

func (e *Exporter) pollLoop(ctx context.Context, interval time.Duration, tick func(ctx context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick(ctx)
		}
	}
}

func (e *Exporter) pollState(ctx context.Context) {
	info, err := e.client.ServerInfo(ctx)
	if err != nil {
		e.logger.Warn().Err(err).Msg("state poll failed")
		return
	}

	flags := make(map[string]bool, len(upstream.ServerStates))
	for _, state := range upstream.ServerStates {
		flags[state] = state == info.ServerState
	}

	e.mu.Lock()
	e.snapshot.State = info.ServerState
	e.snapshot.StateValue = upstream.ServerStateValue(info.ServerState)
	e.snapshot.StateFlags = flags
	e.snapshot.Uptime = info.Uptime
	e.snapshot.BuildVersion = info.BuildVersion
	e.snapshot.PubkeyNode = info.PubkeyNode
	e.snapshot.StatePolled = e.now()
	e.mu.Unlock()
}

func (e *Exporter) pollPeers(ctx context.Context) {
	peers, err := e.client.Peers(ctx)
	if err != nil {
		e.logger.Warn().Err(err).Msg("peers poll failed")
		return
	}

	var insane int64
	for _, peer := range peers {
		if peer.Sanity != "" && peer.Sanity != "sane" {
			insane++
		}
	}

	e.mu.Lock()
	e.snapshot.PeerCount = int64(len(peers))
	e.snapshot.PeersInsane = insane
	e.snapshot.PeersPolled = e.now()
	e.mu.Unlock()
}

// Current returns a copy of the latest snapshot.
func (e *Exporter) Current() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	snap := e.snapshot
	if snap.StateFlags != nil {
		flags := make(map[string]bool, len(snap.StateFlags))
		for k, v := range snap.StateFlags {
			flags[k] = v
		}
		snap.StateFlags = flags
	}
	return snap
}

// Fresh reports whether the state poll has succeeded recently enough for the
// exporter to call itself healthy.
func (e *Exporter) Fresh() bool {
	e.mu.RLock()
	polled := e.snapshot.StatePolled
	e.mu.RUnlock()
	if polled.IsZero() {
		return false
	}
	return e.now().Sub(polled) <= e.config.Staleness
}
