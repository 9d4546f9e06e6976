package collector

import (
	"context"
	"time"

	goversion "github.com/hashicorp/go-version"

	"github.com/realgrapedrop/xrpl-validator-dashboard-sub000/logging"
	"github.com/realgrapedrop/xrpl-validator-dashboard-sub000/reconcile"
	"github.com/realgrapedrop/xrpl-validator-dashboard-sub000/retry"
	"github.com/realgrapedrop/xrpl-validator-dashboard-sub000/sink"
	"github.com/realgrapedrop/xrpl-validator-dashboard-sub000/upstream"
)

// Names of the series derived from the polled commands.
const (
	MetricServerUptime       = "xrpl_server_uptime_seconds"
	MetricPeersConnected     = "xrpl_peers_connected"
	MetricValidatedLedgerAge = "xrpl_validated_ledger_age_seconds"
	MetricValidatedLedgerSeq = "xrpl_validated_ledger_seq"
	MetricIOLatency          = "xrpl_io_latency_ms"
	MetricPeersInbound       = "xrpl_peers_inbound"
	MetricPeersOutbound      = "xrpl_peers_outbound"
	MetricPeersInsane        = "xrpl_peers_insane"
	MetricPeerLatencyAvg     = "xrpl_peer_latency_ms_avg"
	MetricNodeCount          = "xrpl_node_count"
	MetricDBSizeKB           = "xrpl_db_size_kb"
)

// Poll cadences: fast for live server metrics, medium for peer topology, slow
// for accounting/state-size counters.
const (
	fastPollInterval   = 5 * time.Second
	mediumPollInterval = 60 * time.Second
	slowPollInterval   = 5 * time.Minute
)

// nodeRPC is the polled-command surface, satisfied by *upstream.Client.
type nodeRPC interface {
	ServerInfo(ctx context.Context) (*upstream.ServerInfo, error)
	Peers(ctx context.Context) ([]upstream.Peer, error)
	Counts(ctx context.Context) (map[string]float64, error)
}

// pollHandlers converts polled command responses into metric samples.
type pollHandlers struct {
	logger logging.Logger
	client nodeRPC
	sink   reconcile.SampleWriter
	now    func() time.Time

	// minVersion gates a one-time warning when the node's build version is
	// below what the collector expects. Touched only from the fast loop.
	minVersion    *goversion.Version
	versionWarned bool
}

func newPollHandlers(
	logger logging.Logger,
	client nodeRPC,
	sampleSink reconcile.SampleWriter,
	minVersion *goversion.Version,
) *pollHandlers {
	return &pollHandlers{
		logger:     logging.ForComponent(logger, logging.ComponentPoller),
		client:     client,
		sink:       sampleSink,
		now:        time.Now,
		minVersion: minVersion,
	}
}

// loops builds the three poll loops with their cadences and retry policies.
func (h *pollHandlers) loops() []PollLoop {
	policy := retry.Policy{Attempts: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second}
	return []PollLoop{
		{Name: "server_info", Interval: fastPollInterval, Policy: policy, Tick: h.serverInfoTick},
		{Name: "peers", Interval: mediumPollInterval, Policy: policy, Tick: h.peersTick},
		{Name: "get_counts", Interval: slowPollInterval, Policy: policy, Tick: h.countsTick},
	}
}

func (h *pollHandlers) serverInfoTick(ctx context.Context) error {
	info, err := h.client.ServerInfo(ctx)
	if err != nil {
		return err
	}

	h.checkBuildVersion(info.BuildVersion)

	now := h.now()
	h.sink.Write(
		sink.Sample{Name: MetricServerUptime, Value: float64(info.Uptime), At: now},
		sink.Sample{Name: MetricPeersConnected, Value: float64(info.Peers), At: now},
		sink.Sample{Name: MetricServerStateValue, Value: float64(upstream.ServerStateValue(info.ServerState)), At: now},
		sink.Sample{Name: MetricLoadFactor, Value: info.LoadFactor, At: now},
		sink.Sample{Name: MetricValidatedLedgerAge, Value: float64(info.ValidatedLedger.Age), At: now},
		sink.Sample{Name: MetricValidatedLedgerSeq, Value: float64(info.ValidatedLedger.Seq), At: now},
		sink.Sample{Name: MetricIOLatency, Value: float64(info.IOLatencyMS), At: now},
	)
	return nil
}

func (h *pollHandlers) peersTick(ctx context.Context) error {
	peers, err := h.client.Peers(ctx)
	if err != nil {
		return err
	}

	var inbound, outbound, insane int
	var latencySum, latencyCount int64
	for _, peer := range peers {
		if peer.Inbound {
			inbound++
		} else {
			outbound++
		}
		if peer.Sanity != "" && peer.Sanity != "sane" {
			insane++
		}
		if peer.Latency > 0 {
			latencySum += peer.Latency
			latencyCount++
		}
	}

	now := h.now()
	samples := []sink.Sample{
		{Name: MetricPeersConnected, Value: float64(len(peers)), At: now},
		{Name: MetricPeersInbound, Value: float64(inbound), At: now},
		{Name: MetricPeersOutbound, Value: float64(outbound), At: now},
		{Name: MetricPeersInsane, Value: float64(insane), At: now},
	}
	if latencyCount > 0 {
		samples = append(samples, sink.Sample{
			Name:  MetricPeerLatencyAvg,
			Value: float64(latencySum) / float64(latencyCount),
			At:    now,
		})
	}
	h.sink.Write(samples...)
	return nil
}

// countsTick converts the get_counts node-object counters into labeled
// samples, with the DB size pulled out under its own name.
func (h *pollHandlers) countsTick(ctx context.Context) error {
	counts, err := h.client.Counts(ctx)
	if err != nil {
		return err
	}

	now := h.now()
	samples := make([]sink.Sample, 0, len(counts))
	for name, value := range counts {
		if name == "dbKBTotal" {
			samples = append(samples, sink.Sample{Name: MetricDBSizeKB, Value: value, At: now})
			continue
		}
		samples = append(samples, sink.Sample{
			Name:   MetricNodeCount,
			Labels: map[string]string{"counter": name},
			Value:  value,
			At:     now,
		})
	}
	h.sink.Write(samples...)
	return nil
}

func (h *pollHandlers) checkBuildVersion(buildVersion string) {
	if h.minVersion == nil || h.versionWarned || buildVersion == "" {
		return
	}
	current, err := goversion.NewVersion(buildVersion)
	if err != nil {
		h.logger.Debug().Str("build_version", buildVersion).Msg("unparseable build version")
		h.versionWarned = true
		return
	}
	if current.LessThan(h.minVersion) {
		h.logger.Warn().
			Str("build_version", buildVersion).
			Str("min_version", h.minVersion.String()).
			Msg("node build version is below the supported minimum")
	}
	h.versionWarned = true
}
