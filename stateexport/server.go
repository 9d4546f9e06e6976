package stateexport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/realgrapedrop/xrpl-validator-dashboard-sub000/logging"
)

// Metric names served by the exporter. The instant-query endpoint resolves
// exactly these.
const (
	MetricStateValue  = "xrpl_state_value"
	MetricStateFlag   = "xrpl_state"
	MetricUptime      = "xrpl_state_uptime_seconds"
	MetricPeerCount   = "xrpl_state_peers_connected"
	MetricPeersInsane = "xrpl_state_peers_insane"
	MetricInfo        = "xrpl_state_info"
)

// Server is the exporter's HTTP surface: /metrics, /api/v1/query, /health.
type Server struct {
	logger   logging.Logger
	exporter *Exporter
	registry *prometheus.Registry
}

// NewServer builds the HTTP surface over the exporter's snapshot.
func NewServer(logger logging.Logger, exporter *Exporter) *Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(&snapshotCollector{exporter: exporter})
	return &Server{
		logger:   logging.ForComponent(logger, logging.ComponentExporter),
		exporter: exporter,
		registry: registry,
	}
}

// Mux returns the exporter's routes.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/api/v1/query", s.handleQuery)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if s.exporter.Fresh() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("stale\n"))
}

// queryResult mirrors the minimal instant-query response shape the dashboard
// layer consumes: {status, data:{resultType, result:[{metric, value}]}}.
type queryResult struct {
	Status string    `json:"status"`
	Data   queryData `json:"data"`
}

type queryData struct {
	ResultType string        `json:"resultType"`
	Result     []querySeries `json:"result"`
}

type querySeries struct {
	Metric map[string]string `json:"metric"`
	Value  [2]any            `json:"value"`
}

// handleQuery answers instant queries for the snapshot metrics directly,
// skipping the store round trip.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	if query == "" {
		http.Error(w, `missing "query" parameter`, http.StatusBadRequest)
		return
	}

	snap := s.exporter.Current()
	result := queryResult{Status: "success"}
	result.Data.ResultType = "vector"
	result.Data.Result = s.resolve(query, snap)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		s.logger.Warn().Err(err).Msg("failed to encode query response")
	}
}

func (s *Server) resolve(query string, snap Snapshot) []querySeries {
	stateTS := float64(snap.StatePolled.UnixMilli()) / 1000
	peersTS := float64(snap.PeersPolled.UnixMilli()) / 1000

	series := func(name string, labels map[string]string, ts float64, value float64) querySeries {
		metric := map[string]string{"__name__": name}
		for k, v := range labels {
			metric[k] = v
		}
		return querySeries{
			Metric: metric,
			Value:  [2]any{ts, strconv.FormatFloat(value, 'f', -1, 64)},
		}
	}

	switch query {
	case MetricStateValue:
		return []querySeries{series(MetricStateValue, map[string]string{"state": snap.State}, stateTS, float64(snap.StateValue))}
	case MetricStateFlag:
		out := make([]querySeries, 0, len(snap.StateFlags))
		for state, active := range snap.StateFlags {
			value := 0.0
			if active {
				value = 1.0
			}
			out = append(out, series(MetricStateFlag, map[string]string{"state": state}, stateTS, value))
		}
		return out
	case MetricUptime:
		return []querySeries{series(MetricUptime, nil, stateTS, float64(snap.Uptime))}
	case MetricPeerCount:
		return []querySeries{series(MetricPeerCount, nil, peersTS, float64(snap.PeerCount))}
	case MetricPeersInsane:
		return []querySeries{series(MetricPeersInsane, nil, peersTS, float64(snap.PeersInsane))}
	case MetricInfo:
		labels := map[string]string{
			"build_version": snap.BuildVersion,
			"pubkey_node":   snap.PubkeyNode,
		}
		return []querySeries{series(MetricInfo, labels, stateTS, 1)}
	default:
		return []querySeries{}
	}
}

// snapshotCollector exposes the snapshot on the prometheus registry without
// keeping any gauge state of its own: every scrape reads the current values.
type snapshotCollector struct {
	exporter *Exporter
}

var (
	descStateValue = prometheus.NewDesc(MetricStateValue,
		"Numeric server state (0=disconnected .. 6=proposing)", []string{"state"}, nil)
	descStateFlag = prometheus.NewDesc(MetricStateFlag,
		"Per-state boolean vector of the node's server state", []string{"state"}, nil)
	descUptime = prometheus.NewDesc(MetricUptime,
		"Node uptime as of the last state poll", nil, nil)
	descPeerCount = prometheus.NewDesc(MetricPeerCount,
		"Connected peer count as of the last peers poll", nil, nil)
	descPeersInsane = prometheus.NewDesc(MetricPeersInsane,
		"Peers reported insane or unknown as of the last peers poll", nil, nil)
	descInfo = prometheus.NewDesc(MetricInfo,
		"Node identity labels", []string{"build_version", "pubkey_node"}, nil)
)

func (c *snapshotCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- descStateValue
	ch <- descStateFlag
	ch <- descUptime
	ch <- descPeerCount
	ch <- descPeersInsane
	ch <- descInfo
}

func (c *snapshotCollector) Collect(ch chan<- prometheus.Metric) {
	snap := c.exporter.Current()

	ch <- prometheus.MustNewConstMetric(descStateValue, prometheus.GaugeValue, float64(snap.StateValue), snap.State)
	for state, active := range snap.StateFlags {
		value := 0.0
		if active {
			value = 1.0
		}
		ch <- prometheus.MustNewConstMetric(descStateFlag, prometheus.GaugeValue, value, state)
	}
	ch <- prometheus.MustNewConstMetric(descUptime, prometheus.GaugeValue, float64(snap.Uptime))
	ch <- prometheus.MustNewConstMetric(descPeerCount, prometheus.GaugeValue, float64(snap.PeerCount))
	ch <- prometheus.MustNewConstMetric(descPeersInsane, prometheus.GaugeValue, float64(snap.PeersInsane))
	ch <- prometheus.MustNewConstMetric(descInfo, prometheus.GaugeValue, 1, snap.BuildVersion, snap.PubkeyNode)
}

// Run serves the exporter surface until the context ends.
func (s *Server) Run(ctx context.Context, addr string) error {
	httpServer := &http.Server{Addr: addr, Handler: s.Mux()}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		_ = httpServer.Close()
		return nil
	case err := <-errCh:
		return fmt.Errorf("exporter server: %w", err)
	}
}
