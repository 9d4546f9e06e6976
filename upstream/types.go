package upstream

// ServerInfo is the subset of the server_info result the collector consumes.
type ServerInfo struct {
	BuildVersion    string  `json:"build_version"`
	CompleteLedgers string  `json:"complete_ledgers"`
	PubkeyNode      string  `json:"pubkey_node"`
	ServerState     string  `json:"server_state"`
	Peers           int64   `json:"peers"`
	Uptime          int64   `json:"uptime"`
	IOLatencyMS     int64   `json:"io_latency_ms"`
	LoadFactor      float64 `json:"load_factor"`
	ValidatedLedger struct {
		Age int64  `json:"age"`
		Seq uint32 `json:"seq"`
	} `json:"validated_ledger"`
}

// serverInfoResult wraps the info object inside the server_info result.
type serverInfoResult struct {
	Info ServerInfo `json:"info"`
}

// Peer is one entry of the peers command result. Sanity is empty for healthy
// peers; rippled only reports it when a peer looks insane or unknown.
type Peer struct {
	Address string `json:"address"`
	Latency int64  `json:"latency"`
	Sanity  string `json:"sanity"`
	Version string `json:"version"`
	Inbound bool   `json:"inbound"`
}

type peersResult struct {
	Peers []Peer `json:"peers"`
}

// ServerStateValue maps a rippled server_state string onto the numeric scale
// used by dashboards. Higher is healthier; proposing is the operating state
// for a validator.
func ServerStateValue(state string) int64 {
	switch state {
	case "disconnected":
		return 0
	case "connected":
		return 1
	case "syncing":
		return 2
	case "tracking":
		return 3
	case "full":
		return 4
	case "validating":
		return 5
	case "proposing":
		return 6
	default:
		return -1
	}
}

// ServerStates lists the known server_state values in ascending order, used
// for the per-state boolean vector in the state exporter.
var ServerStates = []string{
	"disconnected", "connected", "syncing", "tracking", "full", "validating", "proposing",
}
