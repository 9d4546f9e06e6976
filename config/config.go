// Package config loads and validates the flat collector configuration.
package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/realgrapedrop/xrpl-validator-dashboard-sub000/logging"
)

// Config is the flat configuration object shared by the collector and the
// state exporter. Values come from a YAML file with environment-variable
// fallbacks for the endpoints and the validator key.
type Config struct {
	// NodeWebsocketURL is the rippled admin websocket endpoint used for the
	// event stream and heartbeat probes (e.g. ws://localhost:6006).
	NodeWebsocketURL string `yaml:"node_websocket_url"`

	// NodeRPCURL is the rippled JSON-RPC HTTP endpoint used by the poll
	// scheduler and the state exporter (e.g. http://localhost:5005).
	NodeRPCURL string `yaml:"node_rpc_url"`

	// StoreWriteURL is the remote store's exposition-format import endpoint.
	StoreWriteURL string `yaml:"store_write_url"`

	// StoreQueryURL is the remote store's instant-query endpoint, used only
	// for counter recovery at startup.
	StoreQueryURL string `yaml:"store_query_url"`

	// ValidatorPubKey is this operator's validation public key. Validation
	// stream events carrying this key are treated as local validations.
	ValidatorPubKey string `yaml:"validator_public_key"`

	// MinServerVersion, when set, is the lowest rippled build version the
	// collector expects; older versions produce a startup warning.
	MinServerVersion string `yaml:"min_server_version"`

	// ListenAddr serves the collector's /health and /metrics endpoints.
	ListenAddr string `yaml:"listen_addr"`

	// ExporterListenAddr serves the state exporter's HTTP surface.
	ExporterListenAddr string `yaml:"exporter_listen_addr"`

	Logging logging.Config `yaml:"logging"`

	// Reconciliation timing. Zero values take the defaults below.
	GracePeriod     time.Duration `yaml:"grace_period"`
	RepairWindow    time.Duration `yaml:"repair_window"`
	RetentionWindow time.Duration `yaml:"retention_window"`

	// Supervisor bounds.
	MaxReconnectAttempts int `yaml:"max_reconnect_attempts"`
}

const (
	DefaultGracePeriod          = 8 * time.Second
	DefaultRepairWindow         = 5 * time.Minute
	DefaultRetentionWindow      = 10 * time.Minute
	DefaultMaxReconnectAttempts = 10
	DefaultListenAddr           = ":9180"
	DefaultExporterListenAddr   = ":9181"
)

// Load reads the YAML file at path, applies environment fallbacks and
// defaults, and validates the result. A missing path loads from environment
// and defaults alone.
func Load(path string) (*Config, error) {
	cfg := &Config{Logging: logging.DefaultConfig()}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	envOverride(&cfg.NodeWebsocketURL, "XRPL_NODE_WS_URL")
	envOverride(&cfg.NodeRPCURL, "XRPL_NODE_RPC_URL")
	envOverride(&cfg.StoreWriteURL, "XRPL_STORE_WRITE_URL")
	envOverride(&cfg.StoreQueryURL, "XRPL_STORE_QUERY_URL")
	envOverride(&cfg.ValidatorPubKey, "XRPL_VALIDATOR_PUBKEY")
}

func envOverride(dst *string, key string) {
	if *dst == "" {
		*dst = os.Getenv(key)
	}
}

func applyDefaults(cfg *Config) {
	if cfg.GracePeriod == 0 {
		cfg.GracePeriod = DefaultGracePeriod
	}
	if cfg.RepairWindow == 0 {
		cfg.RepairWindow = DefaultRepairWindow
	}
	if cfg.RetentionWindow == 0 {
		cfg.RetentionWindow = DefaultRetentionWindow
	}
	if cfg.MaxReconnectAttempts == 0 {
		cfg.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
	}
	if cfg.ExporterListenAddr == "" {
		cfg.ExporterListenAddr = DefaultExporterListenAddr
	}
}

// Validate checks the required endpoints and key. Configuration errors are
// fatal at startup: these are the only errors the collector refuses to
// recover from.
func (c *Config) Validate() error {
	if err := requireURL(c.NodeWebsocketURL, "node_websocket_url", "ws", "wss"); err != nil {
		return err
	}
	if err := requireURL(c.NodeRPCURL, "node_rpc_url", "http", "https"); err != nil {
		return err
	}
	if err := requireURL(c.StoreWriteURL, "store_write_url", "http", "https"); err != nil {
		return err
	}
	if err := requireURL(c.StoreQueryURL, "store_query_url", "http", "https"); err != nil {
		return err
	}
	if c.ValidatorPubKey == "" {
		return fmt.Errorf("validator_public_key is required (set XRPL_VALIDATOR_PUBKEY or the config file)")
	}
	return nil
}

func requireURL(raw, name string, schemes ...string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", name)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: invalid URL %q: %w", name, raw, err)
	}
	for _, scheme := range schemes {
		if parsed.Scheme == scheme {
			return nil
		}
	}
	return fmt.Errorf("%s: unsupported scheme %q in %q (want one of %v)", name, parsed.Scheme, raw, schemes)
}
