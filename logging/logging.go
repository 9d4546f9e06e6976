// Package logging provides structured logging for all collector components.
//
// Every component receives a zerolog logger tagged with its component name so
// that operators can filter the combined output of the listen loop, the poll
// scheduler, the reconciliation engine, and the state exporter.
package logging

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the logger type used throughout the collector.
type Logger = zerolog.Logger

// Shared structured field names. Using constants keeps the field vocabulary
// consistent across packages so dashboards can rely on it.
const (
	FieldComponent   = "component"
	FieldLedgerIndex = "ledger_index"
	FieldLedgerHash  = "ledger_hash"
	FieldStream      = "stream"
	FieldEventType   = "event_type"
	FieldOutcome     = "outcome"
	FieldAttempt     = "attempt"
	FieldEndpoint    = "endpoint"
)

// Component names used with ForComponent.
const (
	ComponentUpstream   = "upstream_client"
	ComponentHeartbeat  = "heartbeat"
	ComponentDispatcher = "dispatcher"
	ComponentPoller     = "poll_scheduler"
	ComponentReconcile  = "reconcile_engine"
	ComponentSupervisor = "supervisor"
	ComponentSink       = "metrics_sink"
	ComponentRecovery   = "recovery"
	ComponentExporter   = "state_exporter"
)

// Config controls logger construction.
type Config struct {
	// Level is one of: trace, debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is "json" (default) or "console" for human-readable output.
	Format string `yaml:"format"`
}

// DefaultConfig returns the configuration used when none is provided.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "json"}
}

// NewLoggerFromConfig builds the process root logger.
func NewLoggerFromConfig(cfg Config) (Logger, error) {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	var logger Logger
	switch cfg.Format {
	case "console":
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	case "", "json":
		logger = zerolog.New(os.Stderr)
	default:
		return zerolog.Nop(), fmt.Errorf("invalid log format %q (want json or console)", cfg.Format)
	}

	return logger.Level(level).With().Timestamp().Logger(), nil
}

// ForComponent returns a child logger tagged with the component name.
func ForComponent(logger Logger, component string) Logger {
	return logger.With().Str(FieldComponent, component).Logger()
}
