// Package cmd wires the CLI for the collector and the state exporter.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/realgrapedrop/xrpl-validator-dashboard-sub000/config"
	"github.com/realgrapedrop/xrpl-validator-dashboard-sub000/logging"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:          "xrpl-validator-dashboard",
	Short:        "Republishes an XRPL validator's health as time-series metrics",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	rootCmd.AddCommand(collectorCmd)
	rootCmd.AddCommand(stateExporterCmd)
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads configuration and builds the root logger; both are fatal on
// error, the one error class the process refuses to recover from.
func setup() (*config.Config, logging.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, logging.Logger{}, fmt.Errorf("configuration error: %w", err)
	}
	logger, err := logging.NewLoggerFromConfig(cfg.Logging)
	if err != nil {
		return nil, logging.Logger{}, fmt.Errorf("configuration error: %w", err)
	}
	return cfg, logger, nil
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
