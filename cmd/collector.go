package cmd

import (
	"github.com/spf13/cobra"

	"github.com/realgrapedrop/xrpl-validator-dashboard-sub000/collector"
)

var collectorCmd = &cobra.Command{
	Use:   "collector",
	Short: "Run the stream collector and reconciliation engine",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		c, err := collector.New(logger, cfg)
		if err != nil {
			return err
		}

		logger.Info().
			Str("node_ws", cfg.NodeWebsocketURL).
			Str("node_rpc", cfg.NodeRPCURL).
			Str("store", cfg.StoreWriteURL).
			Msg("starting collector")
		return c.Run(ctx)
	},
}
