package cmd

import (
	"context"
	"time"

	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"

	"github.com/realgrapedrop/xrpl-validator-dashboard-sub000/retry"
	"github.com/realgrapedrop/xrpl-validator-dashboard-sub000/stateexport"
	"github.com/realgrapedrop/xrpl-validator-dashboard-sub000/upstream"
)

var stateExporterCmd = &cobra.Command{
	Use:   "state-exporter",
	Short: "Run the realtime state exporter serving dashboards directly",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		client := upstream.NewClient(logger, upstream.ClientConfig{
			WebsocketURL:   cfg.NodeWebsocketURL,
			RPCURL:         cfg.NodeRPCURL,
			RequestTimeout: 3 * time.Second,
			RetryPolicy:    retry.Policy{Attempts: 1},
		})

		exporter := stateexport.New(logger, client, stateexport.Config{})
		server := stateexport.NewServer(logger, exporter)

		logger.Info().
			Str("node_rpc", cfg.NodeRPCURL).
			Str("listen", cfg.ExporterListenAddr).
			Msg("starting state exporter")

		p := pool.New().WithContext(ctx).WithCancelOnError()
		p.Go(func(ctx context.Context) error {
			exporter.Run(ctx)
			return nil
		})
		p.Go(func(ctx context.Context) error {
			return server.Run(ctx, cfg.ExporterListenAddr)
		})
		return p.Wait()
	},
}
