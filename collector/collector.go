// Package collector hosts the main validator-monitoring process: the listen
// loop over the node's event streams, the heartbeat monitor, the poll
// scheduler, the reconciliation engine, and the supervisor that ties their
// lifetimes together.
package collector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	goversion "github.com/hashicorp/go-version"
	"github.com/sourcegraph/conc/pool"

	"github.com/realgrapedrop/xrpl-validator-dashboard-sub000/config"
	"github.com/realgrapedrop/xrpl-validator-dashboard-sub000/health"
	"github.com/realgrapedrop/xrpl-validator-dashboard-sub000/logging"
	"github.com/realgrapedrop/xrpl-validator-dashboard-sub000/observability"
	"github.com/realgrapedrop/xrpl-validator-dashboard-sub000/reconcile"
	"github.com/realgrapedrop/xrpl-validator-dashboard-sub000/retry"
	"github.com/realgrapedrop/xrpl-validator-dashboard-sub000/sink"
	"github.com/realgrapedrop/xrpl-validator-dashboard-sub000/upstream"
)

// Collector is the explicitly constructed context object holding every
// component of the monitoring process. Lifecycle: New, Run, then context
// cancellation shuts everything down.
type Collector struct {
	logger logging.Logger
	cfg    *config.Config

	client     *upstream.Client
	sink       *sink.Sink
	query      *sink.QueryClient
	engine     *reconcile.Engine
	dispatcher *Dispatcher
	scheduler  *Scheduler
	heartbeat  *upstream.HeartbeatMonitor
	supervisor *Supervisor
	health     *health.ConnectionHealth
}

// New wires the collector from configuration. Configuration problems are the
// caller's to treat as fatal.
func New(logger logging.Logger, cfg *config.Config) (*Collector, error) {
	var minVersion *goversion.Version
	if cfg.MinServerVersion != "" {
		parsed, err := goversion.NewVersion(cfg.MinServerVersion)
		if err != nil {
			return nil, fmt.Errorf("min_server_version %q: %w", cfg.MinServerVersion, err)
		}
		minVersion = parsed
	}

	hostname, _ := os.Hostname()

	connHealth := health.NewConnectionHealth()

	client := upstream.NewClient(logger, upstream.ClientConfig{
		WebsocketURL: cfg.NodeWebsocketURL,
		RPCURL:       cfg.NodeRPCURL,
		RetryPolicy:  retry.Policy{Attempts: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second},
	})

	sampleSink := sink.New(logger, sink.Config{
		WriteURL:      cfg.StoreWriteURL,
		DefaultLabels: map[string]string{"instance": hostname},
	})

	engine := reconcile.NewEngine(logger, reconcile.Config{
		GracePeriod:     cfg.GracePeriod,
		RepairWindow:    cfg.RepairWindow,
		RetentionWindow: cfg.RetentionWindow,
	}, sampleSink)

	dispatcher := NewDispatcher(logger, engine, sampleSink, connHealth, cfg.ValidatorPubKey)

	handlers := newPollHandlers(logger, client, sampleSink, minVersion)
	scheduler := NewScheduler(logger, handlers.loops()...)

	heartbeat := upstream.NewHeartbeatMonitor(logger, client, connHealth, upstream.DefaultHeartbeatConfig())

	supervisor := NewSupervisor(logger, client, connHealth, dispatcher, SupervisorConfig{
		MaxAttempts: cfg.MaxReconnectAttempts,
	})

	return &Collector{
		logger:     logger,
		cfg:        cfg,
		client:     client,
		sink:       sampleSink,
		query:      sink.NewQueryClient(logger, cfg.StoreQueryURL, 0),
		engine:     engine,
		dispatcher: dispatcher,
		scheduler:  scheduler,
		heartbeat:  heartbeat,
		supervisor: supervisor,
		health:     connHealth,
	}, nil
}

// uptimeSource adapts the upstream client for counter recovery.
type uptimeSource struct {
	client *upstream.Client
}

func (u uptimeSource) Uptime(ctx context.Context) (int64, error) {
	info, err := u.client.ServerInfo(ctx)
	if err != nil {
		return 0, err
	}
	return info.Uptime, nil
}

// Run connects, recovers counters, then runs every loop until the context is
// cancelled or the supervisor reaches the terminal failed state.
func (c *Collector) Run(ctx context.Context) error {
	if err := c.supervisor.Connect(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("initial connection failed, entering reconnect path")
	}

	reconcile.RecoverState(ctx, c.logger, c.query, uptimeSource{client: c.client}, c.engine, reconcile.RecoveryConfig{
		UptimeMetric: MetricServerUptime,
	})

	httpServer := &http.Server{
		Addr:              c.cfg.ListenAddr,
		Handler:           c.httpMux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	p := pool.New().WithContext(ctx).WithCancelOnError()

	p.Go(func(ctx context.Context) error {
		c.engine.Run(ctx)
		return nil
	})
	p.Go(func(ctx context.Context) error {
		c.sink.Run(ctx)
		return nil
	})
	p.Go(func(ctx context.Context) error {
		c.heartbeat.Run(ctx)
		return nil
	})
	p.Go(func(ctx context.Context) error {
		c.scheduler.Run(ctx)
		return nil
	})
	p.Go(func(ctx context.Context) error {
		if c.health.Connected() {
			return c.supervisor.Run(ctx)
		}
		// Initial connect failed: go straight to reconnection, then listen.
		if err := c.supervisor.reconnect(ctx); err != nil {
			return err
		}
		return c.supervisor.Run(ctx)
	})
	p.Go(func(ctx context.Context) error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	p.Go(func(ctx context.Context) error {
		c.logger.Info().Str(logging.FieldEndpoint, c.cfg.ListenAddr).Msg("serving health and metrics")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	err := p.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}

func (c *Collector) httpMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/health", c.health.Handler())
	mux.Handle("/metrics", observability.MetricsHandler())
	return mux
}
