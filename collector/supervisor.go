package collector

import (
	"context"
	"errors"
	"time"

	"github.com/realgrapedrop/xrpl-validator-dashboard-sub000/health"
	"github.com/realgrapedrop/xrpl-validator-dashboard-sub000/logging"
	"github.com/realgrapedrop/xrpl-validator-dashboard-sub000/upstream"
)

// ErrReconnectExhausted is returned when the supervisor gives up after the
// bounded reconnection attempts. This is terminal: the process exits and the
// external supervision layer restarts it.
var ErrReconnectExhausted = errors.New("reconnection attempts exhausted")

// SupervisorConfig bounds the reconnection loop.
type SupervisorConfig struct {
	// Streams to subscribe to on every (re)connect.
	Streams []string

	// MaxAttempts is the bounded reconnection attempt count.
	MaxAttempts int

	// MaxBackoff caps the exponential reconnect delay.
	MaxBackoff time.Duration

	// SubscribeTimeout bounds one connect+subscribe round.
	SubscribeTimeout time.Duration

	// sleep is injected by tests to observe backoff without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// StreamClient is the connection surface the supervisor drives. It is
// satisfied by *upstream.Client.
type StreamClient interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, streams []string) error
	Listen(ctx context.Context, deliver func(upstream.StreamEvent) bool) error
	ForceClose()
	Close()
}

// Supervisor is the top-level control loop: it keeps the listen loop alive
// across disconnections with exponential backoff and re-subscription, and
// distinguishes shutdown from failure.
type Supervisor struct {
	logger     logging.Logger
	client     StreamClient
	health     *health.ConnectionHealth
	dispatcher *Dispatcher
	config     SupervisorConfig
}

// NewSupervisor builds the supervisor.
func NewSupervisor(
	logger logging.Logger,
	client StreamClient,
	connHealth *health.ConnectionHealth,
	dispatcher *Dispatcher,
	config SupervisorConfig,
) *Supervisor {
	if len(config.Streams) == 0 {
		config.Streams = []string{"ledger", "server", "validations"}
	}
	if config.MaxAttempts == 0 {
		config.MaxAttempts = 10
	}
	if config.MaxBackoff == 0 {
		config.MaxBackoff = 60 * time.Second
	}
	if config.SubscribeTimeout == 0 {
		config.SubscribeTimeout = 15 * time.Second
	}
	if config.sleep == nil {
		config.sleep = sleepContext
	}
	return &Supervisor{
		logger:     logging.ForComponent(logger, logging.ComponentSupervisor),
		client:     client,
		health:     connHealth,
		dispatcher: dispatcher,
		config:     config,
	}
}

// Connect performs the initial connect+subscribe. Unlike reconnection it does
// not back off: a collector that cannot reach its node at startup falls into
// the normal reconnect path from Run.
func (s *Supervisor) Connect(ctx context.Context) error {
	if err := s.connectOnce(ctx); err != nil {
		return err
	}
	s.health.SetConnected(true)
	return nil
}

// Run drives the listen loop until shutdown or terminal failure. Every exit
// of the listen loop flips the connection unhealthy first, so there is one
// consistent entry condition into reconnection regardless of why it ended.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		err := s.client.Listen(ctx, s.dispatcher.Deliver)
		s.health.SetConnected(false)

		if ctx.Err() != nil {
			// Shutdown-triggered exit: stop cleanly, no reconnect.
			s.client.Close()
			s.logger.Info().Msg("supervisor stopped")
			return nil
		}
		if err != nil {
			s.logger.Warn().Err(err).Msg("listen loop exited")
		} else {
			s.logger.Warn().Msg("listen loop stopped on unhealthy connection")
		}

		if err := s.reconnect(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
	}
}

// reconnect attempts connect+subscribe with delays min(2^(n-1), cap) seconds,
// up to the bounded maximum. Exhausting the attempts enters the terminal
// Failed state.
func (s *Supervisor) reconnect(ctx context.Context) error {
	for attempt := 1; attempt <= s.config.MaxAttempts; attempt++ {
		delay := reconnectDelay(attempt, s.config.MaxBackoff)
		s.logger.Info().
			Int(logging.FieldAttempt, attempt).
			Dur("delay", delay).
			Msg("waiting before reconnect attempt")

		if err := s.config.sleep(ctx, delay); err != nil {
			return err
		}

		s.health.RecordReconnectAttempt()
		if err := s.connectOnce(ctx); err != nil {
			reconnects.WithLabelValues("failure").Inc()
			s.logger.Warn().
				Err(err).
				Int(logging.FieldAttempt, attempt).
				Msg("reconnect attempt failed")
			continue
		}

		reconnects.WithLabelValues("success").Inc()
		s.health.SetConnected(true)
		s.logger.Info().Int(logging.FieldAttempt, attempt).Msg("reconnected and resubscribed")
		return nil
	}

	s.health.SetFailed()
	s.logger.Error().
		Int("max_attempts", s.config.MaxAttempts).
		Msg("giving up on reconnection, entering failed state")
	return ErrReconnectExhausted
}

func (s *Supervisor) connectOnce(ctx context.Context) error {
	connectCtx, cancel := context.WithTimeout(ctx, s.config.SubscribeTimeout)
	defer cancel()

	if err := s.client.Connect(connectCtx); err != nil {
		return err
	}
	if err := s.client.Subscribe(connectCtx, s.config.Streams); err != nil {
		s.client.ForceClose()
		return err
	}
	return nil
}

// reconnectDelay returns min(2^(attempt-1), max) seconds.
func reconnectDelay(attempt int, max time.Duration) time.Duration {
	if attempt > 30 {
		return max
	}
	delay := time.Duration(1<<uint(attempt-1)) * time.Second
	if delay > max {
		return max
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
