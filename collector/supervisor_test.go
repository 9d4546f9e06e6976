//go:build test

package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/realgrapedrop/xrpl-validator-dashboard-sub000/health"
	"github.com/realgrapedrop/xrpl-validator-dashboard-sub000/upstream"
)

// scriptedClient scripts connect/subscribe/listen outcomes per call.
type scriptedClient struct {
	connectErrs   []error
	subscribeErrs []error
	listenErrs    []error
	connects      int
	subscribes    int
	listens       int
	subscribed    [][]string
}

func (c *scriptedClient) take(errs []error, call int) error {
	if call < len(errs) {
		return errs[call]
	}
	return nil
}

func (c *scriptedClient) Connect(context.Context) error {
	err := c.take(c.connectErrs, c.connects)
	c.connects++
	return err
}

func (c *scriptedClient) Subscribe(_ context.Context, streams []string) error {
	err := c.take(c.subscribeErrs, c.subscribes)
	c.subscribes++
	c.subscribed = append(c.subscribed, streams)
	return err
}

func (c *scriptedClient) Listen(ctx context.Context, _ func(upstream.StreamEvent) bool) error {
	err := c.take(c.listenErrs, c.listens)
	c.listens++
	if err == errListenBlocks {
		<-ctx.Done()
		return nil
	}
	return err
}

func (c *scriptedClient) ForceClose() {}
func (c *scriptedClient) Close()     {}

// errListenBlocks makes the scripted Listen block until shutdown.
var errListenBlocks = errors.New("block until ctx done")

type SupervisorTestSuite struct {
	suite.Suite
	client *scriptedClient
	health *health.ConnectionHealth
	delays []time.Duration
}

func (s *SupervisorTestSuite) SetupTest() {
	s.client = &scriptedClient{}
	s.health = health.NewConnectionHealth()
	s.delays = nil
}

func (s *SupervisorTestSuite) newSupervisor(config SupervisorConfig) *Supervisor {
	config.sleep = func(_ context.Context, d time.Duration) error {
		s.delays = append(s.delays, d)
		return nil
	}
	dispatcher := NewDispatcher(zerolog.Nop(), &fakeReconciler{}, &sampleRecorder{}, s.health, "n9Ka")
	return NewSupervisor(zerolog.Nop(), s.client, s.health, dispatcher, config)
}

func (s *SupervisorTestSuite) TestConnectSubscribesDefaultStreams() {
	supervisor := s.newSupervisor(SupervisorConfig{})
	s.Require().NoError(supervisor.Connect(context.Background()))

	s.Require().True(s.health.Connected())
	s.Require().Equal([][]string{{"ledger", "server", "validations"}}, s.client.subscribed)
}

func (s *SupervisorTestSuite) TestConnectSubscribeFailureSurfaces() {
	s.client.subscribeErrs = []error{errors.New("no permission")}
	supervisor := s.newSupervisor(SupervisorConfig{})

	s.Require().Error(supervisor.Connect(context.Background()))
	s.Require().False(s.health.Connected())
}

func (s *SupervisorTestSuite) TestReconnectBackoffProgression() {
	// First listen drops, seven reconnect attempts fail, the eighth
	// succeeds, then the second listen blocks until shutdown.
	s.client.listenErrs = []error{errors.New("stream read: EOF"), errListenBlocks}
	failures := make([]error, 7)
	for i := range failures {
		failures[i] = errors.New("dial refused")
	}
	s.client.connectErrs = failures

	supervisor := s.newSupervisor(SupervisorConfig{MaxAttempts: 10})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- supervisor.Run(ctx) }()

	require.Eventually(s.T(), func() bool {
		return s.health.Connected()
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	s.Require().NoError(<-done)
	s.Require().Equal([]time.Duration{
		1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
		16 * time.Second, 32 * time.Second, 60 * time.Second, 60 * time.Second,
	}, s.delays)
}

func (s *SupervisorTestSuite) TestExhaustedReconnectsEnterFailedState() {
	s.client.listenErrs = []error{errors.New("stream read: EOF")}
	failures := make([]error, 10)
	for i := range failures {
		failures[i] = errors.New("dial refused")
	}
	s.client.connectErrs = failures

	supervisor := s.newSupervisor(SupervisorConfig{MaxAttempts: 10})
	err := supervisor.Run(context.Background())

	s.Require().ErrorIs(err, ErrReconnectExhausted)
	s.Require().True(s.health.Failed())
	s.Require().False(s.health.Healthy())
	s.Require().Len(s.delays, 10)
}

func (s *SupervisorTestSuite) TestShutdownDuringListenIsClean() {
	s.client.listenErrs = []error{errListenBlocks}
	supervisor := s.newSupervisor(SupervisorConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- supervisor.Run(ctx) }()

	cancel()
	s.Require().NoError(<-done)
	s.Require().False(s.health.Failed())
}

func TestSupervisorTestSuite(t *testing.T) {
	suite.Run(t, new(SupervisorTestSuite))
}

func TestReconnectDelay(t *testing.T) {
	max := 60 * time.Second
	require.Equal(t, time.Second, reconnectDelay(1, max))
	require.Equal(t, 2*time.Second, reconnectDelay(2, max))
	require.Equal(t, 32*time.Second, reconnectDelay(6, max))
	require.Equal(t, max, reconnectDelay(7, max))
	require.Equal(t, max, reconnectDelay(100, max))
}
