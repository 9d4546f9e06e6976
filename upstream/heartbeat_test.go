//go:build test

package upstream

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/suite"

	"github.com/realgrapedrop/xrpl-validator-dashboard-sub000/health"
)

// fakePinger scripts probe outcomes and records teardown calls.
type fakePinger struct {
	errs        []error
	calls       int
	forceClosed atomic.Bool
}

func (f *fakePinger) Ping(context.Context) error {
	var err error
	if f.calls < len(f.errs) {
		err = f.errs[f.calls]
	}
	f.calls++
	return err
}

func (f *fakePinger) ForceClose() {
	f.forceClosed.Store(true)
}

type HeartbeatTestSuite struct {
	suite.Suite
	pinger  *fakePinger
	health  *health.ConnectionHealth
	monitor *HeartbeatMonitor
}

func (s *HeartbeatTestSuite) SetupTest() {
	s.pinger = &fakePinger{}
	s.health = health.NewConnectionHealth()
	s.health.SetConnected(true)
	s.monitor = NewHeartbeatMonitor(zerolog.Nop(), s.pinger, s.health, DefaultHeartbeatConfig())
}

func (s *HeartbeatTestSuite) TestSuccessfulProbeResetsFailures() {
	probeErr := errors.New("probe timeout")
	s.pinger.errs = []error{probeErr, probeErr, nil}

	ctx := context.Background()
	s.monitor.Probe(ctx)
	s.monitor.Probe(ctx)
	s.Require().Equal(int32(2), s.health.HeartbeatFailures())

	s.monitor.Probe(ctx)
	s.Require().Equal(int32(0), s.health.HeartbeatFailures())
	s.Require().False(s.pinger.forceClosed.Load())
	s.Require().True(s.health.Connected())
}

func (s *HeartbeatTestSuite) TestThresholdForcesTeardown() {
	probeErr := errors.New("probe timeout")
	s.pinger.errs = []error{probeErr, probeErr, probeErr}

	ctx := context.Background()
	s.monitor.Probe(ctx)
	s.monitor.Probe(ctx)
	s.Require().False(s.pinger.forceClosed.Load())
	s.Require().True(s.health.Connected())

	// Third consecutive failure crosses the threshold.
	s.monitor.Probe(ctx)
	s.Require().True(s.pinger.forceClosed.Load())
	s.Require().False(s.health.Connected())
}

func (s *HeartbeatTestSuite) TestRecoveryBetweenFailuresAvoidsTeardown() {
	probeErr := errors.New("probe timeout")
	s.pinger.errs = []error{probeErr, probeErr, nil, probeErr, probeErr, nil}

	ctx := context.Background()
	for range s.pinger.errs {
		s.monitor.Probe(ctx)
	}
	s.Require().False(s.pinger.forceClosed.Load())
	s.Require().True(s.health.Connected())
}

func TestHeartbeatTestSuite(t *testing.T) {
	suite.Run(t, new(HeartbeatTestSuite))
}
