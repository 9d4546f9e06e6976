//go:build test

package stateexport

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/suite"

	"github.com/realgrapedrop/xrpl-validator-dashboard-sub000/testutil"
	"github.com/realgrapedrop/xrpl-validator-dashboard-sub000/upstream"
)

// fakeNode serves canned server_info and peers responses.
type fakeNode struct {
	mu       sync.Mutex
	info     *upstream.ServerInfo
	peers    []upstream.Peer
	infoErr  error
	peersErr error
}

func (f *fakeNode) ServerInfo(context.Context) (*upstream.ServerInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.info, f.infoErr
}

func (f *fakeNode) Peers(context.Context) ([]upstream.Peer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peers, f.peersErr
}

type ExporterTestSuite struct {
	suite.Suite
	clock    *testutil.FakeClock
	node     *fakeNode
	exporter *Exporter
}

func (s *ExporterTestSuite) SetupTest() {
	s.clock = testutil.NewFakeClock()
	s.node = &fakeNode{
		info: &upstream.ServerInfo{
			BuildVersion: "2.2.0",
			PubkeyNode:   "n9Knode",
			ServerState:  "proposing",
			Uptime:       86400,
		},
		peers: []upstream.Peer{
			{Address: "a", Sanity: ""},
			{Address: "b", Sanity: "insane"},
		},
	}
	s.exporter = New(zerolog.Nop(), s.node, Config{})
	s.exporter.now = s.clock.Now
}

func (s *ExporterTestSuite) TestPollStateFillsSnapshot() {
	s.exporter.pollState(context.Background())

	snap := s.exporter.Current()
	s.Require().Equal("proposing", snap.State)
	s.Require().Equal(int64(6), snap.StateValue)
	s.Require().Equal(int64(86400), snap.Uptime)
	s.Require().Equal("2.2.0", snap.BuildVersion)
	s.Require().Equal("n9Knode", snap.PubkeyNode)
	s.Require().Equal(testutil.Epoch, snap.StatePolled)

	// Exactly one state flag is set.
	active := 0
	for _, on := range snap.StateFlags {
		if on {
			active++
		}
	}
	s.Require().Equal(1, active)
	s.Require().True(snap.StateFlags["proposing"])
	s.Require().Len(snap.StateFlags, len(upstream.ServerStates))
}

func (s *ExporterTestSuite) TestPollPeersFillsSnapshot() {
	s.exporter.pollPeers(context.Background())

	snap := s.exporter.Current()
	s.Require().Equal(int64(2), snap.PeerCount)
	s.Require().Equal(int64(1), snap.PeersInsane)
	s.Require().Equal(testutil.Epoch, snap.PeersPolled)
}

func (s *ExporterTestSuite) TestFailedPollKeepsLastSnapshot() {
	s.exporter.pollState(context.Background())

	s.node.mu.Lock()
	s.node.infoErr = errors.New("node unreachable")
	s.node.mu.Unlock()
	s.clock.Advance(time.Second)
	s.exporter.pollState(context.Background())

	// The snapshot and its poll timestamp are untouched by the failed poll.
	snap := s.exporter.Current()
	s.Require().Equal("proposing", snap.State)
	s.Require().Equal(testutil.Epoch, snap.StatePolled)
}

func (s *ExporterTestSuite) TestFreshness() {
	s.Require().False(s.exporter.Fresh(), "no poll yet")

	s.exporter.pollState(context.Background())
	s.Require().True(s.exporter.Fresh())

	s.clock.Advance(9 * time.Second)
	s.Require().True(s.exporter.Fresh())

	s.clock.Advance(2 * time.Second)
	s.Require().False(s.exporter.Fresh(), "state poll older than staleness bound")
}

func (s *ExporterTestSuite) TestCurrentCopyIsIsolated() {
	s.exporter.pollState(context.Background())

	snap := s.exporter.Current()
	snap.StateFlags["proposing"] = false

	s.Require().True(s.exporter.Current().StateFlags["proposing"])
}

func (s *ExporterTestSuite) TestStateTransitionReplacesFlags() {
	s.exporter.pollState(context.Background())

	s.node.mu.Lock()
	s.node.info = &upstream.ServerInfo{ServerState: "syncing", Uptime: 30}
	s.node.mu.Unlock()
	s.exporter.pollState(context.Background())

	snap := s.exporter.Current()
	s.Require().Equal(int64(2), snap.StateValue)
	s.Require().True(snap.StateFlags["syncing"])
	s.Require().False(snap.StateFlags["proposing"])
}

func TestExporterTestSuite(t *testing.T) {
	suite.Run(t, new(ExporterTestSuite))
}
