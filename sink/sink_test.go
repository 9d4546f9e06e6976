//go:build test

package sink

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/suite"

	"github.com/realgrapedrop/xrpl-validator-dashboard-sub000/testutil"
)

// captureStore is an httptest store recording write bodies and failing the
// next failNext requests.
type captureStore struct {
	mu       sync.Mutex
	bodies   []string
	failNext int
}

func (c *captureStore) handler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failNext > 0 {
		c.failNext--
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	c.bodies = append(c.bodies, string(body))
	w.WriteHeader(http.StatusNoContent)
}

func (c *captureStore) requestCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.bodies)
}

type SinkTestSuite struct {
	suite.Suite
	store  *captureStore
	server *httptest.Server
	sink   *Sink
}

func (s *SinkTestSuite) SetupTest() {
	s.store = &captureStore{}
	s.server = httptest.NewServer(http.HandlerFunc(s.store.handler))
	s.sink = New(zerolog.Nop(), Config{
		WriteURL:      s.server.URL + "/api/v1/import/prometheus",
		DefaultLabels: map[string]string{"instance": "validator-1"},
	})
}

func (s *SinkTestSuite) TearDownTest() {
	s.server.Close()
}

func (s *SinkTestSuite) TestFlushPostsBatchedSamples() {
	at := testutil.Epoch
	s.sink.Write(
		Sample{Name: "xrpl_ledger_index", Value: 91000000, At: at},
		Sample{Name: "xrpl_server_load_factor", Value: 1.5, At: at.Add(time.Second)},
	)
	s.sink.Flush(context.Background())

	s.Require().Equal(1, s.store.requestCount())
	lines := strings.Split(strings.TrimSpace(s.store.bodies[0]), "\n")
	s.Require().Len(lines, 2)
	s.Require().Contains(lines[0], "xrpl_ledger_index")
	s.Require().Contains(lines[0], `instance="validator-1"`)
}

func (s *SinkTestSuite) TestFlushEmptyBatchSendsNothing() {
	s.sink.Flush(context.Background())
	s.Require().Zero(s.store.requestCount())
}

func (s *SinkTestSuite) TestFlushRetriesOnceThenSucceeds() {
	s.store.failNext = 1
	s.sink.Write(Sample{Name: "xrpl_node_count", Value: 3, At: testutil.Epoch})
	s.sink.Flush(context.Background())

	s.Require().Equal(1, s.store.requestCount())
}

func (s *SinkTestSuite) TestFlushDropsBatchAfterRetryFails() {
	s.store.failNext = 2
	s.sink.Write(Sample{Name: "xrpl_node_count", Value: 3, At: testutil.Epoch})
	s.sink.Flush(context.Background())

	// Both attempts failed: the batch is gone, and the next flush does not
	// resend it.
	s.Require().Zero(s.store.requestCount())
	s.sink.Flush(context.Background())
	s.Require().Zero(s.store.requestCount())
}

func (s *SinkTestSuite) TestWriteIsSafeAcrossGoroutines() {
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s.sink.Write(Sample{Name: "xrpl_ledger_index", Value: float64(j), At: testutil.Epoch})
			}
		}()
	}
	wg.Wait()
	s.sink.Flush(context.Background())

	s.Require().Equal(1, s.store.requestCount())
	lines := strings.Split(strings.TrimSpace(s.store.bodies[0]), "\n")
	s.Require().Len(lines, 400)
}

func TestSinkTestSuite(t *testing.T) {
	suite.Run(t, new(SinkTestSuite))
}

func TestEncodeSample(t *testing.T) {
	at := time.UnixMilli(1717243200000)

	tests := []struct {
		name     string
		sample   Sample
		defaults map[string]string
		want     string
	}{
		{
			name:   "bare sample",
			sample: Sample{Name: "xrpl_ledger_index", Value: 91000000, At: at},
			want:   "xrpl_ledger_index 9.1e+07 1717243200000",
		},
		{
			name: "labels sorted",
			sample: Sample{
				Name:   "xrpl_node_count",
				Labels: map[string]string{"counter": "ledger", "kind": "object"},
				Value:  12,
				At:     at,
			},
			want: `xrpl_node_count{counter="ledger",kind="object"} 12 1717243200000`,
		},
		{
			name:     "sample labels override defaults",
			sample:   Sample{Name: "m", Labels: map[string]string{"instance": "b"}, Value: 1, At: at},
			defaults: map[string]string{"instance": "a"},
			want:     `m{instance="b"} 1 1717243200000`,
		},
		{
			name:   "label values escaped",
			sample: Sample{Name: "m", Labels: map[string]string{"v": `quo"te`}, Value: 1, At: at},
			want:   `m{v="quo\"te"} 1 1717243200000`,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := EncodeSample(tc.sample, tc.defaults); got != tc.want {
				t.Fatalf("EncodeSample() = %q, want %q", got, tc.want)
			}
		})
	}
}
