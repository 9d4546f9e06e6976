//go:build test

package health

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConnectionHealth_Lifecycle(t *testing.T) {
	h := NewConnectionHealth()
	require.False(t, h.Connected())
	require.False(t, h.Healthy())

	h.SetConnected(true)
	require.True(t, h.Connected())
	require.True(t, h.Healthy())

	h.SetConnected(false)
	require.False(t, h.Healthy())
}

func TestConnectionHealth_ReconnectResetsCounters(t *testing.T) {
	h := NewConnectionHealth()
	h.SetConnected(true)
	h.RecordHeartbeatFailure()
	h.RecordHeartbeatFailure()
	h.SetConnected(false)
	h.RecordReconnectAttempt()

	// Coming back up wipes the failure and attempt counters.
	h.SetConnected(true)
	require.Equal(t, int32(0), h.HeartbeatFailures())
	require.Equal(t, int32(1), h.RecordHeartbeatFailure())
}

func TestConnectionHealth_FailedIsTerminal(t *testing.T) {
	h := NewConnectionHealth()
	h.SetFailed()
	require.True(t, h.Failed())
	require.False(t, h.Healthy())

	// A late connect event does not clear the terminal state.
	h.SetConnected(true)
	require.False(t, h.Healthy())
}

func TestHandler(t *testing.T) {
	h := NewConnectionHealth()
	server := httptest.NewServer(h.Handler())
	t.Cleanup(server.Close)

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	h.SetConnected(true)
	resp, err = http.Get(server.URL)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
