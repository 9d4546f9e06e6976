// Package health holds the one deliberately shared piece of collector state:
// the upstream connection health flag set. It is written by the heartbeat
// monitor and the supervisor, and read by the listen loop and the /health
// endpoint.
package health

import (
	"net/http"
	"sync/atomic"
)

// ConnectionHealth tracks stream connectivity for the collector process.
// All fields are atomics; it is safe for concurrent use without locking.
type ConnectionHealth struct {
	connected         atomic.Bool
	failed            atomic.Bool
	heartbeatFailures atomic.Int32
	reconnectAttempts atomic.Int32
}

// NewConnectionHealth returns health state in the disconnected position.
func NewConnectionHealth() *ConnectionHealth {
	return &ConnectionHealth{}
}

// SetConnected flips the connected flag. A successful connect also clears the
// heartbeat failure streak and the reconnect attempt count.
func (h *ConnectionHealth) SetConnected(connected bool) {
	h.connected.Store(connected)
	if connected {
		h.heartbeatFailures.Store(0)
		h.reconnectAttempts.Store(0)
	}
}

// Connected reports whether the stream connection is considered live.
func (h *ConnectionHealth) Connected() bool {
	return h.connected.Load()
}

// RecordHeartbeatFailure increments and returns the consecutive heartbeat
// failure count.
func (h *ConnectionHealth) RecordHeartbeatFailure() int32 {
	return h.heartbeatFailures.Add(1)
}

// ResetHeartbeatFailures clears the consecutive failure streak after a
// successful probe.
func (h *ConnectionHealth) ResetHeartbeatFailures() {
	h.heartbeatFailures.Store(0)
}

// HeartbeatFailures returns the current consecutive failure streak.
func (h *ConnectionHealth) HeartbeatFailures() int32 {
	return h.heartbeatFailures.Load()
}

// RecordReconnectAttempt increments and returns the reconnect attempt count.
func (h *ConnectionHealth) RecordReconnectAttempt() int32 {
	return h.reconnectAttempts.Add(1)
}

// SetFailed marks the terminal state reached when reconnection attempts are
// exhausted. Recovery from Failed requires a process restart.
func (h *ConnectionHealth) SetFailed() {
	h.failed.Store(true)
}

// Failed reports whether the supervisor has given up on reconnecting.
func (h *ConnectionHealth) Failed() bool {
	return h.failed.Load()
}

// Healthy is the condition exposed on the /health endpoint: connected and not
// in the terminal failed state.
func (h *ConnectionHealth) Healthy() bool {
	return h.Connected() && !h.Failed()
}

// Handler serves 200 when healthy and 503 otherwise, for the external
// process-supervision layer.
func (h *ConnectionHealth) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if h.Healthy() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("unhealthy\n"))
	})
}
