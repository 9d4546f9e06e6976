package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	sdkerrors "cosmossdk.io/errors"
	"github.com/gorilla/websocket"

	"github.com/realgrapedrop/xrpl-validator-dashboard-sub000/logging"
	"github.com/realgrapedrop/xrpl-validator-dashboard-sub000/retry"
)

// ClientConfig configures the upstream client's two transports.
type ClientConfig struct {
	// WebsocketURL is the streaming endpoint (subscribe, listen, ping).
	WebsocketURL string

	// RPCURL is the JSON-RPC HTTP endpoint used for polled commands.
	RPCURL string

	// RequestTimeout bounds a single HTTP round trip.
	RequestTimeout time.Duration

	// RetryPolicy is applied to each HTTP request before failure surfaces to
	// the caller.
	RetryPolicy retry.Policy
}

// Client is the typed wrapper around one rippled node: a long-lived websocket
// connection for the event streams plus a stateless HTTP transport for the
// request/response commands.
//
// The websocket methods are not safe to interleave arbitrarily: Connect and
// Subscribe run before Listen, and only Ping may be issued concurrently with
// a running Listen (responses are routed back through the listen loop).
type Client struct {
	logger logging.Logger
	config ClientConfig

	httpClient *http.Client

	connMu sync.Mutex
	conn   *websocket.Conn

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[int64]chan idFrame

	nextID atomic.Int64
}

// idFrame is a response to an id-tagged websocket request.
type idFrame struct {
	ID           *int64          `json:"id"`
	Status       string          `json:"status"`
	Type         string          `json:"type"`
	Result       json.RawMessage `json:"result"`
	ErrorMessage string          `json:"error_message"`
}

// NewClient builds an upstream client. No connection is made until Connect.
func NewClient(logger logging.Logger, config ClientConfig) *Client {
	if config.RequestTimeout == 0 {
		config.RequestTimeout = 10 * time.Second
	}
	return &Client{
		logger:     logging.ForComponent(logger, logging.ComponentUpstream),
		config:     config,
		httpClient: &http.Client{Timeout: config.RequestTimeout},
		pending:    make(map[int64]chan idFrame),
	}
}

// Connect dials the websocket endpoint, replacing any previous connection.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.config.WebsocketURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.config.WebsocketURL, err)
	}

	c.connMu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = conn
	c.connMu.Unlock()

	c.logger.Info().Str(logging.FieldEndpoint, c.config.WebsocketURL).Msg("websocket connected")
	return nil
}

// Subscribe asks the node to push the named streams on this connection. It
// must be called after Connect and before Listen: the acknowledgement is read
// synchronously off the socket.
func (c *Client) Subscribe(ctx context.Context, streams []string) error {
	conn := c.currentConn()
	if conn == nil {
		return ErrNotConnected
	}

	id := c.nextID.Add(1)
	req := map[string]any{"id": id, "command": "subscribe", "streams": streams}

	c.writeMu.Lock()
	err := conn.WriteJSON(req)
	c.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("send subscribe: %w", err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}
	defer conn.SetReadDeadline(time.Time{})

	// The subscribe ack is the first id-tagged frame; nothing streams before
	// the server acknowledges.
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read subscribe ack: %w", err)
		}
		var frame idFrame
		if err := json.Unmarshal(data, &frame); err != nil || frame.ID == nil || *frame.ID != id {
			continue
		}
		if frame.Status != "success" {
			return sdkerrors.Wrapf(ErrSubscribeFailed, "status %q: %s", frame.Status, frame.ErrorMessage)
		}
		c.logger.Info().Strs("streams", streams).Msg("subscribed to streams")
		return nil
	}
}

// Listen consumes the stream until the connection drops, the context ends, or
// deliver returns false. Id-tagged frames (ping responses) are routed to
// their waiters; unknown and malformed events are logged and dropped so a
// single bad frame never terminates the loop.
//
// The returned error is nil for a deliberate stop (context cancelled or
// deliver returned false) and the transport error otherwise.
func (c *Client) Listen(ctx context.Context, deliver func(StreamEvent) bool) error {
	conn := c.currentConn()
	if conn == nil {
		return ErrNotConnected
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("stream read: %w", err)
		}

		var frame idFrame
		if jsonErr := json.Unmarshal(data, &frame); jsonErr == nil && frame.ID != nil {
			c.routeResponse(frame)
			continue
		}

		event, err := ParseStreamEvent(data)
		if err != nil {
			if sdkerrors.IsOf(err, ErrUnknownEventType) {
				c.logger.Debug().Err(err).Msg("dropping event of unknown type")
			} else {
				c.logger.Warn().Err(err).Msg("dropping malformed stream event")
			}
			continue
		}

		if !deliver(event) {
			return nil
		}
	}
}

func (c *Client) routeResponse(frame idFrame) {
	c.pendingMu.Lock()
	ch, ok := c.pending[*frame.ID]
	if ok {
		delete(c.pending, *frame.ID)
	}
	c.pendingMu.Unlock()
	if ok {
		ch <- frame
	}
}

// Ping issues the lightweight liveness probe over the websocket. It requires
// a running Listen loop to route the response; a hung connection surfaces as
// a context timeout.
func (c *Client) Ping(ctx context.Context) error {
	conn := c.currentConn()
	if conn == nil {
		return ErrNotConnected
	}

	id := c.nextID.Add(1)
	ch := make(chan idFrame, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	c.writeMu.Lock()
	err := conn.WriteJSON(map[string]any{"id": id, "command": "ping"})
	c.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("send ping: %w", err)
	}

	select {
	case <-ctx.Done():
		return sdkerrors.Wrap(ErrProbeTimeout, ctx.Err().Error())
	case frame := <-ch:
		if frame.Status != "success" {
			return sdkerrors.Wrapf(ErrRequestFailed, "ping status %q", frame.Status)
		}
		return nil
	}
}

// ForceClose tears the websocket down without a close handshake. The
// heartbeat monitor uses this to unblock a listen loop hung on a silent
// connection.
func (c *Client) ForceClose() {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

// Close performs a graceful websocket shutdown.
func (c *Client) Close() {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return
	}
	closeMessage := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	c.writeMu.Lock()
	_ = c.conn.WriteMessage(websocket.CloseMessage, closeMessage)
	c.writeMu.Unlock()
	_ = c.conn.Close()
	c.conn = nil
}

func (c *Client) currentConn() *websocket.Conn {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.conn
}

// Request issues one JSON-RPC command over the HTTP transport, applying the
// client's bounded retry before surfacing failure.
func (c *Client) Request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if params == nil {
		params = map[string]any{}
	}
	body, err := json.Marshal(map[string]any{"method": method, "params": []any{params}})
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", method, err)
	}

	var result json.RawMessage
	err = c.config.RetryPolicy.Do(ctx, func(ctx context.Context) error {
		result, err = c.doHTTPRequest(ctx, method, body)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) doHTTPRequest(ctx context.Context, method string, body []byte) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.RPCURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, sdkerrors.Wrapf(ErrRequestFailed, "%s: HTTP %d", method, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", method, err)
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", method, err)
	}

	var status struct {
		Status       string `json:"status"`
		ErrorMessage string `json:"error_message"`
	}
	if err := json.Unmarshal(envelope.Result, &status); err == nil && status.Status == "error" {
		return nil, sdkerrors.Wrapf(ErrRequestFailed, "%s: %s", method, status.ErrorMessage)
	}

	return envelope.Result, nil
}

// ServerInfo issues the server_info command.
func (c *Client) ServerInfo(ctx context.Context) (*ServerInfo, error) {
	raw, err := c.Request(ctx, "server_info", nil)
	if err != nil {
		return nil, err
	}
	var result serverInfoResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode server_info: %w", err)
	}
	return &result.Info, nil
}

// Peers issues the peers command.
func (c *Client) Peers(ctx context.Context) ([]Peer, error) {
	raw, err := c.Request(ctx, "peers", nil)
	if err != nil {
		return nil, err
	}
	var result peersResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode peers: %w", err)
	}
	return result.Peers, nil
}

// Counts issues the get_counts command and returns its numeric fields.
// rippled mixes strings and numbers in this result; only the numbers become
// metric samples.
func (c *Client) Counts(ctx context.Context) (map[string]float64, error) {
	raw, err := c.Request(ctx, "get_counts", nil)
	if err != nil {
		return nil, err
	}
	var result map[string]any
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode get_counts: %w", err)
	}
	counts := make(map[string]float64, len(result))
	for key, value := range result {
		if num, ok := value.(float64); ok {
			counts[key] = num
		}
	}
	delete(counts, "status")
	return counts, nil
}
