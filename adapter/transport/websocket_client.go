// Package transport provides the client side of the assistant's WebSocket
// chat protocol.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/scttfrdmn/travelrouter/adapter/codec"
	"github.com/scttfrdmn/travelrouter/adapter/errors"
)

const (
	defaultMaxRetries        = 5
	defaultInitialRetryDelay = 500 * time.Millisecond
	defaultPingInterval      = 30 * time.Second
	defaultPingTimeout       = 10 * time.Second
	defaultMaxMessageSize    = 1 << 20
)

// WebSocketOptions configures a WebSocketClient.
type WebSocketOptions struct {
	MaxRetries        int
	InitialRetryDelay time.Duration
	PingInterval      time.Duration
	PingTimeout       time.Duration
	MaxMessageSize    int64
}

// WebSocketClient sends queries to a travelrouter /ws endpoint. It
// reconnects on demand and keeps the connection alive with pings. One query
// is in flight at a time.
type WebSocketClient struct {
	url    string
	opts   WebSocketOptions
	dialer *websocket.Dialer

	// reqMu serializes request/response pairs.
	reqMu sync.Mutex

	mu        sync.Mutex
	conn      *websocket.Conn
	stopPing  chan struct{}
	pingDone  chan struct{}
	sessionID string
}

// NewWebSocketClient creates a client for url (ws:// or wss://).
func NewWebSocketClient(url string, opts WebSocketOptions) *WebSocketClient {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.InitialRetryDelay <= 0 {
		opts.InitialRetryDelay = defaultInitialRetryDelay
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaultPingInterval
	}
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = defaultPingTimeout
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = defaultMaxMessageSize
	}
	return &WebSocketClient{
		url:  url,
		opts: opts,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 15 * time.Second,
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
		},
	}
}

// Connect dials the server, retrying with exponential backoff.
func (c *WebSocketClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *WebSocketClient) connectLocked(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}

	var lastErr error
	delay := c.opts.InitialRetryDelay
	for attempt := 0; attempt < c.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return errors.NewConnectionError("connection cancelled", ctx.Err())
			}
			delay *= 2
		}

		conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
		if err != nil {
			lastErr = err
			continue
		}
		conn.SetReadLimit(c.opts.MaxMessageSize)
		c.conn = conn
		c.startPingLoop(conn)
		return nil
	}

	return errors.NewConnectionError(
		fmt.Sprintf("failed to connect to %s after %d attempts", c.url, c.opts.MaxRetries),
		lastErr,
	)
}

func (c *WebSocketClient) startPingLoop(conn *websocket.Conn) {
	stop := make(chan struct{})
	done := make(chan struct{})
	c.stopPing, c.pingDone = stop, done

	go func() {
		defer close(done)
		ticker := time.NewTicker(c.opts.PingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.PingTimeout)); err != nil {
					return
				}
			case <-stop:
				return
			}
		}
	}()
}

// dropLocked discards a broken connection so the next call redials.
func (c *WebSocketClient) dropLocked() {
	if c.conn == nil {
		return
	}
	close(c.stopPing)
	<-c.pingDone
	c.conn.Close()
	c.conn = nil
}

// SessionID returns the session the server assigned on the last reply.
func (c *WebSocketClient) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Ask sends query and waits for the matching response. The client's current
// session is used and updated from the reply.
func (c *WebSocketClient) Ask(ctx context.Context, query string) (codec.QueryResponse, error) {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	c.mu.Lock()
	if err := c.connectLocked(ctx); err != nil {
		c.mu.Unlock()
		return codec.QueryResponse{}, err
	}
	conn := c.conn
	sessionID := c.sessionID
	c.mu.Unlock()

	env, err := codec.CreateRequestEnvelope(codec.QueryRequest{Query: query, SessionID: sessionID})
	if err != nil {
		return codec.QueryResponse{}, err
	}
	data, err := codec.EncodeBytes(env)
	if err != nil {
		return codec.QueryResponse{}, err
	}

	deadline, hasDeadline := ctx.Deadline()
	if !hasDeadline {
		deadline = time.Time{}
	}
	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.fail()
		return codec.QueryResponse{}, errors.NewConnectionError("failed to send query", err)
	}

	_ = conn.SetReadDeadline(deadline)
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.fail()
			return codec.QueryResponse{}, errors.NewConnectionError("failed to receive reply", err)
		}
		reply, err := codec.DecodeBytes(raw)
		if err != nil {
			return codec.QueryResponse{}, errors.NewInvalidMessageError(err.Error(), nil)
		}
		if reply.ID != env.ID {
			continue
		}
		return c.decodeReply(reply)
	}
}

func (c *WebSocketClient) decodeReply(env *codec.Envelope) (codec.QueryResponse, error) {
	switch env.Type {
	case codec.TypeError:
		var payload codec.ErrorPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return codec.QueryResponse{}, errors.NewInvalidMessageError("undecodable error payload", nil)
		}
		return codec.QueryResponse{}, errors.NewProtocolError(payload.Code, payload.Message, nil)
	case codec.TypeResponse:
		var resp codec.QueryResponse
		if err := json.Unmarshal(env.Payload, &resp); err != nil {
			return codec.QueryResponse{}, errors.NewInvalidMessageError("undecodable response payload", nil)
		}
		c.mu.Lock()
		c.sessionID = resp.SessionID
		c.mu.Unlock()
		return resp, nil
	default:
		return codec.QueryResponse{}, errors.NewInvalidMessageError(
			fmt.Sprintf("unexpected envelope type %q", env.Type), nil)
	}
}

func (c *WebSocketClient) fail() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropLocked()
}

// Close sends a close frame and releases the connection.
func (c *WebSocketClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	err := c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.dropLocked()
	return err
}
