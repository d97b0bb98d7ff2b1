// Package transport implements the websocket RPC client for the sync
// server. It owns the persistent connection: a reader goroutine feeds
// inboundCh, a background task (Run) handles heartbeats and
// reconnection, and request/response calls are serialized on the shared
// connection by an operation mutex.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/tidwall/gjson"

	"github.com/alexjbarnes/paper-sync/internal/wire"
)

const (
	pingAfter        = 10 * time.Second
	disconnectAfter  = 120 * time.Second
	heartbeatCheckAt = 20 * time.Second

	reconnectMin    = 1 * time.Second
	reconnectMax    = 60 * time.Second
	responseTimeout = 30 * time.Second

	// chunkSize is the fixed PDF transfer chunk size. The last chunk of
	// a payload is sized to the remainder.
	chunkSize = 64 * 1024

	// maxPDFBytes bounds what a download is allowed to declare, guarding
	// against a buggy or malicious server pre-sizing a huge buffer.
	maxPDFBytes = 1 << 30

	readLimit = 4 * 1024 * 1024
)

// Config holds the parameters needed to reach the sync server.
type Config struct {
	Host      string
	Port      int
	AuthToken string
	UseTLS    bool
	Device    string
}

// inboundMsg wraps a message read from the WebSocket by the reader
// goroutine.
type inboundMsg struct {
	typ  websocket.MessageType
	data []byte
	err  error
}

// wsConn abstracts the WebSocket connection so Client can be tested
// without a real server. *websocket.Conn satisfies this interface.
type wsConn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
	SetReadLimit(n int64)
}

// Client is the sole boundary to the remote server. All RPCs issued
// during a sync cycle share one connection; it is not reestablished per
// call.
type Client struct {
	cfg    Config
	logger *slog.Logger

	conn wsConn

	// opMu serializes request/response exchanges. Exactly one RPC is in
	// flight at a time, so readResponse sees only its own reply.
	opMu sync.Mutex

	// writeMu guards writes against the heartbeat ping racing an RPC.
	writeMu sync.Mutex

	// connMu guards the connection-identity fields below, which the
	// reconnect path replaces while an RPC may still be reading the old
	// connection's channel.
	connMu sync.RWMutex

	// inboundCh receives non-heartbeat messages from the reader
	// goroutine. Pongs are swallowed by the reader.
	inboundCh chan inboundMsg

	// readerDone is closed by the reader goroutine on read failure,
	// waking Run to reconnect.
	readerDone chan struct{}

	// connCancel cancels the per-connection context, stopping the
	// reader goroutine before a reconnect or on Close.
	connCancel context.CancelFunc

	connected   bool
	closed      bool
	connectedMu sync.RWMutex

	lastMessage time.Time
	lastMsgMu   sync.Mutex
}

// New creates a Client. Call Connect before issuing RPCs.
func New(cfg Config, logger *slog.Logger) *Client {
	return &Client{
		cfg:    cfg,
		logger: logger,
	}
}

func (c *Client) url() string {
	scheme := "ws"
	if c.cfg.UseTLS {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s:%d/sync", scheme, c.cfg.Host, c.cfg.Port)
}

// Connect dials the server, authenticates, and starts the reader
// goroutine. An empty auth token connects anonymously.
func (c *Client) Connect(ctx context.Context) error {
	c.connectedMu.RLock()
	closed := c.closed
	c.connectedMu.RUnlock()
	if closed {
		return ErrNotConnected
	}

	// Stop any reader left over from a previous connection.
	c.connMu.Lock()
	if c.connCancel != nil {
		c.connCancel()
		c.connCancel = nil
	}
	c.connMu.Unlock()

	header := http.Header{}
	if c.cfg.AuthToken != "" {
		header.Set("Authorization", "Bearer "+c.cfg.AuthToken)
	}

	c.logger.Debug("connecting", slog.String("url", c.url()))
	conn, _, err := websocket.Dial(ctx, c.url(), &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return &ConnectionError{Err: fmt.Errorf("dialing websocket: %w", err)}
	}
	conn.SetReadLimit(readLimit)
	c.setConn(conn)
	c.touchLastMessage()

	init := wire.InitMessage{
		Op:     "init",
		Token:  c.cfg.AuthToken,
		Device: c.cfg.Device,
	}
	if err := c.writeJSON(ctx, init); err != nil {
		conn.Close(websocket.StatusInternalError, "init failed")
		return &ConnectionError{Err: fmt.Errorf("sending init: %w", err)}
	}

	// The init reply is read directly; the reader goroutine starts after
	// the handshake completes.
	var resp wire.InitResponse
	if err := c.readJSON(ctx, &resp); err != nil {
		conn.Close(websocket.StatusInternalError, "init read failed")
		return &ConnectionError{Err: fmt.Errorf("reading init response: %w", err)}
	}
	if resp.Res != "ok" {
		conn.Close(websocket.StatusNormalClosure, "auth failed")
		return &ServerError{Detail: "auth failed: " + resp.Res}
	}

	connCtx, cancel := context.WithCancel(context.Background())
	c.connMu.Lock()
	c.connCancel = cancel
	c.connMu.Unlock()
	c.startReader(connCtx)
	c.setConnected(true)

	c.logger.Info("connected",
		slog.String("server_version", resp.ServerVersion),
		slog.Bool("tls", c.cfg.UseTLS),
	)
	return nil
}

// startReader launches a goroutine that reads from the WebSocket and
// feeds inboundCh. Heartbeat pongs are swallowed here so they can never
// sit between an RPC and its reply. The channel is captured by value so
// a stale reader from a dropped connection cannot feed the new one.
func (c *Client) startReader(connCtx context.Context) {
	ch := make(chan inboundMsg, 64)
	done := make(chan struct{})
	c.connMu.Lock()
	c.inboundCh = ch
	c.readerDone = done
	conn := c.conn
	c.connMu.Unlock()

	go func() {
		defer close(done)
		for {
			typ, data, err := conn.Read(connCtx)
			if err == nil && typ == websocket.MessageText && gjson.GetBytes(data, "op").Str == "pong" {
				c.touchLastMessage()
				continue
			}
			select {
			case ch <- inboundMsg{typ: typ, data: data, err: err}:
			case <-connCtx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()
}

// Run is the background connection-management task: it sends heartbeat
// pings, detects dead connections, and reconnects with exponential
// backoff. It returns when ctx is cancelled or the client is closed.
func (c *Client) Run(ctx context.Context) error {
	backoff := reconnectMin
	ticker := time.NewTicker(heartbeatCheckAt)
	defer ticker.Stop()

	for {
		c.connMu.RLock()
		readerDone := c.readerDone
		c.connMu.RUnlock()

		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-readerDone:
			c.setConnected(false)
			if c.isClosed() {
				return nil
			}
			c.logger.Warn("connection lost, reconnecting", slog.Duration("backoff", backoff))

			jitter := time.Duration(rand.Int64N(int64(backoff) / 2))
			timer := time.NewTimer(backoff + jitter)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}

			if err := c.Connect(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.logger.Warn("reconnect failed", slog.String("error", err.Error()))
				backoff = min(backoff*2, reconnectMax)
				continue
			}
			backoff = reconnectMin

		case <-ticker.C:
			if !c.Connected() {
				continue
			}
			c.lastMsgMu.Lock()
			elapsed := time.Since(c.lastMessage)
			c.lastMsgMu.Unlock()

			if elapsed > disconnectAfter {
				c.logger.Warn("connection timed out, closing")
				if conn := c.currentConn(); conn != nil {
					conn.Close(websocket.StatusGoingAway, "timeout")
				}
				continue
			}
			if elapsed > pingAfter {
				if err := c.writeJSON(ctx, map[string]string{"op": "ping"}); err != nil {
					c.logger.Warn("sending ping", slog.String("error", err.Error()))
				}
			}
		}
	}
}

// Close performs a graceful shutdown: the reader is cancelled, the
// socket closed, and every subsequent call fails with ErrNotConnected.
func (c *Client) Close() error {
	c.connectedMu.Lock()
	c.closed = true
	c.connected = false
	c.connectedMu.Unlock()

	c.connMu.Lock()
	cancel := c.connCancel
	conn := c.conn
	c.connMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "bye")
	}
	return nil
}

// Connected reports whether the connection is live.
func (c *Client) Connected() bool {
	c.connectedMu.RLock()
	defer c.connectedMu.RUnlock()
	return c.connected && !c.closed
}

func (c *Client) isClosed() bool {
	c.connectedMu.RLock()
	defer c.connectedMu.RUnlock()
	return c.closed
}

func (c *Client) setConnected(v bool) {
	c.connectedMu.Lock()
	c.connected = v
	c.connectedMu.Unlock()
}

func (c *Client) setConn(conn wsConn) {
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
}

func (c *Client) currentConn() wsConn {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.conn
}

func (c *Client) touchLastMessage() {
	c.lastMsgMu.Lock()
	c.lastMessage = time.Now()
	c.lastMsgMu.Unlock()
}

// writeJSON marshals v and writes it as a text frame.
func (c *Client) writeJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshalling message: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn := c.currentConn()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

// writeBinary writes one chunk as a binary frame.
func (c *Client) writeBinary(ctx context.Context, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn := c.currentConn()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.Write(ctx, websocket.MessageBinary, data)
}

// readJSON reads a text frame directly from the connection and
// unmarshals it into v. Only used during Connect, before the reader
// goroutine starts.
func (c *Client) readJSON(ctx context.Context, v any) error {
	_, data, err := c.readJSONRaw(ctx)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (c *Client) readJSONRaw(ctx context.Context) (websocket.MessageType, []byte, error) {
	conn := c.currentConn()
	if conn == nil {
		return 0, nil, ErrNotConnected
	}
	typ, data, err := conn.Read(ctx)
	if err != nil {
		return typ, nil, fmt.Errorf("reading message: %w", err)
	}
	c.touchLastMessage()
	return typ, data, nil
}

// readInbound returns the next message from the reader goroutine,
// bounded by responseTimeout.
func (c *Client) readInbound(ctx context.Context) (inboundMsg, error) {
	c.connMu.RLock()
	ch := c.inboundCh
	c.connMu.RUnlock()

	select {
	case msg := <-ch:
		if msg.err != nil {
			return msg, &ConnectionError{Err: msg.err}
		}
		c.touchLastMessage()
		return msg, nil
	case <-time.After(responseTimeout):
		return inboundMsg{}, &ConnectionError{Err: fmt.Errorf("timed out waiting for server response")}
	case <-ctx.Done():
		return inboundMsg{}, ctx.Err()
	}
}

// readResponse reads the server's reply to the request in flight.
// Binary frames here mean the protocol is out of step.
func (c *Client) readResponse(ctx context.Context) (json.RawMessage, error) {
	msg, err := c.readInbound(ctx)
	if err != nil {
		return nil, err
	}
	if msg.typ == websocket.MessageBinary {
		c.logger.Debug("unexpected binary frame waiting for response", slog.Int("bytes", len(msg.data)))
		return nil, ErrInvalidResponse
	}
	return json.RawMessage(msg.data), nil
}

// rpc sends a request and decodes the reply into out (when non-nil).
// Server-reported errors come back as *ServerError.
func (c *Client) rpc(ctx context.Context, req any, out any) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if !c.Connected() {
		return ErrNotConnected
	}

	if err := c.writeJSON(ctx, req); err != nil {
		return &ConnectionError{Err: err}
	}

	raw, err := c.readResponse(ctx)
	if err != nil {
		return err
	}

	if gjson.GetBytes(raw, "res").Str == "error" {
		return &ServerError{Detail: gjson.GetBytes(raw, "error").Str}
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
	}
	return nil
}

// ack reads one reply and requires res "ok".
func (c *Client) ack(ctx context.Context) error {
	raw, err := c.readResponse(ctx)
	if err != nil {
		return err
	}
	res := gjson.GetBytes(raw, "res").Str
	if res == "error" {
		return &ServerError{Detail: gjson.GetBytes(raw, "error").Str}
	}
	if res != "ok" {
		return ErrInvalidResponse
	}
	return nil
}
