// Package server manages individual WebSocket clients, handling read/write
// pumps, envelope decoding, rate limiting, and lifecycle control for each
// connection.
package server

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Tyrowin/roomrelay/internal/pool"
	"github.com/Tyrowin/roomrelay/internal/protocol"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Client is one relay connection. The hub goroutine owns its membership,
// its send channel and the closed flag; the pumps only touch the socket.
type Client struct {
	id      string
	conn    *websocket.Conn
	send    chan []byte
	hub     *Hub
	addr    string
	closed  bool
	limiter *frameLimiter
	logger  *slog.Logger
}

// NewClient creates a Client for an upgraded connection. conn may be nil in
// tests that never start the pumps.
func NewClient(conn *websocket.Conn, hub *Hub, addr string, cfg Config) *Client {
	cfg = cfg.Sanitize()
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	id := uuid.NewString()
	return &Client{
		id:      id,
		conn:    conn,
		send:    make(chan []byte, cfg.SendBufferSize),
		hub:     hub,
		addr:    addr,
		limiter: newFrameLimiter(cfg.RateLimit),
		logger:  hub.logger.With("conn", id, "addr", addr),
	}
}

// ID returns the connection's log identifier.
func (c *Client) ID() string {
	return c.id
}

// Send queues a frame without blocking. It must only be called from the hub
// goroutine.
func (c *Client) Send(frame []byte) error {
	if c.closed {
		return pool.ErrPeerClosed
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return pool.ErrSendBufferFull
	}
}

// GetSendChan returns the client's send channel for reading outgoing frames.
func (c *Client) GetSendChan() <-chan []byte {
	return c.send
}

// closeSend stops the write pump, which then sends a normal-closure frame.
// Hub goroutine only.
func (c *Client) closeSend() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Warn("setting initial read deadline", "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.logger.Warn("setting read deadline in pong handler", "error", err)
		}
		return nil
	})
}

// logReadError records why the read loop stopped.
func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.logger.Warn("frame exceeded maximum size", "error", err)
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		c.logger.Info("client disconnected", "error", err)
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.logger.Info("client connection closed", "error", err)
	case websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure):
		c.logger.Warn("unexpected websocket close", "error", err)
	default:
		c.logger.Warn("websocket read error", "error", err)
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregisterClient(c)
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.logger.Warn("closing connection in readPump", "error", err)
		}
	}()

	c.setupReadConnection()

	for {
		messageType, frame, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}

		if messageType != websocket.TextMessage {
			c.logger.Debug("ignoring non-text frame", "type", messageType, "bytes", len(frame))
			continue
		}

		if !c.limiter.allow() {
			c.logger.Warn("rate limit exceeded; discarding frame")
			continue
		}

		env, err := protocol.Decode(frame)
		if err != nil {
			c.logger.Warn("invalid frame; closing connection", "error", err)
			c.writeNormalClosure()
			return
		}

		if !c.hub.deliver(c, env, frame) {
			return
		}
	}
}

// writeNormalClosure sends a close frame from the read side. WriteControl
// may run concurrently with the write pump.
func (c *Client) writeNormalClosure() {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil && !isExpectedCloseError(err) {
		c.logger.Warn("writing close frame", "error", err)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case frame, ok := <-c.send:
		return c.handleFrame(frame, ok)
	case <-ticker.C:
		return c.handlePing()
	}
}

func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.logger.Warn("closing connection in writePump", "error", err)
	}
}

// handleFrame writes one outgoing frame and returns false if the connection
// should be closed.
func (c *Client) handleFrame(frame []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Warn("setting write deadline", "error", err)
		return false
	}

	if !ok {
		return c.writeCloseMessage()
	}

	// One envelope per websocket message; clients parse each frame as a
	// single JSON object, so queued frames are not coalesced.
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		if !isExpectedCloseError(err) {
			c.logger.Warn("writing frame", "error", err)
		}
		return false
	}
	return true
}

func (c *Client) writeCloseMessage() bool {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := c.conn.WriteMessage(websocket.CloseMessage, msg); err != nil && !isExpectedCloseError(err) {
		c.logger.Warn("writing close message", "error", err)
	}
	return false
}

func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Warn("setting write deadline for ping", "error", err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Warn("writing ping", "error", err)
		return false
	}
	return true
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, websocket.ErrCloseSent) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "broken pipe")
}
