// Package server manages individual WebSocket clients: their identity, the
// outbound queue, the writer pump, and liveness state.
package server

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Transport is the part of *websocket.Conn a Client needs.
type Transport interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
	SetWriteDeadline(t time.Time) error
	Close() error
	RemoteAddr() net.Addr
}

var _ Transport = (*websocket.Conn)(nil)

// Client is the connection record for one participant. The id is fixed once
// the client is registered; the nickname is written only through the Registry.
type Client struct {
	id        string
	cid       string
	addr      string
	conn      Transport
	send      chan []byte
	done      chan struct{}
	alive     atomic.Bool
	closeOnce sync.Once
	log       *zap.Logger
	baseLog   *zap.Logger

	nickMu   sync.RWMutex
	nickname string

	writeTimeout time.Duration
}

// NewClient creates a Client for an accepted transport. A client built with a
// nil conn only has a queue: it can be registered and receive broadcasts, but
// Hub.Attach rejects it with ErrNoTransport.
func NewClient(conn Transport, id, addr, correlationID string, cfg *Config, log *zap.Logger) *Client {
	if cfg == nil {
		cfg = NewConfig()
	}
	if log == nil {
		log = zap.NewNop()
	}
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	c := &Client{
		cid:          correlationID,
		addr:         addr,
		conn:         conn,
		send:         make(chan []byte, cfg.SendBufferSize),
		done:         make(chan struct{}),
		baseLog:      log,
		writeTimeout: cfg.WriteTimeout,
	}
	c.setID(id)
	c.alive.Store(true)
	return c
}

// setID assigns the identity and the default nickname. Only valid before
// the client is registered.
func (c *Client) setID(id string) {
	c.id = id
	c.nickname = defaultNickname(id)
	c.log = c.baseLog.With(
		zap.String("id", id),
		zap.String("cid", c.cid),
		zap.String("addr", c.addr),
	)
}

// ID returns the client identity.
func (c *Client) ID() string { return c.id }

// Nickname returns the current display name.
func (c *Client) Nickname() string {
	c.nickMu.RLock()
	defer c.nickMu.RUnlock()
	return c.nickname
}

func (c *Client) setNickname(nickname string) {
	c.nickMu.Lock()
	c.nickname = nickname
	c.nickMu.Unlock()
}

// IsAlive reports whether the client answered the last liveness probe.
func (c *Client) IsAlive() bool { return c.alive.Load() }

func (c *Client) markAlive() { c.alive.Store(true) }

// isClosed reports whether close has been called.
func (c *Client) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// enqueue queues a frame without blocking. It returns false if the client
// is closed or its queue is full.
func (c *Client) enqueue(frame []byte) bool {
	if c.isClosed() {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// close marks the record closed and stops the writer. Idempotent.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// terminate drops the transport without a close handshake. The reader
// observes the failure and runs the normal close path.
func (c *Client) terminate() {
	if c.conn == nil {
		return
	}
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.log.Warn("error terminating connection", zap.Error(err))
	}
}

// ping writes a liveness probe. WriteControl is safe alongside the writer.
func (c *Client) ping(timeout time.Duration) error {
	if c.conn == nil {
		return ErrNoTransport
	}
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(timeout))
}

// writePump drains the outbound queue onto the transport, one frame per
// message, until the client is closed or a write fails.
func (c *Client) writePump() {
	defer c.closeConnection()

	for {
		select {
		case frame := <-c.send:
			if !c.writeTextMessage(frame) {
				c.terminate()
				return
			}
		case <-c.done:
			c.writeCloseMessage()
			return
		}
	}
}

// writeTextMessage writes a single event frame
func (c *Client) writeTextMessage(frame []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		c.log.Warn("error setting write deadline", zap.Error(err))
		return false
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn("error writing message", zap.Error(err))
		}
		return false
	}
	return true
}

// writeCloseMessage sends a close frame to the client
func (c *Client) writeCloseMessage() {
	deadline := time.Now().Add(c.writeTimeout)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := c.conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Debug("error writing close message", zap.Error(err))
		}
	}
}

// closeConnection safely closes the WebSocket connection with proper error handling
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn("error closing connection in writePump", zap.Error(err))
		}
	}
}
