// Package server manages individual game-side WebSocket connections: writes,
// the receive loop, keepalive pings and close handling.
package server

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Tyrowin/mcbridge/internal/config"
	"github.com/Tyrowin/mcbridge/internal/protocol"
)

// Client is one accepted WebSocket connection. The goroutine that accepted
// it owns the transport; the registry only holds a reference once the client
// has authenticated.
type Client struct {
	conn   *websocket.Conn
	id     string
	addr   string
	logger *zap.Logger

	writeTimeout time.Duration
	pongWait     time.Duration
	pingInterval time.Duration
	rateLimiter  *rateLimiter

	mu            sync.RWMutex
	name          string
	authenticated bool
	connectedAt   time.Time

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

// NewClient wraps an upgraded connection. The connection's read limit is set
// from cfg.MaxMessageSize.
func NewClient(conn *websocket.Conn, addr string, cfg config.ServerConfig, logger *zap.Logger) *Client {
	id := uuid.NewString()
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	return &Client{
		conn:         conn,
		id:           id,
		addr:         addr,
		name:         addr,
		logger:       logger.With(zap.String("conn_id", id), zap.String("remote_addr", addr)),
		writeTimeout: cfg.WriteTimeout,
		pongWait:     cfg.PongWait,
		pingInterval: cfg.PingInterval,
		rateLimiter:  newRateLimiter(cfg.RateLimit),
		connectedAt:  time.Now(),
		closed:       make(chan struct{}),
	}
}

// ID returns the connection's unique identifier.
func (c *Client) ID() string { return c.id }

// RemoteAddr returns the peer address the connection was accepted from.
func (c *Client) RemoteAddr() string { return c.addr }

// Name returns the server label announced at authentication.
func (c *Client) Name() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.name
}

// ConnectedAt returns when the connection was accepted.
func (c *Client) ConnectedAt() time.Time { return c.connectedAt }

// Authenticated reports whether the client passed the gate.
func (c *Client) Authenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authenticated
}

func (c *Client) markAuthenticated(name string) {
	c.mu.Lock()
	c.authenticated = true
	if name != "" {
		c.name = name
	}
	c.mu.Unlock()

	c.logger = c.logger.With(zap.String("server", c.Name()))
}

// Send encodes env and writes it as one text frame. Writes are serialized so
// replies from the receive loop and concurrent dispatches never interleave
// inside a frame.
func (c *Client) Send(env protocol.Envelope) error {
	data, err := protocol.Encode(env)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.closed:
		return ErrPeerClosed
	default:
	}

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Close releases the transport. It is safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	if err != nil && isExpectedCloseError(err) {
		return nil
	}
	return err
}

// readFrame reads the next data frame, waiting at most timeout.
func (c *Client) readFrame(timeout time.Duration) ([]byte, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	_, data, err := c.conn.ReadMessage()
	return data, err
}

// setupReadConnection configures the steady-state read deadline and the pong
// handler that extends it.
func (c *Client) setupReadConnection() {
	c.extendReadDeadline()
	c.conn.SetPongHandler(func(string) error {
		c.extendReadDeadline()
		return nil
	})
}

func (c *Client) extendReadDeadline() {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.pongWait)); err != nil {
		c.logger.Debug("error setting read deadline", zap.Error(err))
	}
}

// readLoop receives frames until the transport fails or closes, handing each
// one to route. Frames are processed in arrival order.
func (c *Client) readLoop(route func(c *Client, frame []byte)) {
	c.setupReadConnection()

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}
		c.extendReadDeadline()

		if !c.checkRateLimit() {
			continue
		}

		route(c, frame)
	}
}

// handleReadError logs why the receive loop ended. Normal closes are logged
// at info level; anything else is an error.
func (c *Client) handleReadError(err error) {
	if errors.Is(err, websocket.ErrReadLimit) {
		c.logger.Warn("message exceeded maximum size, closing connection")
		return
	}

	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		c.logger.Info("connection closed normally", zap.Error(err))
		return
	}

	select {
	case <-c.closed:
		c.logger.Info("connection closed by server")
		return
	default:
	}

	if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
		c.logger.Info("connection closed", zap.Error(err))
		return
	}

	c.logger.Error("connection failed", zap.Error(err))
}

// checkRateLimit reports whether the next frame may be processed.
func (c *Client) checkRateLimit() bool {
	if c.rateLimiter.allow() {
		return true
	}
	c.logger.Warn("rate limit exceeded, discarding frame",
		zap.Int("burst", c.rateLimiter.cfg.Burst),
		zap.Float64("per_second", c.rateLimiter.cfg.PerSecond),
	)
	return false
}

// keepalive pings the peer until done is closed or a ping fails.
func (c *Client) keepalive(done <-chan struct{}) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-c.closed:
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.writeTimeout)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				if !isExpectedCloseError(err) {
					c.logger.Debug("keepalive ping failed", zap.Error(err))
				}
				return
			}
		}
	}
}
