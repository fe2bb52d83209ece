// Package server implements the bridge's lifecycle: binding the listener,
// accepting game-side connections and shutting everything down.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Tyrowin/mcbridge/internal/config"
	"github.com/Tyrowin/mcbridge/internal/observability"
)

// State is a lifecycle phase of the Server.
type State int32

// Lifecycle phases, in the order a server moves through them.
const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Server accepts game-side WebSocket connections, authenticates them and
// routes their traffic. The zero value is not usable; call New.
type Server struct {
	cfg        config.ServerConfig
	logger     *zap.Logger
	metrics    *observability.Metrics
	gate       *Gate
	router     *Router
	registry   *Registry
	dispatcher *Dispatcher
	origins    *originPolicy
	upgrader   websocket.Upgrader
	mux        *http.ServeMux

	mu         sync.Mutex
	state      State
	httpServer *http.Server
	listener   net.Listener
	baseCtx    context.Context
	cancel     context.CancelFunc
	live       map[*Client]struct{}
	conns      sync.WaitGroup
	served     chan struct{}
}

// Option customizes a Server.
type Option func(*Server)

// WithMetrics records connection, frame and dispatch metrics into m and
// exposes them on /metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithRegistry makes the server admit connections into r instead of a
// private registry.
func WithRegistry(r *Registry) Option {
	return func(s *Server) { s.registry = r }
}

// New creates a stopped server. Game events arriving on authenticated
// connections are forwarded to relay.
func New(cfg config.ServerConfig, relay Relayer, logger *zap.Logger, opts ...Option) *Server {
	s := &Server{
		cfg:    sanitizeConfig(cfg),
		logger: logger.With(zap.String("component", "server")),
		live:   make(map[*Client]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = NewRegistry()
	}
	if s.metrics != nil {
		gauge := s.metrics.ActiveConnections
		s.registry.OnChange(func(count int) { gauge.Set(float64(count)) })
	}

	s.gate = NewGate(s.cfg)
	s.router = NewRouter(relay, s.metrics)
	s.dispatcher = NewDispatcher(s.registry, logger, s.metrics)
	s.origins = newOriginPolicy(s.cfg.AllowedOrigins, s.logger)
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.checkOrigin,
	}
	s.mux = s.routes()
	return s
}

// Registry returns the registry of authenticated connections.
func (s *Server) Registry() *Registry { return s.registry }

// Dispatcher returns the dispatcher bound to this server's registry.
func (s *Server) Dispatcher() *Dispatcher { return s.dispatcher }

// Handle registers an additional HTTP handler on the listener, next to the
// WebSocket endpoint.
func (s *Server) Handle(pattern string, handler http.Handler) {
	s.mux.Handle(pattern, handler)
}

// State returns the current lifecycle phase.
func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Running reports whether the server is accepting connections.
func (s *Server) Running() bool {
	return s.State() == StateRunning
}

// Addr returns the bound listen address, or "" when the server is not running.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Start binds the listen socket and begins accepting connections in the
// background. Bind failures are returned; Start never retries.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateStopped {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.state = StateStarting
	s.mu.Unlock()

	addr := s.cfg.Addr()
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		s.setState(StateStopped)
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	if s.cfg.TokenHash == "" && s.cfg.Token == config.DefaultToken {
		s.logger.Warn("using the default auth token, set server.token before exposing the bridge")
	}

	httpServer := CreateServer(ln.Addr().String(), s.mux)
	baseCtx, cancel := context.WithCancel(context.Background())
	served := make(chan struct{})

	s.mu.Lock()
	s.listener = ln
	s.httpServer = httpServer
	s.baseCtx = baseCtx
	s.cancel = cancel
	s.served = served
	s.state = StateRunning
	s.mu.Unlock()

	go func() {
		defer close(served)
		if err := StartServer(httpServer, ln, s.logger); err != nil {
			s.logger.Error("http server stopped unexpectedly", zap.Error(err))
		}
	}()

	return nil
}

// Stop closes every connection, stops accepting new ones and waits for the
// connection goroutines to exit or ctx to end. Calling Stop on a server that
// is not running is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return nil
	}
	s.state = StateStopping
	httpServer := s.httpServer
	served := s.served
	cancel := s.cancel
	pending := make([]*Client, 0, len(s.live))
	for c := range s.live {
		pending = append(pending, c)
	}
	s.mu.Unlock()

	s.logger.Info("stopping server", zap.Int("connections", s.registry.Len()))

	for _, p := range s.registry.Clear() {
		if err := p.Close(); err != nil {
			s.logger.Warn("error closing connection",
				zap.String("conn_id", p.ID()),
				zap.Error(err),
			)
		}
	}
	for _, c := range pending {
		_ = c.Close()
	}

	err := ShutdownServer(ctx, httpServer, s.logger)
	cancel()

	if waitErr := s.wait(ctx, served); waitErr != nil && err == nil {
		err = waitErr
	}

	s.mu.Lock()
	s.listener = nil
	s.httpServer = nil
	s.state = StateStopped
	s.mu.Unlock()

	s.logger.Info("server stopped")
	return err
}

func (s *Server) wait(ctx context.Context, served <-chan struct{}) error {
	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		<-served
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for connections: %w", ctx.Err())
	}
}

func (s *Server) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// track admits c into the live set. It fails once shutdown has begun so the
// wait group is never added to while Stop is waiting on it.
func (s *Server) track(c *Client) (context.Context, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRunning {
		return nil, false
	}
	s.live[c] = struct{}{}
	s.conns.Add(1)
	return s.baseCtx, true
}

func (s *Server) untrack(c *Client) {
	s.mu.Lock()
	delete(s.live, c)
	s.mu.Unlock()
	s.conns.Done()
}

// serveClient runs the auth gate and then the receive loop for c. It returns
// when the connection ends, after removing c from the registry and closing it.
func (s *Server) serveClient(ctx context.Context, c *Client) {
	defer func() {
		if err := c.Close(); err != nil {
			c.logger.Debug("error closing connection", zap.Error(err))
		}
	}()

	if !s.authenticate(c) {
		return
	}

	if !s.registry.Add(c) {
		c.logger.Error("connection id already registered")
		return
	}
	defer s.registry.Remove(c)

	c.logger.Info("game server connected", zap.Int("connections", s.registry.Len()))

	done := make(chan struct{})
	defer close(done)
	go c.keepalive(done)

	c.readLoop(func(c *Client, frame []byte) {
		if err := s.router.Route(ctx, c, frame, c.logger); err != nil && !isExpectedCloseError(err) {
			c.logger.Warn("failed to send reply", zap.Error(err))
		}
	})

	c.logger.Info("game server disconnected")
}

// authenticate reads exactly one frame within the auth deadline and answers
// it. It reports whether c may proceed to the receive loop.
func (s *Server) authenticate(c *Client) bool {
	frame, err := c.readFrame(s.cfg.AuthTimeout)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			c.logger.Warn("no auth frame before deadline", zap.Duration("timeout", s.cfg.AuthTimeout))
		} else {
			c.logger.Info("connection closed before authenticating", zap.Error(err))
		}
		s.countAuth(false)
		return false
	}

	verdict := s.gate.Check(frame)
	if verdict.Reply != nil {
		if err := c.Send(verdict.Reply); err != nil {
			c.logger.Warn("failed to send auth response", zap.Error(err))
			s.countAuth(false)
			return false
		}
	}
	if verdict.Err != nil {
		c.logger.Warn("authentication failed", zap.Error(verdict.Err))
		s.countAuth(false)
		return false
	}

	c.markAuthenticated(verdict.Auth.Name)
	s.countAuth(true)
	return true
}

func (s *Server) countAuth(ok bool) {
	if s.metrics != nil {
		s.metrics.AuthAttempts.WithLabelValues(observability.Result(ok)).Inc()
	}
}
