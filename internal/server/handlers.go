// Package server exposes HTTP handlers: WebSocket upgrades, health checks
// and a JSON view of the connected game servers.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// RootHandler upgrades WebSocket requests on "/" and answers anything else
// with the health check.
func (s *Server) RootHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if websocket.IsWebSocketUpgrade(r) {
		s.WebSocketHandler(w, r)
		return
	}
	s.HealthHandler(w, r)
}

// WebSocketHandler upgrades the request and runs the connection until it
// ends. The handler goroutine owns the connection for its whole life.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}
	if !s.Running() {
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	client := NewClient(conn, r.RemoteAddr, s.cfg, s.logger)
	ctx, ok := s.track(client)
	if !ok {
		_ = client.Close()
		return
	}
	defer s.untrack(client)

	client.logger.Debug("connection accepted")
	s.serveClient(ctx, client)
}

// HealthHandler reports that the bridge is up and how many game servers are
// connected.
func (s *Server) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprintf(w, "mcbridge is %s, %d game server(s) connected\n", s.State(), s.registry.Len())
}

type peerStatus struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	RemoteAddr string `json:"remote_addr"`
}

type serverStatus struct {
	State       string       `json:"state"`
	Connections []peerStatus `json:"connections"`
}

// StatusHandler lists the registered game servers in admission order.
func (s *Server) StatusHandler(w http.ResponseWriter, _ *http.Request) {
	peers := s.registry.Snapshot()
	status := serverStatus{
		State:       s.State().String(),
		Connections: make([]peerStatus, 0, len(peers)),
	}
	for _, p := range peers {
		status.Connections = append(status.Connections, peerStatus{
			ID:         p.ID(),
			Name:       p.Name(),
			RemoteAddr: p.RemoteAddr(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.logger.Error("error writing status response", zap.Error(err))
	}
}
