// Package server wires the bridge's HTTP handlers into a ServeMux.
package server

import "net/http"

// routes builds the mux served on the listen address. The root path accepts
// WebSocket upgrades so game-side plugins can connect to ws://host:port/.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.RootHandler)
	mux.HandleFunc("/ws", s.WebSocketHandler)
	mux.HandleFunc("/healthz", s.HealthHandler)
	mux.HandleFunc("/status", s.StatusHandler)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}
	return mux
}
