// Package server constructs, serves and shuts down the HTTP listener that
// carries the WebSocket endpoint.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// CreateServer creates an HTTP server for handler. Upgraded WebSocket
// connections manage their own deadlines, so the timeouts here only bound
// the HTTP phase of each request.
func CreateServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// StartServer serves server on ln until it is shut down. A clean shutdown
// returns nil.
func StartServer(server *http.Server, ln net.Listener, logger *zap.Logger) error {
	logger.Info("listening for game servers", zap.String("addr", ln.Addr().String()))
	if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ShutdownServer stops server from accepting new requests and waits for
// in-flight HTTP requests, bounded by ctx.
func ShutdownServer(ctx context.Context, server *http.Server, logger *zap.Logger) error {
	logger.Info("shutting down HTTP server")

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
		return err
	}

	logger.Info("HTTP server shutdown completed")
	return nil
}
