// Package server defines the peer abstraction shared by the registry, the
// dispatcher and the lifecycle manager, plus small error helpers.
package server

import (
	"errors"
	"strings"

	"github.com/Tyrowin/mcbridge/internal/protocol"
)

var (
	// ErrAuthFailed is returned when a connection does not pass the auth gate.
	ErrAuthFailed = errors.New("authentication failed")
	// ErrAlreadyRunning is returned by Start on a server that is not stopped.
	ErrAlreadyRunning = errors.New("server already running")
	// ErrPeerClosed is returned by Send on a closed connection.
	ErrPeerClosed = errors.New("connection closed")
	// ErrNoConnections reports a command with no game server to execute it.
	ErrNoConnections = errors.New("no game servers connected")
)

// Peer is an authenticated game-side connection as seen by the registry and
// the dispatcher. Neither of them owns the transport.
type Peer interface {
	// ID is unique for the lifetime of the process.
	ID() string
	// Name is the label the game server announced at authentication, or its
	// remote address when it announced none.
	Name() string
	RemoteAddr() string
	Send(env protocol.Envelope) error
	Close() error
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, ErrPeerClosed) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
