// Package testhelpers provides WebSocket and HTTP utilities shared by the
// bridge's package tests.
//
// The helpers speak the bridge's envelope protocol so tests can act as a
// game-side plugin: dial, authenticate, send frames and read replies.
package testhelpers

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/mcbridge/internal/protocol"
)

// DefaultTimeout bounds every blocking helper.
const DefaultTimeout = 5 * time.Second

// WebSocketURL turns an http(s) base URL or a bare host:port into a ws URL
// for path.
func WebSocketURL(base, path string) string {
	switch {
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case !strings.HasPrefix(base, "ws://") && !strings.HasPrefix(base, "wss://"):
		base = "ws://" + base
	}
	return strings.TrimSuffix(base, "/") + path
}

// ConnectWebSocket dials url without an Origin header, the way a game-side
// plugin does.
func ConnectWebSocket(url string) (*websocket.Conn, error) {
	return ConnectWebSocketWithHeader(url, nil)
}

// ConnectWebSocketWithHeader dials url with the given request headers.
func ConnectWebSocketWithHeader(url string, header http.Header) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: DefaultTimeout,
	}

	conn, resp, err := dialer.Dial(url, header)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// MustConnect dials url and registers the connection for cleanup.
func MustConnect(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, err := ConnectWebSocket(url)
	require.NoError(t, err, "dialing %s", url)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// SendEnvelope encodes env and writes it as one text frame.
func SendEnvelope(conn *websocket.Conn, env protocol.Envelope) error {
	data, err := protocol.Encode(env)
	if err != nil {
		return err
	}
	return SendRawMessage(conn, data)
}

// SendRawMessage writes data as one text frame.
func SendRawMessage(conn *websocket.Conn, data []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(DefaultTimeout)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// ReceiveRawMessage reads one frame, waiting at most timeout.
func ReceiveRawMessage(conn *websocket.Conn, timeout time.Duration) ([]byte, error) {
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	_, data, err := conn.ReadMessage()
	return data, err
}

// ReceiveEnvelope reads and decodes one frame.
func ReceiveEnvelope(conn *websocket.Conn) (protocol.Envelope, error) {
	data, err := ReceiveRawMessage(conn, DefaultTimeout)
	if err != nil {
		return nil, err
	}
	return protocol.Decode(data)
}

// MustReceive reads one envelope and asserts its concrete type.
func MustReceive[T protocol.Envelope](t *testing.T, conn *websocket.Conn) T {
	t.Helper()
	env, err := ReceiveEnvelope(conn)
	require.NoError(t, err)
	got, ok := env.(T)
	require.Truef(t, ok, "expected %T, got %T", *new(T), env)
	return got
}

// Authenticate sends an auth frame and returns the server's answer.
func Authenticate(conn *websocket.Conn, token, name string) (*protocol.AuthResponse, error) {
	if err := SendEnvelope(conn, &protocol.Auth{Token: token, Name: name}); err != nil {
		return nil, err
	}
	env, err := ReceiveEnvelope(conn)
	if err != nil {
		return nil, err
	}
	resp, ok := env.(*protocol.AuthResponse)
	if !ok {
		return nil, &protocol.DecodeError{Reason: "expected auth_response, got " + string(env.Type())}
	}
	return resp, nil
}

// MustAuthenticate dials url and completes a successful handshake.
func MustAuthenticate(t *testing.T, url, token, name string) *websocket.Conn {
	t.Helper()
	conn := MustConnect(t, url)
	resp, err := Authenticate(conn, token, name)
	require.NoError(t, err)
	require.Equal(t, protocol.StatusSuccess, resp.Status)
	return conn
}

// ExpectNoMessage asserts that nothing arrives on conn within timeout. A
// timed-out gorilla connection cannot be read again, so this must be the last
// read on conn.
func ExpectNoMessage(t *testing.T, conn *websocket.Conn, timeout time.Duration) {
	t.Helper()
	_, err := ReceiveRawMessage(conn, timeout)
	require.Error(t, err, "expected no message")
	var netErr net.Error
	require.ErrorAs(t, err, &netErr)
	require.True(t, netErr.Timeout(), "expected read timeout, got %v", err)
}

// ExpectClosed asserts that the server closes conn within timeout.
func ExpectClosed(t *testing.T, conn *websocket.Conn, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		_, err := ReceiveRawMessage(conn, time.Until(deadline))
		if err == nil {
			continue
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			break
		}
		return
	}
	t.Fatalf("connection still open after %s", timeout)
}

// CloseWebSocket sends a normal close frame and closes conn.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	if err != nil {
		return err
	}
	return conn.Close()
}

// Context returns a context bounded by DefaultTimeout and cancelled at
// test cleanup.
func Context(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	t.Cleanup(cancel)
	return ctx
}
