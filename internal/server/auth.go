// Package server checks the first frame of every connection in the Gate.
package server

import (
	"crypto/subtle"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/Tyrowin/mcbridge/internal/config"
	"github.com/Tyrowin/mcbridge/internal/protocol"
)

const (
	authSuccessMessage = "Authentication successful"
	authFailureMessage = "Invalid token"
)

// Gate validates the credential a game-side client presents in its first
// frame. It performs no I/O; the caller reads the frame, writes the reply
// and decides what to do with the connection.
type Gate struct {
	token []byte
	hash  []byte
}

// NewGate builds a gate from the listener configuration. A configured
// TokenHash takes precedence over the plain Token.
func NewGate(cfg config.ServerConfig) *Gate {
	g := &Gate{}
	if cfg.TokenHash != "" {
		g.hash = []byte(cfg.TokenHash)
	} else {
		g.token = []byte(cfg.Token)
	}
	return g
}

// Verdict is the outcome of checking one auth frame.
type Verdict struct {
	// Auth is the accepted frame, nil on failure.
	Auth *protocol.Auth
	// Reply is the frame to send back, nil when no reply should be sent.
	Reply protocol.Envelope
	// Err is nil on success and wraps ErrAuthFailed otherwise.
	Err error
}

// Check validates frame. A frame that does not decode gets no reply; a
// decodable frame with the wrong type or token gets an error reply.
func (g *Gate) Check(frame []byte) Verdict {
	env, err := protocol.Decode(frame)
	if err != nil {
		return Verdict{Err: errors.Join(ErrAuthFailed, err)}
	}

	auth, ok := env.(*protocol.Auth)
	if !ok || !g.valid(auth.Token) {
		return Verdict{
			Reply: &protocol.AuthResponse{Status: protocol.StatusError, Message: authFailureMessage},
			Err:   ErrAuthFailed,
		}
	}

	return Verdict{
		Auth:  auth,
		Reply: &protocol.AuthResponse{Status: protocol.StatusSuccess, Message: authSuccessMessage},
	}
}

func (g *Gate) valid(token string) bool {
	if g.hash != nil {
		return bcrypt.CompareHashAndPassword(g.hash, []byte(token)) == nil
	}
	if len(g.token) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(g.token, []byte(token)) == 1
}
