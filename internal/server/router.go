// Package server routes decoded frames from authenticated connections.
package server

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/Tyrowin/mcbridge/internal/observability"
	"github.com/Tyrowin/mcbridge/internal/protocol"
	"github.com/Tyrowin/mcbridge/internal/relay"
)

const invalidFrameMessage = "Invalid JSON format"

// Relayer receives formatted game-side events bound for the chat platform.
type Relayer interface {
	Relay(ctx context.Context, text string)
}

// Router handles one inbound frame at a time for a single connection.
type Router struct {
	relay   Relayer
	metrics *observability.Metrics
}

// NewRouter creates a router forwarding game events to r. metrics may be nil.
func NewRouter(r Relayer, metrics *observability.Metrics) *Router {
	return &Router{relay: r, metrics: metrics}
}

// Route decodes frame and acts on it. Replies go back through p; relay
// events go to the chat side. Reply failures are returned so the caller can
// decide whether the connection is still usable.
func (rt *Router) Route(ctx context.Context, p Peer, frame []byte, logger *zap.Logger) error {
	env, err := protocol.Decode(frame)
	if err != nil {
		var decodeErr *protocol.DecodeError
		if errors.As(err, &decodeErr) {
			logger.Warn("invalid frame", zap.String("reason", decodeErr.Reason))
		}
		rt.count("invalid")
		return p.Send(&protocol.Error{Message: invalidFrameMessage})
	}
	rt.count(string(env.Type()))

	switch e := env.(type) {
	case *protocol.Ping:
		return p.Send(&protocol.Pong{Timestamp: e.Timestamp})
	case *protocol.Echo:
		return p.Send(&protocol.EchoResponse{Content: e.Content, Timestamp: e.Timestamp})
	case *protocol.MinecraftChat:
		logger.Debug("chat from game", zap.String("player", e.Player))
		rt.relay.Relay(ctx, relay.ChatLine(e.Player, e.Content))
		return nil
	case *protocol.PlayerJoin:
		logger.Info("player joined", zap.String("player", e.Player))
		rt.relay.Relay(ctx, relay.JoinLine(e.Player))
		return nil
	case *protocol.PlayerQuit:
		logger.Info("player quit", zap.String("player", e.Player))
		rt.relay.Relay(ctx, relay.QuitLine(e.Player))
		return nil
	default:
		logger.Debug("unhandled message type", zap.String("type", string(env.Type())))
		return p.Send(&protocol.MessageResponse{
			Status:       protocol.StatusReceived,
			OriginalType: string(env.Type()),
		})
	}
}

func (rt *Router) count(kind string) {
	if rt.metrics != nil {
		rt.metrics.FramesReceived.WithLabelValues(kind).Inc()
	}
}
