// Package relay forwards game-side events to the chat platform.
package relay

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Sender delivers text to a single chat conversation.
type Sender interface {
	Send(ctx context.Context, destination, text string) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, destination, text string) error

// Send calls f.
func (f SenderFunc) Send(ctx context.Context, destination, text string) error {
	return f(ctx, destination, text)
}

const prefix = "[服务器消息] "

// ChatLine formats an in-game chat message for the chat side.
func ChatLine(player, content string) string {
	return fmt.Sprintf("%s%s: %s", prefix, player, content)
}

// JoinLine formats a player join notice.
func JoinLine(player string) string {
	return fmt.Sprintf("%s%s 加入了服务器", prefix, player)
}

// QuitLine formats a player quit notice.
func QuitLine(player string) string {
	return fmt.Sprintf("%s%s 退出了服务器", prefix, player)
}

// Relay fans formatted text out to every configured destination.
type Relay struct {
	sender       Sender
	destinations []string
	logger       *zap.Logger
	onDeliver    func(ok bool)
}

// Option customizes a Relay.
type Option func(*Relay)

// WithDeliveryHook registers a callback invoked after every delivery attempt.
func WithDeliveryHook(fn func(ok bool)) Option {
	return func(r *Relay) { r.onDeliver = fn }
}

// New creates a Relay. The destinations slice is copied.
func New(sender Sender, destinations []string, logger *zap.Logger, opts ...Option) *Relay {
	r := &Relay{
		sender:       sender,
		destinations: append([]string(nil), destinations...),
		logger:       logger.With(zap.String("component", "relay")),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Destinations returns a copy of the configured destination identifiers.
func (r *Relay) Destinations() []string {
	return append([]string(nil), r.destinations...)
}

// Relay delivers text once to each destination. Empty text is dropped and
// delivery failures are logged; neither is reported to the caller.
func (r *Relay) Relay(ctx context.Context, text string) {
	if text == "" {
		r.logger.Warn("empty message, not relaying")
		return
	}

	if len(r.destinations) == 0 {
		r.logger.Debug("no chat destinations configured", zap.String("text", text))
		return
	}

	for _, dest := range r.destinations {
		r.logger.Info("relaying to chat",
			zap.String("destination", dest),
			zap.String("text", text),
		)
		err := r.sender.Send(ctx, dest, text)
		if err != nil {
			r.logger.Error("relay delivery failed",
				zap.String("destination", dest),
				zap.Error(err),
			)
		}
		if r.onDeliver != nil {
			r.onDeliver(err == nil)
		}
	}
}
