// Package server fans chat-originated broadcasts and commands out to the
// registered game-side connections.
package server

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Tyrowin/mcbridge/internal/observability"
	"github.com/Tyrowin/mcbridge/internal/protocol"
)

const (
	kindBroadcast = "broadcast"
	kindCommand   = "command"
)

// Dispatcher sends envelopes to every registered connection. Each call works
// on a snapshot of the registry; peers whose send fails are removed and
// closed once the whole snapshot has been visited.
type Dispatcher struct {
	registry *Registry
	logger   *zap.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

// NewDispatcher creates a dispatcher over registry. metrics may be nil.
func NewDispatcher(registry *Registry, logger *zap.Logger, metrics *observability.Metrics) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		logger:   logger.With(zap.String("component", "dispatcher")),
		metrics:  metrics,
		now:      time.Now,
	}
}

// Broadcast sends text to every registered connection. An empty registry is
// logged and otherwise ignored.
func (d *Dispatcher) Broadcast(ctx context.Context, text string) {
	peers := d.registry.Snapshot()
	if len(peers) == 0 {
		d.logger.Warn("no game servers connected, broadcast skipped")
		return
	}
	d.send(ctx, kindBroadcast, peers, &protocol.Broadcast{Content: text, Timestamp: d.timestamp()})
}

// BroadcastTo sends text to the connections labelled name.
func (d *Dispatcher) BroadcastTo(ctx context.Context, name, text string) {
	peers := d.registry.Named(name)
	if len(peers) == 0 {
		d.logger.Warn("no game server with that name, broadcast skipped", zap.String("server", name))
		return
	}
	d.send(ctx, kindBroadcast, peers, &protocol.Broadcast{Content: text, Timestamp: d.timestamp()})
}

// SendCommand sends a command to every registered connection. It reports
// whether at least one connection accepted it; an empty registry is a failure.
func (d *Dispatcher) SendCommand(ctx context.Context, command string) bool {
	peers := d.registry.Snapshot()
	if len(peers) == 0 {
		d.logger.Error("command not sent", zap.String("command", command), zap.Error(ErrNoConnections))
		return false
	}
	return d.send(ctx, kindCommand, peers, &protocol.MinecraftCommand{Command: command, Timestamp: d.timestamp()}) > 0
}

// SendCommandTo sends a command to the connections labelled name.
func (d *Dispatcher) SendCommandTo(ctx context.Context, name, command string) bool {
	peers := d.registry.Named(name)
	if len(peers) == 0 {
		d.logger.Error("command not sent",
			zap.String("server", name),
			zap.String("command", command),
			zap.Error(ErrNoConnections),
		)
		return false
	}
	return d.send(ctx, kindCommand, peers, &protocol.MinecraftCommand{Command: command, Timestamp: d.timestamp()}) > 0
}

// send delivers env to each peer and returns how many sends succeeded. A
// cancelled ctx stops the iteration early; unvisited peers are left alone.
func (d *Dispatcher) send(ctx context.Context, kind string, peers []Peer, env protocol.Envelope) int {
	var failed []Peer
	delivered := 0

	for _, p := range peers {
		if ctx.Err() != nil {
			d.logger.Warn("dispatch cancelled", zap.String("kind", kind), zap.Error(ctx.Err()))
			break
		}
		if err := p.Send(env); err != nil {
			d.logger.Error("send failed, dropping connection",
				zap.String("kind", kind),
				zap.String("conn_id", p.ID()),
				zap.String("server", p.Name()),
				zap.Error(err),
			)
			failed = append(failed, p)
			d.count(kind, false)
			continue
		}
		delivered++
		d.count(kind, true)
	}

	// Failed peers are only unregistered. The connection goroutine owns the
	// transport and closes it once its read fails or the pong deadline passes.
	d.registry.RemoveAll(failed)

	d.logger.Info("dispatched",
		zap.String("kind", kind),
		zap.Int("targets", len(peers)),
		zap.Int("delivered", delivered),
	)
	return delivered
}

func (d *Dispatcher) timestamp() float64 {
	return float64(d.now().UnixNano()) / float64(time.Second)
}

func (d *Dispatcher) count(kind string, ok bool) {
	if d.metrics != nil {
		d.metrics.Dispatches.WithLabelValues(kind, observability.Result(ok)).Inc()
	}
}
