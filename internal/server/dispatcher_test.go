package server

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Tyrowin/mcbridge/internal/observability"
	"github.com/Tyrowin/mcbridge/internal/protocol"
)

func newTestDispatcher(t *testing.T, peers ...*fakePeer) (*Dispatcher, *Registry) {
	t.Helper()
	r := NewRegistry()
	for _, p := range peers {
		require.True(t, r.Add(p))
	}
	d := NewDispatcher(r, zaptest.NewLogger(t), nil)
	d.now = func() time.Time { return time.Unix(1700000000, 500_000_000) }
	return d, r
}

func TestBroadcastEmptyRegistryIsNoop(t *testing.T) {
	d, r := newTestDispatcher(t)
	d.Broadcast(context.Background(), "hello")
	assert.Equal(t, 0, r.Len())
}

func TestSendCommandEmptyRegistryFails(t *testing.T) {
	d, _ := newTestDispatcher(t)
	assert.False(t, d.SendCommand(context.Background(), "time set day"))
}

// TestBroadcastIsolatesFailedPeer covers three targets where the second one
// fails: the others still receive the broadcast and only the failing peer
// leaves the registry.
func TestBroadcastIsolatesFailedPeer(t *testing.T) {
	first, second, third := newFakePeer("1"), newFakePeer("2"), newFakePeer("3")
	second.sendErr = errBrokenPipe
	d, r := newTestDispatcher(t, first, second, third)

	d.Broadcast(context.Background(), "server restarting")

	for _, p := range []*fakePeer{first, third} {
		sent := p.Sent()
		require.Len(t, sent, 1, "peer %s", p.id)
		b, ok := sent[0].(*protocol.Broadcast)
		require.True(t, ok)
		assert.Equal(t, "server restarting", b.Content)
		assert.InDelta(t, 1700000000.5, b.Timestamp, 1e-6)
		assert.Equal(t, 0, p.Closes())
	}

	assert.Empty(t, second.Sent())
	assert.Equal(t, 0, second.Closes(), "the transport stays with its connection goroutine")
	assert.Equal(t, []string{"1", "3"}, ids(r.Snapshot()))
}

func TestSendCommandReachesAllPeers(t *testing.T) {
	a, b := newFakePeer("a"), newFakePeer("b")
	d, _ := newTestDispatcher(t, a, b)

	require.True(t, d.SendCommand(context.Background(), "time set day"))

	for _, p := range []*fakePeer{a, b} {
		sent := p.Sent()
		require.Len(t, sent, 1)
		cmd, ok := sent[0].(*protocol.MinecraftCommand)
		require.True(t, ok)
		assert.Equal(t, "time set day", cmd.Command)
	}
}

func TestSendCommandSucceedsIfAnyPeerAccepts(t *testing.T) {
	bad, good := newFakePeer("bad"), newFakePeer("good")
	bad.sendErr = errBrokenPipe
	d, r := newTestDispatcher(t, bad, good)

	assert.True(t, d.SendCommand(context.Background(), "say hi"))
	assert.Equal(t, []string{"good"}, ids(r.Snapshot()))
}

func TestSendCommandFailsIfEveryPeerFails(t *testing.T) {
	a, b := newFakePeer("a"), newFakePeer("b")
	a.sendErr = errBrokenPipe
	b.sendErr = ErrPeerClosed
	d, r := newTestDispatcher(t, a, b)

	assert.False(t, d.SendCommand(context.Background(), "stop"))
	assert.Equal(t, 0, r.Len())
}

func TestTargetedDispatch(t *testing.T) {
	lobby, survival := newFakePeer("1"), newFakePeer("2")
	lobby.name = "lobby"
	survival.name = "survival"
	d, _ := newTestDispatcher(t, lobby, survival)
	ctx := context.Background()

	d.BroadcastTo(ctx, "lobby", "welcome")
	assert.True(t, d.SendCommandTo(ctx, "survival", "weather clear"))
	assert.False(t, d.SendCommandTo(ctx, "creative", "weather clear"))

	require.Len(t, lobby.Sent(), 1)
	assert.IsType(t, &protocol.Broadcast{}, lobby.Sent()[0])
	require.Len(t, survival.Sent(), 1)
	assert.IsType(t, &protocol.MinecraftCommand{}, survival.Sent()[0])
}

func TestDispatchStopsOnCancelledContext(t *testing.T) {
	a := newFakePeer("a")
	d, r := newTestDispatcher(t, a)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.False(t, d.SendCommand(ctx, "stop"))
	assert.Empty(t, a.Sent())
	assert.Equal(t, 1, r.Len(), "unvisited peers stay registered")
}

func TestDispatchMetrics(t *testing.T) {
	ok, bad := newFakePeer("ok"), newFakePeer("bad")
	bad.sendErr = errBrokenPipe
	r := NewRegistry()
	r.Add(ok)
	r.Add(bad)
	m := observability.NewMetrics()
	d := NewDispatcher(r, zaptest.NewLogger(t), m)

	d.Broadcast(context.Background(), "hi")

	assert.InDelta(t, 1, testutil.ToFloat64(m.Dispatches.WithLabelValues(kindBroadcast, "ok")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Dispatches.WithLabelValues(kindBroadcast, "failed")), 0)
}
