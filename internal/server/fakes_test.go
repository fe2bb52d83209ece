package server

import (
	"context"
	"errors"
	"sync"

	"github.com/Tyrowin/mcbridge/internal/protocol"
)

var errBrokenPipe = errors.New("write: broken pipe")

// fakePeer records what is sent to it and optionally fails every send.
type fakePeer struct {
	id      string
	name    string
	sendErr error

	mu     sync.Mutex
	sent   []protocol.Envelope
	closes int
}

func newFakePeer(id string) *fakePeer {
	return &fakePeer{id: id, name: id}
}

func (p *fakePeer) ID() string         { return p.id }
func (p *fakePeer) Name() string       { return p.name }
func (p *fakePeer) RemoteAddr() string { return "198.51.100.7:25565" }

func (p *fakePeer) Send(env protocol.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sendErr != nil {
		return p.sendErr
	}
	p.sent = append(p.sent, env)
	return nil
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closes++
	return nil
}

func (p *fakePeer) Sent() []protocol.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]protocol.Envelope(nil), p.sent...)
}

func (p *fakePeer) Closes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closes
}

// recordingRelay collects every relayed line.
type recordingRelay struct {
	mu    sync.Mutex
	lines []string
}

func (r *recordingRelay) Relay(_ context.Context, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, text)
}

func (r *recordingRelay) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}
