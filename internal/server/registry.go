// Package server tracks authenticated game-side connections in the Registry.
package server

import (
	"sort"
	"sync"
)

// Registry is the set of live, authenticated connections eligible for
// dispatch. It is safe for concurrent use. Callers iterate a Snapshot and
// apply removals afterwards rather than mutating during iteration.
type Registry struct {
	mu       sync.RWMutex
	peers    map[string]registered
	nextSeq  uint64
	onChange func(count int)
}

type registered struct {
	peer Peer
	seq  uint64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		peers: make(map[string]registered),
	}
}

// OnChange registers fn to be called with the new size after every
// membership change. It must be set before the registry is shared.
func (r *Registry) OnChange(fn func(count int)) {
	r.onChange = fn
}

// Add inserts p. It returns false if a peer with the same ID is already present.
func (r *Registry) Add(p Peer) bool {
	r.mu.Lock()
	if _, exists := r.peers[p.ID()]; exists {
		r.mu.Unlock()
		return false
	}
	r.nextSeq++
	r.peers[p.ID()] = registered{peer: p, seq: r.nextSeq}
	count := len(r.peers)
	r.mu.Unlock()

	r.changed(count)
	return true
}

// Remove deletes p if it is the registered instance for its ID.
func (r *Registry) Remove(p Peer) bool {
	return r.RemoveAll([]Peer{p}) == 1
}

// RemoveAll deletes every listed peer that is still registered and returns
// how many were removed.
func (r *Registry) RemoveAll(peers []Peer) int {
	if len(peers) == 0 {
		return 0
	}

	r.mu.Lock()
	removed := 0
	for _, p := range peers {
		if entry, ok := r.peers[p.ID()]; ok && entry.peer == p {
			delete(r.peers, p.ID())
			removed++
		}
	}
	count := len(r.peers)
	r.mu.Unlock()

	if removed > 0 {
		r.changed(count)
	}
	return removed
}

// Contains reports whether p is currently registered.
func (r *Registry) Contains(p Peer) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.peers[p.ID()]
	return ok && entry.peer == p
}

// Len returns the number of registered peers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// Snapshot returns the registered peers in admission order. The returned
// slice is owned by the caller.
func (r *Registry) Snapshot() []Peer {
	r.mu.RLock()
	peers := r.ordered()
	r.mu.RUnlock()
	return peers
}

// ordered must be called with r.mu held.
func (r *Registry) ordered() []Peer {
	entries := make([]registered, 0, len(r.peers))
	for _, entry := range r.peers {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	peers := make([]Peer, len(entries))
	for i, entry := range entries {
		peers[i] = entry.peer
	}
	return peers
}

// Named returns the snapshot filtered to peers whose Name equals name.
func (r *Registry) Named(name string) []Peer {
	all := r.Snapshot()
	peers := all[:0]
	for _, p := range all {
		if p.Name() == name {
			peers = append(peers, p)
		}
	}
	return peers
}

// Clear empties the registry and returns the peers it held, in admission order.
func (r *Registry) Clear() []Peer {
	r.mu.Lock()
	peers := r.ordered()
	r.peers = make(map[string]registered)
	r.mu.Unlock()

	r.changed(0)
	return peers
}

func (r *Registry) changed(count int) {
	if r.onChange != nil {
		r.onChange(count)
	}
}
