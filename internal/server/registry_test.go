package server

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func ids(peers []Peer) []string {
	out := make([]string, len(peers))
	for i, p := range peers {
		out[i] = p.ID()
	}
	return out
}

func TestRegistryAddRemove(t *testing.T) {
	r := NewRegistry()
	a, b := newFakePeer("a"), newFakePeer("b")

	require.True(t, r.Add(a))
	require.True(t, r.Add(b))
	assert.False(t, r.Add(a), "duplicate id must be rejected")
	assert.Equal(t, 2, r.Len())
	assert.True(t, r.Contains(a))

	assert.True(t, r.Remove(a))
	assert.False(t, r.Remove(a), "second remove is a no-op")
	assert.False(t, r.Contains(a))
	assert.Equal(t, []string{"b"}, ids(r.Snapshot()))
}

// TestRegistryRemoveOnlyRegisteredInstance verifies that a stale peer value
// sharing an id with the registered one cannot evict it.
func TestRegistryRemoveOnlyRegisteredInstance(t *testing.T) {
	r := NewRegistry()
	live := newFakePeer("same")
	stale := newFakePeer("same")

	require.True(t, r.Add(live))
	assert.False(t, r.Remove(stale))
	assert.True(t, r.Contains(live))
}

func TestRegistrySnapshotIsAdmissionOrdered(t *testing.T) {
	r := NewRegistry()
	for _, id := range []string{"c", "a", "b"} {
		r.Add(newFakePeer(id))
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids(r.Snapshot()))

	snap := r.Snapshot()
	r.Add(newFakePeer("d"))
	assert.Len(t, snap, 3, "snapshot must not see later admissions")
}

func TestRegistryNamed(t *testing.T) {
	r := NewRegistry()
	lobby := newFakePeer("1")
	lobby.name = "lobby"
	survival := newFakePeer("2")
	survival.name = "survival"
	lobby2 := newFakePeer("3")
	lobby2.name = "lobby"
	r.Add(lobby)
	r.Add(survival)
	r.Add(lobby2)

	assert.Equal(t, []string{"1", "3"}, ids(r.Named("lobby")))
	assert.Empty(t, r.Named("creative"))
	assert.Equal(t, 3, r.Len(), "filtering must not modify the registry")
}

func TestRegistryClear(t *testing.T) {
	r := NewRegistry()
	var counts []int
	r.OnChange(func(n int) { counts = append(counts, n) })

	r.Add(newFakePeer("a"))
	r.Add(newFakePeer("b"))
	cleared := r.Clear()

	assert.Equal(t, []string{"a", "b"}, ids(cleared))
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, []int{1, 2, 0}, counts)
}

func TestRegistryRemoveAllSkipsUnknown(t *testing.T) {
	r := NewRegistry()
	a, b := newFakePeer("a"), newFakePeer("b")
	r.Add(a)

	assert.Equal(t, 1, r.RemoveAll([]Peer{a, b}))
	assert.Equal(t, 0, r.RemoveAll(nil))
}

func TestRegistryConcurrentUse(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				p := newFakePeer(fmt.Sprintf("%d-%d", worker, j))
				r.Add(p)
				_ = r.Snapshot()
				if j%2 == 0 {
					r.Remove(p)
				}
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 8*50, r.Len())
}

func TestRegistryPropertySnapshotMatchesModel(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		r := NewRegistry()
		peers := map[string]*fakePeer{}
		var model []string

		steps := rapid.IntRange(1, 50).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			id := rapid.SampledFrom([]string{"a", "b", "c", "d", "e"}).Draw(t, "id")
			if rapid.Bool().Draw(t, "add") {
				p, ok := peers[id]
				if !ok {
					p = newFakePeer(id)
					peers[id] = p
				}
				if r.Add(p) {
					model = append(model, id)
				}
				continue
			}
			if p, ok := peers[id]; ok && r.Remove(p) {
				for j, m := range model {
					if m == id {
						model = append(model[:j], model[j+1:]...)
						break
					}
				}
			}
		}

		got := ids(r.Snapshot())
		if fmt.Sprint(got) != fmt.Sprint(model) {
			t.Fatalf("snapshot %v, model %v", got, model)
		}
	})
}
