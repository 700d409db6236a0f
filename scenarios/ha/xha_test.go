package ha

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/xenrt/haoracle/internal/attest"
	"github.com/xenrt/haoracle/internal/cluster"
	"github.com/xenrt/haoracle/internal/registry"
)

func testPool(t *testing.T, coordinator cluster.NodeID, ids ...cluster.NodeID) *cluster.Topology {
	t.Helper()

	nodes := make([]cluster.Node, len(ids))
	for i, id := range ids {
		nodes[i] = cluster.Node{ID: id}
	}

	topology, err := cluster.New(nodes, coordinator)
	if err != nil {
		t.Fatalf("cluster.New: %v", err)
	}

	return topology
}

func runWalk(t *testing.T, topology *cluster.Topology, minLive int, config *attest.Config) (*walk, bool) {
	t.Helper()

	scenario, err := registry.GetScenario("xha")
	if err != nil {
		t.Fatalf("GetScenario: %v", err)
	}

	config.DryRun = true

	w := newWalk(scenario, minLive)
	passed := w.suite().WithConfig(config).WithPool(topology).Run(context.Background())

	return w, passed
}

func TestWalkSeed(t *testing.T) {
	topology := testPool(t, "c", "a", "b", "c", "d")

	first, ok := runWalk(t, topology, 2, &attest.Config{Seed: 42, Operations: 30})
	if !ok {
		t.Fatal("random walk failed")
	}

	if len(first.steps) == 0 {
		t.Fatal("expected the walk to take at least one step")
	}

	if live := len(first.last.Liveset()); live < 2 {
		t.Errorf("walk left %d hosts live, minimum is 2", live)
	}

	second, ok := runWalk(t, topology, 2, &attest.Config{Seed: 42, Operations: 30})
	if !ok {
		t.Fatal("second random walk failed")
	}

	if diff := cmp.Diff(first.steps, second.steps); diff != "" {
		t.Errorf("same seed took different steps (-first +second):\n%s", diff)
	}

	if diff := cmp.Diff(first.last.Liveset(), second.last.Liveset()); diff != "" {
		t.Errorf("same seed ended with a different liveset (-first +second):\n%s", diff)
	}

	var playback []string
	for _, st := range first.steps {
		playback = append(playback, st.String())
	}

	replay, ok := runWalk(t, topology, 2, &attest.Config{Seed: 7, Playback: playback})
	if !ok {
		t.Fatalf("replaying %v failed", playback)
	}

	if diff := cmp.Diff(first.steps, replay.steps); diff != "" {
		t.Errorf("replay took different steps (-recorded +replayed):\n%s", diff)
	}

	if first.last.Coordinator() != replay.last.Coordinator() {
		t.Errorf("replay ended with coordinator %s, recorded run with %s",
			replay.last.Coordinator(), first.last.Coordinator())
	}
}

func TestWalkPlayback(t *testing.T) {
	tests := []struct {
		name        string
		minLive     int
		playback    []string
		liveset     []cluster.NodeID
		coordinator cluster.NodeID
		shouldPass  bool
	}{
		{
			name:        "Restore Powered Off Host",
			minLive:     1,
			playback:    []string{"kill:a", "statefile:b", "restore:a"},
			liveset:     []cluster.NodeID{"a", "b", "c"},
			coordinator: "c",
			shouldPass:  true,
		},
		{
			name:        "Coordinator Loss Then Isolation",
			minLive:     1,
			playback:    []string{"kill:c", "heartbeat:a"},
			liveset:     []cluster.NodeID{"a"},
			coordinator: "a",
			shouldPass:  true,
		},
		{
			name:       "Hosts Drawn By Seed",
			minLive:    1,
			playback:   []string{"kill", "restore"},
			liveset:    []cluster.NodeID{"a", "b", "c"},
			shouldPass: true,
		},
		{
			name:       "Refused Below Minimum",
			minLive:    2,
			playback:   []string{"kill:c", "heartbeat:a"},
			shouldPass: false,
		},
		{
			name:       "Restore Of A Live Host",
			minLive:    1,
			playback:   []string{"restore:a"},
			shouldPass: false,
		},
		{
			name:       "Unknown Operation",
			minLive:    1,
			playback:   []string{"reboot:a"},
			shouldPass: false,
		},
		{
			name:       "Unknown Host",
			minLive:    1,
			playback:   []string{"kill:z"},
			shouldPass: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			topology := testPool(t, "c", "a", "b", "c")

			w, passed := runWalk(t, topology, tt.minLive, &attest.Config{Seed: 3, Playback: tt.playback})
			if passed != tt.shouldPass {
				t.Fatalf("expected pass=%v, got %v", tt.shouldPass, passed)
			}

			if !tt.shouldPass {
				return
			}

			if diff := cmp.Diff(tt.liveset, w.last.Liveset()); diff != "" {
				t.Errorf("liveset mismatch (-want +got):\n%s", diff)
			}

			if tt.coordinator != "" && w.last.Coordinator() != tt.coordinator {
				t.Errorf("expected coordinator %s, got %s", tt.coordinator, w.last.Coordinator())
			}
		})
	}
}
