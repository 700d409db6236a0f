package ha_test

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/xenrt/haoracle/internal/attest"
	"github.com/xenrt/haoracle/internal/cluster"
	"github.com/xenrt/haoracle/internal/oracle"
	"github.com/xenrt/haoracle/internal/registry"
	_ "github.com/xenrt/haoracle/scenarios/ha"
)

func pool(t *testing.T, coordinator cluster.NodeID, ids ...cluster.NodeID) *cluster.Topology {
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

// pools are keyed by size; the coordinator is never the lowest ID.
func pools(t *testing.T) map[int]*cluster.Topology {
	return map[int]*cluster.Topology{
		2: pool(t, "b", "a", "b"),
		3: pool(t, "c", "a", "b", "c"),
		4: pool(t, "c", "a", "b", "c", "d"),
		5: pool(t, "c", "a", "b", "c", "d", "e"),
	}
}

func TestCatalog(t *testing.T) {
	tests := []struct {
		scenario    string
		hosts       int
		liveset     []cluster.NodeID
		coordinator cluster.NodeID
		fencing     []cluster.NodeID
	}{
		{"statefile-member", 3, []cluster.NodeID{"a", "b", "c"}, "c", nil},
		{"statefile-coordinator", 3, []cluster.NodeID{"a", "b", "c"}, "c", nil},
		{"statefile-members-2", 3, []cluster.NodeID{"a", "b", "c"}, "c", nil},
		{"statefile-coordinator-member", 3, []cluster.NodeID{"a", "b", "c"}, "c", nil},
		{"statefile-all", 3, []cluster.NodeID{"a", "b", "c"}, "c", nil},

		{"heartbeat-member", 3, []cluster.NodeID{"b", "c"}, "c", []cluster.NodeID{"a"}},
		{"heartbeat-coordinator", 3, []cluster.NodeID{"a", "b"}, "a", []cluster.NodeID{"c"}},
		{"heartbeat-members-2", 3, []cluster.NodeID{"a"}, "a", []cluster.NodeID{"b", "c"}},
		{"heartbeat-coordinator-member", 3, []cluster.NodeID{"a"}, "a", []cluster.NodeID{"b", "c"}},
		{"heartbeat-all", 3, []cluster.NodeID{"a"}, "a", []cluster.NodeID{"b", "c"}},
		{"partition-largest", 5, []cluster.NodeID{"a", "b", "c"}, "c", []cluster.NodeID{"d", "e"}},
		{"partition-smallest", 5, []cluster.NodeID{"b", "d", "e"}, "b", []cluster.NodeID{"a", "c"}},
		{"partition-equal", 4, []cluster.NodeID{"a", "c"}, "c", []cluster.NodeID{"b", "d"}},

		{"power-member", 3, []cluster.NodeID{"b", "c"}, "c", nil},
		{"power-coordinator", 3, []cluster.NodeID{"a", "b"}, "a", nil},
		{"power-members-2", 3, []cluster.NodeID{"c"}, "c", nil},
		{"power-coordinator-member", 3, []cluster.NodeID{"b"}, "b", nil},

		{"two-node-statefile-member", 2, []cluster.NodeID{"a", "b"}, "b", nil},
		{"two-node-statefile-coordinator", 2, []cluster.NodeID{"a", "b"}, "b", nil},
		{"two-node-heartbeat", 2, []cluster.NodeID{"a"}, "a", []cluster.NodeID{"b"}},
	}

	pools := pools(t)
	for _, tt := range tests {
		t.Run(tt.scenario, func(t *testing.T) {
			scenario, err := registry.GetScenario(tt.scenario)
			if err != nil {
				t.Fatalf("GetScenario: %v", err)
			}

			_, result, err := scenario.Predict(pools[tt.hosts], oracle.Evaluator{})
			if err != nil {
				t.Fatalf("Predict: %v", err)
			}

			if diff := cmp.Diff(tt.liveset, result.Liveset()); diff != "" {
				t.Errorf("liveset mismatch (-want +got):\n%s", diff)
			}

			if result.Coordinator() != tt.coordinator {
				t.Errorf("expected coordinator %s, got %s", tt.coordinator, result.Coordinator())
			}

			if diff := cmp.Diff(tt.fencing, result.Fencing(), cmp.Comparer(func(a, b []cluster.NodeID) bool {
				return slices.Equal(a, b)
			})); diff != "" {
				t.Errorf("fencing mismatch (-want +got):\n%s", diff)
			}
		})
	}

	var registered int
	for _, family := range registry.GetAllFamilies() {
		for _, key := range family.ScenarioOrder {
			if !family.Scenarios[key].Randomized {
				registered++
			}
		}
	}

	if registered != len(tests) {
		t.Errorf("catalog has %d scenarios, %d are covered here", registered, len(tests))
	}
}

func TestPoolSize(t *testing.T) {
	pools := pools(t)

	tests := []struct {
		scenario string
		hosts    int
	}{
		{"statefile-member", 2},
		{"partition-largest", 4},
		{"partition-equal", 5},
		{"two-node-heartbeat", 3},
		{"xha-2", 3},
		{"xha", 2},
	}

	for _, tt := range tests {
		t.Run(tt.scenario, func(t *testing.T) {
			scenario, err := registry.GetScenario(tt.scenario)
			if err != nil {
				t.Fatalf("GetScenario: %v", err)
			}

			_, _, err = scenario.Predict(pools[tt.hosts], oracle.Evaluator{})
			if !errors.Is(err, oracle.ErrInvalidScenario) {
				t.Errorf("expected ErrInvalidScenario for %d hosts, got %v", tt.hosts, err)
			}
		})
	}
}

func TestRandomizedPredict(t *testing.T) {
	scenario, err := registry.GetScenario("xha")
	if err != nil {
		t.Fatalf("GetScenario: %v", err)
	}

	_, _, err = scenario.Predict(pools(t)[3], oracle.Evaluator{})
	if !errors.Is(err, oracle.ErrInvalidScenario) {
		t.Errorf("expected ErrInvalidScenario for a randomized scenario, got %v", err)
	}
}

func TestDryRun(t *testing.T) {
	pools := pools(t)

	for _, family := range registry.GetAllFamilies() {
		for _, key := range family.ScenarioOrder {
			scenario := family.Scenarios[key]

			t.Run(key, func(t *testing.T) {
				topology := pools[scenario.Hosts]

				if scenario.Randomized {
					suite := scenario.Fn().
						WithConfig(&attest.Config{DryRun: true, Seed: 1}).
						WithPool(topology)

					if !suite.Run(context.Background()) {
						t.Fatalf("dry run of %s failed", key)
					}

					return
				}

				_, result, err := scenario.Predict(topology, oracle.Evaluator{})
				if err != nil {
					t.Fatalf("Predict: %v", err)
				}

				suite := scenario.Fn().
					WithConfig(&attest.Config{DryRun: true}).
					WithPool(topology)

				if !suite.Run(context.Background()) {
					t.Fatalf("dry run of %s failed", key)
				}

				expected := result.Fencing()
				if scenario.Disruptive {
					expected = topology.IDs()
				}

				if diff := cmp.Diff(expected, suite.SkipCrashdump(), cmp.Comparer(func(a, b []cluster.NodeID) bool {
					return slices.Equal(a, b)
				})); diff != "" {
					t.Errorf("skip-crashdump mismatch (-want +got):\n%s", diff)
				}
			})
		}
	}
}
