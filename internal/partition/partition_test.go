package partition_test

import (
	"errors"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/xenrt/haoracle/internal/cluster"
	"github.com/xenrt/haoracle/internal/fault"
	"github.com/xenrt/haoracle/internal/oracle"
	"github.com/xenrt/haoracle/internal/partition"
)

func TestBuild(t *testing.T) {
	tests := []struct {
		name        string
		hosts       int
		shape       partition.Shape
		sizes       [2]int
		coordinator bool // whether the coordinator is expected to survive
		expectedErr error
	}{
		{name: "Largest 5", hosts: 5, shape: partition.Largest, sizes: [2]int{3, 2}, coordinator: true},
		{name: "Largest 4", hosts: 4, shape: partition.Largest, sizes: [2]int{3, 1}, coordinator: true},
		{name: "Largest 3", hosts: 3, shape: partition.Largest, sizes: [2]int{2, 1}, coordinator: true},
		{name: "Smallest 5", hosts: 5, shape: partition.Smallest, sizes: [2]int{2, 3}, coordinator: false},
		{name: "Smallest 7", hosts: 7, shape: partition.Smallest, sizes: [2]int{3, 4}, coordinator: false},
		{name: "Equal 4", hosts: 4, shape: partition.Equal, sizes: [2]int{2, 2}},
		{name: "Equal 6", hosts: 6, shape: partition.Equal, sizes: [2]int{3, 3}},
		{name: "Equal 2", hosts: 2, shape: partition.Equal, sizes: [2]int{1, 1}},
		{name: "Equal Odd", hosts: 5, shape: partition.Equal, expectedErr: partition.ErrInvalidShape},
		{name: "Largest Too Small", hosts: 2, shape: partition.Largest, expectedErr: partition.ErrInvalidShape},
		{name: "Smallest Single Node", hosts: 1, shape: partition.Smallest, expectedErr: oracle.ErrInvalidScenario},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			// Random IDs make the tie-break land on either side across iterations
			for range 25 {
				topology, err := cluster.Generate(test.hosts)
				if err != nil {
					t.Fatalf("Generate: %v", err)
				}

				plan, err := partition.Build(topology, test.shape)
				if test.expectedErr != nil {
					if !errors.Is(err, test.expectedErr) {
						t.Fatalf("expected %v, got %v", test.expectedErr, err)
					}
					return
				}

				if err != nil {
					t.Fatalf("Build: %v", err)
				}

				if got := [2]int{len(plan.Halves[0]), len(plan.Halves[1])}; got != test.sizes {
					t.Fatalf("expected halves %v, got %v", test.sizes, got)
				}

				if !slices.Contains(plan.Halves[0], topology.Coordinator()) {
					t.Fatalf("coordinator %s not in first half %v", topology.Coordinator(), plan.Halves[0])
				}

				if test.shape != partition.Equal && plan.CoordinatorSurvives() != test.coordinator {
					t.Errorf("expected coordinator survives %v, got %v", test.coordinator, plan.CoordinatorSurvives())
				}

				if test.shape == partition.Equal && !slices.Contains(plan.Survivors(), cluster.Lowest(topology.IDs())) {
					t.Errorf("equal split must keep the lowest ID, got %s", plan)
				}

				result, err := oracle.Predict(topology, plan.State())
				if err != nil {
					t.Fatalf("Predict: %v", err)
				}

				if diff := cmp.Diff(plan.Survivors(), result.Liveset()); diff != "" {
					t.Errorf("plan and oracle disagree on survivors (-plan +oracle):\n%s", diff)
				}

				if diff := cmp.Diff(plan.Losers(), result.Fencing()); diff != "" {
					t.Errorf("plan and oracle disagree on fencing (-plan +oracle):\n%s", diff)
				}

				if result.CoordinatorChanged() == plan.CoordinatorSurvives() {
					t.Errorf("coordinator changed %v but plan says coordinator survives %v",
						result.CoordinatorChanged(), plan.CoordinatorSurvives())
				}
			}
		})
	}
}

func TestParseShape(t *testing.T) {
	for _, name := range []string{"largest", "smallest", "equal"} {
		shape, err := partition.ParseShape(name)
		if err != nil {
			t.Fatalf("ParseShape(%q): %v", name, err)
		}

		if shape.String() != name {
			t.Errorf("expected %q, got %q", name, shape)
		}
	}

	if _, err := partition.ParseShape("diagonal"); !errors.Is(err, partition.ErrInvalidShape) {
		t.Errorf("expected ErrInvalidShape, got %v", err)
	}
}

func TestPlanFaults(t *testing.T) {
	nodes := []cluster.Node{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}}
	topology, err := cluster.New(nodes, "c")
	if err != nil {
		t.Fatalf("cluster.New: %v", err)
	}

	plan, err := partition.Build(topology, partition.Equal)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	// c leads and takes a; b and d form the other half
	if diff := cmp.Diff([2][]cluster.NodeID{{"a", "c"}, {"b", "d"}}, plan.Halves); diff != "" {
		t.Errorf("halves mismatch (-want +got):\n%s", diff)
	}

	if len(plan.Faults()) != 2*2*2 {
		t.Errorf("expected 8 directed blocks, got %d", len(plan.Faults()))
	}

	state := plan.State()
	if !state.Converged() {
		t.Errorf("plan state should be confirmed")
	}

	if state.Blocked(fault.Link{From: "a", To: "c"}) || state.Blocked(fault.Link{From: "b", To: "d"}) {
		t.Errorf("links inside a half must stay untouched")
	}

	if !state.Blocked(fault.Link{From: "a", To: "b"}) || !state.Blocked(fault.Link{From: "d", To: "c"}) {
		t.Errorf("links across halves must be blocked in both directions")
	}
}
