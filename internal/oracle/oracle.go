package oracle

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/xenrt/haoracle/internal/cluster"
	"github.com/xenrt/haoracle/internal/fault"
)

// Result is the predicted pool state after the confirmed faults have taken effect.
// It is never modified after Predict returns it.
type Result struct {
	liveset      []cluster.NodeID
	fencing      []cluster.NodeID
	verdicts     map[cluster.NodeID]Verdict
	partitions   []Component
	previous     cluster.NodeID
	coordinator  cluster.NodeID
	changed      bool
	totalFencing bool
	rule         Rule
}

// Predict evaluates t under view using the default evaluator.
func Predict(t *cluster.Topology, view fault.View) (*Result, error) {
	return Evaluator{}.Predict(t, view)
}

// Predict returns the expected liveset and coordinator. An empty liveset is reported
// through TotalFencing rather than as an error.
func (e Evaluator) Predict(t *cluster.Topology, view fault.View) (*Result, error) {
	d, err := e.decide(t, view)
	if err != nil {
		return nil, err
	}

	r := &Result{
		verdicts:   d.verdicts,
		partitions: d.components,
		previous:   t.Coordinator(),
		rule:       d.rule,
	}

	for _, id := range t.IDs() {
		v := d.verdicts[id]
		if v.Live {
			r.liveset = append(r.liveset, id)
		}

		if v.SelfFence {
			r.fencing = append(r.fencing, id)
		}
	}

	switch {
	case len(r.liveset) == 0:
		r.totalFencing = true
	case d.verdicts[t.Coordinator()].Live:
		r.coordinator = t.Coordinator()
	default:
		r.coordinator = cluster.Lowest(r.liveset)
		r.changed = true
	}

	return r, nil
}

// Liveset returns the nodes expected to remain pool members, in ID order.
func (r *Result) Liveset() []cluster.NodeID {
	return slices.Clone(r.liveset)
}

// Fencing returns the powered-on nodes expected to fence themselves.
func (r *Result) Fencing() []cluster.NodeID {
	return slices.Clone(r.fencing)
}

// Verdict returns the verdict of one node.
func (r *Result) Verdict(id cluster.NodeID) (Verdict, bool) {
	v, ok := r.verdicts[id]
	return v, ok
}

// Verdicts returns a copy of all verdicts.
func (r *Result) Verdicts() map[cluster.NodeID]Verdict {
	return maps.Clone(r.verdicts)
}

// Partitions returns the heartbeat components of the powered-on nodes.
func (r *Result) Partitions() []Component {
	partitions := make([]Component, len(r.partitions))
	for i, c := range r.partitions {
		partitions[i] = slices.Clone(c)
	}

	return partitions
}

// Live reports whether id is expected in the liveset.
func (r *Result) Live(id cluster.NodeID) bool {
	return r.verdicts[id].Live
}

// Coordinator returns the expected coordinator, empty on total fencing.
func (r *Result) Coordinator() cluster.NodeID {
	return r.coordinator
}

// PreviousCoordinator returns the coordinator before the faults.
func (r *Result) PreviousCoordinator() cluster.NodeID {
	return r.previous
}

// CoordinatorChanged reports whether a new coordinator must be elected.
func (r *Result) CoordinatorChanged() bool {
	return r.changed
}

// TotalFencing reports whether every node is expected to leave the liveset.
func (r *Result) TotalFencing() bool {
	return r.totalFencing
}

// Rule returns the survival rule that decided the outcome.
func (r *Result) Rule() Rule {
	return r.rule
}

// NewTopology returns t with the predicted coordinator, for scenarios that continue
// after a re-election.
func (r *Result) NewTopology(t *cluster.Topology) (*cluster.Topology, error) {
	if r.totalFencing {
		return nil, fmt.Errorf("%w: no coordinator survives total fencing", ErrInvalidScenario)
	}

	if !r.changed {
		return t, nil
	}

	return t.WithCoordinator(r.coordinator)
}

// Observation is the pool state reported by the product.
type Observation struct {
	Liveset     []cluster.NodeID
	Coordinator cluster.NodeID
}

// Diff lists every difference between the prediction and what was observed.
func (r *Result) Diff(o Observation) []string {
	var diffs []string

	observed := slices.Sorted(slices.Values(o.Liveset))
	for _, id := range r.liveset {
		if !slices.Contains(observed, id) {
			diffs = append(diffs, fmt.Sprintf("expected %s in liveset", id))
		}
	}

	for _, id := range observed {
		if !r.Live(id) {
			diffs = append(diffs, fmt.Sprintf("unexpected %s in liveset", id))
		}
	}

	if !r.totalFencing && o.Coordinator != r.coordinator {
		diffs = append(diffs, fmt.Sprintf("expected coordinator %s, got %s", r.coordinator, o.Coordinator))
	}

	return diffs
}

func (r *Result) String() string {
	if r.totalFencing {
		return fmt.Sprintf("total fencing (%s): every node fences", r.rule)
	}

	ids := make([]string, len(r.liveset))
	for i, id := range r.liveset {
		ids[i] = string(id)
	}

	coordinator := string(r.coordinator)
	if r.changed {
		coordinator = fmt.Sprintf("%s (was %s)", r.coordinator, r.previous)
	}

	return fmt.Sprintf("liveset [%s], coordinator %s, %d fencing (%s)",
		strings.Join(ids, " "), coordinator, len(r.fencing), r.rule)
}
