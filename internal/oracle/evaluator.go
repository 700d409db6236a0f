package oracle

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xenrt/haoracle/internal/cluster"
	"github.com/xenrt/haoracle/internal/fault"
)

var (
	// ErrInvalidScenario is returned for fault patterns the survival rules cannot model.
	ErrInvalidScenario = errors.New("invalid scenario")
	// ErrUnconverged is returned when a prediction is requested while faults are still pending.
	ErrUnconverged = errors.New("faults have not converged")
)

// Verdict is the expected state of one node.
type Verdict struct {
	Live bool
	// SelfFence is set for powered-on nodes that are expected to leave the liveset
	// by fencing themselves.
	SelfFence bool
}

// Rule names the survival condition that decided the outcome.
type Rule int

const (
	// RuleNone means no node was powered on.
	RuleNone Rule = iota
	// RuleQuorumDisk means exactly one heartbeat component could reach the statefile.
	RuleQuorumDisk
	// RuleDiskArbitration means several components reached the statefile and it picked one.
	RuleDiskArbitration
	// RuleGlobalLoss means no node could reach the statefile and partition size decided.
	RuleGlobalLoss
)

func (r Rule) String() string {
	switch r {
	case RuleQuorumDisk:
		return "statefile"
	case RuleDiskArbitration:
		return "statefile-arbitration"
	case RuleGlobalLoss:
		return "global-statefile-loss"
	default:
		return "none"
	}
}

// Arbitration selects how the evaluator treats several components that can all
// reach the statefile.
type Arbitration int

const (
	// ArbitrateDisk lets the statefile pick the largest component, then the lowest ID.
	ArbitrateDisk Arbitration = iota
	// ArbitrateStrict rejects the fault pattern with ErrInvalidScenario.
	ArbitrateStrict
)

// Evaluator computes per-node survival. The zero value uses ArbitrateDisk.
type Evaluator struct {
	Arbitration Arbitration
}

type decision struct {
	verdicts   map[cluster.NodeID]Verdict
	components []Component
	winner     Component
	rule       Rule
}

// Evaluate computes the verdict of every node using the default evaluator.
func Evaluate(t *cluster.Topology, view fault.View) (map[cluster.NodeID]Verdict, error) {
	return Evaluator{}.Evaluate(t, view)
}

// Evaluate computes the verdict of every node in t under the confirmed faults of view.
func (e Evaluator) Evaluate(t *cluster.Topology, view fault.View) (map[cluster.NodeID]Verdict, error) {
	d, err := e.decide(t, view)
	if err != nil {
		return nil, err
	}

	return d.verdicts, nil
}

func (e Evaluator) decide(t *cluster.Topology, view fault.View) (*decision, error) {
	if err := validate(t, view); err != nil {
		return nil, err
	}

	// Powered-off nodes are already down and take no part
	var up []cluster.NodeID
	for _, id := range t.IDs() {
		if !view.PoweredOff(id) {
			up = append(up, id)
		}
	}

	d := &decision{verdicts: make(map[cluster.NodeID]Verdict, t.Len())}
	if len(up) > 0 {
		d.components = partition(up, view)

		winner, rule, err := e.survivor(t, view, d.components)
		if err != nil {
			return nil, err
		}

		d.winner, d.rule = winner, rule
	}

	for _, id := range t.IDs() {
		switch {
		case view.PoweredOff(id):
			d.verdicts[id] = Verdict{}
		case d.winner.Contains(id):
			d.verdicts[id] = Verdict{Live: true}
		default:
			d.verdicts[id] = Verdict{SelfFence: true}
		}
	}

	return d, nil
}

func (e Evaluator) survivor(t *cluster.Topology, view fault.View, components []Component) (Component, Rule, error) {
	var withDisk []Component
	if !view.QuorumLostGlobally() {
		for _, c := range components {
			for _, id := range c {
				if !view.QuorumLost(id) {
					withDisk = append(withDisk, c)
					break
				}
			}
		}
	}

	switch {
	case len(withDisk) == 1:
		return withDisk[0], RuleQuorumDisk, nil
	case len(withDisk) > 1 && e.Arbitration == ArbitrateStrict:
		return nil, RuleNone, fmt.Errorf("%w: %d partitions can reach the statefile: %v",
			ErrInvalidScenario, len(withDisk), withDisk)
	case len(withDisk) > 1:
		return rank(withDisk, t.Coordinator(), false), RuleDiskArbitration, nil
	default:
		return rank(components, t.Coordinator(), true), RuleGlobalLoss, nil
	}
}

func validate(t *cluster.Topology, view fault.View) error {
	if t == nil || t.Len() == 0 {
		return fmt.Errorf("%w: empty topology", ErrInvalidScenario)
	}

	if !t.Contains(t.Coordinator()) {
		return fmt.Errorf("%w: coordinator %q is not a pool member", ErrInvalidScenario, t.Coordinator())
	}

	if view == nil {
		return fmt.Errorf("%w: no fault state", ErrInvalidScenario)
	}

	if !view.Converged() {
		pending := view.Pending()

		parts := make([]string, len(pending))
		for i, entry := range pending {
			parts[i] = entry.String()
		}

		return fmt.Errorf("%w: %d pending: %s", ErrUnconverged, len(pending), strings.Join(parts, ", "))
	}

	for _, f := range view.Active() {
		for _, id := range f.Nodes() {
			if !t.Contains(id) {
				return fmt.Errorf("%w: %s refers to unknown node %q", ErrInvalidScenario, f, id)
			}
		}
	}

	return nil
}
