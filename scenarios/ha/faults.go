package ha

import (
	"fmt"

	"github.com/xenrt/haoracle/internal/cluster"
	"github.com/xenrt/haoracle/internal/fault"
	"github.com/xenrt/haoracle/internal/oracle"
	"github.com/xenrt/haoracle/internal/partition"
	"github.com/xenrt/haoracle/internal/registry"
)

// target picks the hosts a scenario acts on.
type target func(t *cluster.Topology) ([]cluster.NodeID, error)

func coordinator(t *cluster.Topology) ([]cluster.NodeID, error) {
	return []cluster.NodeID{t.Coordinator()}, nil
}

// members picks the n lowest non-coordinator hosts.
func members(n int) target {
	return func(t *cluster.Topology) ([]cluster.NodeID, error) {
		m := t.Members()
		if len(m) < n {
			return nil, fmt.Errorf("%w: need %d members besides the coordinator, pool has %d",
				oracle.ErrInvalidScenario, n, len(m))
		}

		return m[:n], nil
	}
}

func coordinatorAnd(n int) target {
	return func(t *cluster.Topology) ([]cluster.NodeID, error) {
		m, err := members(n)(t)
		if err != nil {
			return nil, err
		}

		return append([]cluster.NodeID{t.Coordinator()}, m...), nil
	}
}

func everyone(t *cluster.Topology) ([]cluster.NodeID, error) {
	return t.IDs(), nil
}

// loseStatefile blocks statefile access for each targeted host.
func loseStatefile(pick target) registry.FaultFunc {
	return func(t *cluster.Topology) ([]fault.Fault, error) {
		ids, err := pick(t)
		if err != nil {
			return nil, err
		}

		faults := make([]fault.Fault, len(ids))
		for i, id := range ids {
			faults[i] = fault.LoseQuorumDisk(id)
		}

		return faults, nil
	}
}

func loseStatefileGlobally(*cluster.Topology) ([]fault.Fault, error) {
	return []fault.Fault{fault.LoseQuorumDiskGlobally()}, nil
}

// loseHeartbeat isolates each targeted host from every other host.
func loseHeartbeat(pick target) registry.FaultFunc {
	return func(t *cluster.Topology) ([]fault.Fault, error) {
		ids, err := pick(t)
		if err != nil {
			return nil, err
		}

		return fault.Isolate(t, ids...), nil
	}
}

func split(shape partition.Shape) registry.FaultFunc {
	return func(t *cluster.Topology) ([]fault.Fault, error) {
		plan, err := partition.Build(t, shape)
		if err != nil {
			return nil, err
		}

		return plan.Faults(), nil
	}
}

func powerOff(pick target) registry.FaultFunc {
	return func(t *cluster.Topology) ([]fault.Fault, error) {
		ids, err := pick(t)
		if err != nil {
			return nil, err
		}

		faults := make([]fault.Fault, len(ids))
		for i, id := range ids {
			faults[i] = fault.PowerOff(id)
		}

		return faults, nil
	}
}

// drawnWhileRunning is the FaultFunc of randomized scenarios, whose faults depend on the run.
func drawnWhileRunning(*cluster.Topology) ([]fault.Fault, error) {
	return nil, fmt.Errorf("%w: faults are drawn while the scenario runs, "+
		"preview them with 'haoracle run --dry-run --seed N'", oracle.ErrInvalidScenario)
}
