package ha

import (
	"github.com/xenrt/haoracle/internal/fault"
	"github.com/xenrt/haoracle/internal/partition"
	"github.com/xenrt/haoracle/internal/registry"
)

// failureMultiplier is how many watchdog timeouts a pool gets to react to a failure.
const failureMultiplier = 3

func add(family *registry.Family, key, name string, hosts int, faults registry.FaultFunc, opts ...func(*registry.Scenario)) {
	s := &registry.Scenario{
		Name:       name,
		Hosts:      hosts,
		Timeout:    fault.Watchdog,
		Multiplier: failureMultiplier,
		Temporary:  true,
		Faults:     faults,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.Fn = outage(s)
	family.AddScenario(key, s)
}

// addRandom registers a randomized scenario that keeps at least minLive hosts in the liveset.
func addRandom(family *registry.Family, key, name string, hosts, minLive int, opts ...func(*registry.Scenario)) {
	s := &registry.Scenario{
		Name:       name,
		Hosts:      hosts,
		Timeout:    fault.Watchdog,
		Multiplier: failureMultiplier,
		Randomized: true,
		Faults:     drawnWhileRunning,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.Fn = randomized(s, minLive)
	family.AddScenario(key, s)
}

func exact(s *registry.Scenario)      { s.Exact = true }
func permanent(s *registry.Scenario)  { s.Temporary = false }
func disruptive(s *registry.Scenario) { s.Disruptive = true }

func init() {
	statefile := &registry.Family{
		Name: "Statefile Loss",
		Summary: `Hosts lose access to the shared quorum disk. A host that still
exchanges heartbeats with a host that reaches the disk stays live.`,
	}

	add(statefile, "statefile-member", "Statefile Loss On One Member", 3, loseStatefile(members(1)))
	add(statefile, "statefile-coordinator", "Statefile Loss On The Coordinator", 3, loseStatefile(coordinator))
	add(statefile, "statefile-members-2", "Statefile Loss On Two Members", 3, loseStatefile(members(2)))
	add(statefile, "statefile-coordinator-member", "Statefile Loss On The Coordinator And A Member", 3,
		loseStatefile(coordinatorAnd(1)))
	add(statefile, "statefile-all", "Statefile Loss On Every Host", 3, loseStatefileGlobally, disruptive)

	registry.RegisterFamily("statefile", statefile)

	heartbeat := &registry.Family{
		Name: "Heartbeat Loss",
		Summary: `Network heartbeats are blocked between hosts. With the statefile
intact the largest group survives and ties go to the lowest host ID.`,
	}

	add(heartbeat, "heartbeat-member", "Heartbeat Loss On One Member", 3, loseHeartbeat(members(1)))
	add(heartbeat, "heartbeat-coordinator", "Heartbeat Loss On The Coordinator", 3, loseHeartbeat(coordinator))
	add(heartbeat, "heartbeat-members-2", "Heartbeat Loss On Two Members", 3, loseHeartbeat(members(2)))
	add(heartbeat, "heartbeat-coordinator-member", "Heartbeat Loss On The Coordinator And A Member", 3,
		loseHeartbeat(coordinatorAnd(1)))
	add(heartbeat, "heartbeat-all", "Heartbeat Loss On Every Host", 3, loseHeartbeat(everyone))
	add(heartbeat, "partition-largest", "Partition With The Coordinator In The Larger Half", 5,
		split(partition.Largest), exact)
	add(heartbeat, "partition-smallest", "Partition With The Coordinator In The Smaller Half", 5,
		split(partition.Smallest), exact)
	add(heartbeat, "partition-equal", "Partition Into Two Equal Halves", 4, split(partition.Equal), exact)

	registry.RegisterFamily("heartbeat", heartbeat)

	power := &registry.Family{
		Name: "Host Power Loss",
		Summary: `Hosts are powered off. Powered-off hosts leave the liveset without
fencing and a new coordinator is elected if needed.`,
	}

	add(power, "power-member", "Power Loss On One Member", 3, powerOff(members(1)), permanent)
	add(power, "power-coordinator", "Power Loss On The Coordinator", 3, powerOff(coordinator), permanent)
	add(power, "power-members-2", "Power Loss On Two Members", 3, powerOff(members(2)), permanent)
	add(power, "power-coordinator-member", "Power Loss On The Coordinator And A Member", 3,
		powerOff(coordinatorAnd(1)), permanent)

	registry.RegisterFamily("power", power)

	twoNode := &registry.Family{
		Name: "Two-Host Pool",
		Summary: `The smallest HA pool. With only two hosts the statefile decides
which one survives a heartbeat failure.`,
	}

	add(twoNode, "two-node-statefile-member", "Statefile Loss On The Member", 2, loseStatefile(members(1)), exact)
	add(twoNode, "two-node-statefile-coordinator", "Statefile Loss On The Coordinator", 2,
		loseStatefile(coordinator), exact)
	add(twoNode, "two-node-heartbeat", "Heartbeat Loss Between The Hosts", 2, loseHeartbeat(coordinator), exact)

	registry.RegisterFamily("two-node", twoNode)

	xha := &registry.Family{
		Name: "Random Operations",
		Summary: `Heartbeat blocks, statefile blocks, power loss and host restores are
drawn at random. Operations the oracle predicts would shrink the liveset
below the scenario's minimum are refused. A seed or a played-back list of
steps makes a run repeatable.`,
	}

	addRandom(xha, "xha-2", "Random Operations In A Two Host Pool", 2, 1, exact)
	addRandom(xha, "xha", "Random Operations", 3, 2)

	registry.RegisterFamily("xha", xha)
}
