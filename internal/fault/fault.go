package fault

import (
	"fmt"

	"github.com/xenrt/haoracle/internal/cluster"
)

// Kind is the class of a simulated fault.
type Kind int

const (
	// QuorumDisk is a single node losing access to the statefile.
	QuorumDisk Kind = iota
	// QuorumDiskGlobal is the statefile becoming unreachable for the whole pool.
	QuorumDiskGlobal
	// Heartbeat is network heartbeat traffic blocked on one directed link.
	Heartbeat
	// PowerLoss is a node powered off.
	PowerLoss
)

func (k Kind) String() string {
	switch k {
	case QuorumDisk:
		return "statefile"
	case QuorumDiskGlobal:
		return "statefile-global"
	case Heartbeat:
		return "heartbeat"
	case PowerLoss:
		return "power"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Link is a directed heartbeat edge.
type Link struct {
	From cluster.NodeID
	To   cluster.NodeID
}

func (l Link) String() string {
	return fmt.Sprintf("%s->%s", l.From, l.To)
}

// Reverse returns the link in the opposite direction.
func (l Link) Reverse() Link {
	return Link{From: l.To, To: l.From}
}

// Fault is a kind plus its target. It is comparable and used as a map key.
type Fault struct {
	Kind Kind
	Node cluster.NodeID
	Link Link
}

// LoseQuorumDisk blocks statefile access for one node.
func LoseQuorumDisk(id cluster.NodeID) Fault {
	return Fault{Kind: QuorumDisk, Node: id}
}

// LoseQuorumDiskGlobally makes the statefile unreachable for every node.
func LoseQuorumDiskGlobally() Fault {
	return Fault{Kind: QuorumDiskGlobal}
}

// Block blocks heartbeats flowing from -> to.
func Block(from, to cluster.NodeID) Fault {
	return Fault{Kind: Heartbeat, Link: Link{From: from, To: to}}
}

// PowerOff powers a node off.
func PowerOff(id cluster.NodeID) Fault {
	return Fault{Kind: PowerLoss, Node: id}
}

// Cut blocks heartbeats between a and b in both directions.
func Cut(a, b cluster.NodeID) []Fault {
	return []Fault{Block(a, b), Block(b, a)}
}

// Isolate cuts every link between the given nodes and the rest of the pool,
// including the links among them.
func Isolate(t *cluster.Topology, ids ...cluster.NodeID) []Fault {
	seen := make(map[Fault]bool)

	var faults []Fault
	for _, id := range ids {
		for _, other := range t.IDs() {
			if other == id {
				continue
			}

			for _, f := range Cut(id, other) {
				if !seen[f] {
					seen[f] = true
					faults = append(faults, f)
				}
			}
		}
	}

	return faults
}

// Sever cuts every link crossing between two groups of nodes.
func Sever(left, right []cluster.NodeID) []Fault {
	var faults []Fault
	for _, a := range left {
		for _, b := range right {
			faults = append(faults, Cut(a, b)...)
		}
	}

	return faults
}

// Nodes returns the node IDs a fault refers to.
func (f Fault) Nodes() []cluster.NodeID {
	switch f.Kind {
	case QuorumDisk, PowerLoss:
		return []cluster.NodeID{f.Node}
	case Heartbeat:
		return []cluster.NodeID{f.Link.From, f.Link.To}
	default:
		return nil
	}
}

func (f Fault) String() string {
	switch f.Kind {
	case QuorumDisk, PowerLoss:
		return fmt.Sprintf("%s(%s)", f.Kind, f.Node)
	case Heartbeat:
		return fmt.Sprintf("%s(%s)", f.Kind, f.Link)
	default:
		return f.Kind.String()
	}
}

// Args renders the fault as command arguments: the kind followed by the node IDs involved.
func (f Fault) Args() []string {
	args := []string{f.Kind.String()}
	for _, id := range f.Nodes() {
		args = append(args, string(id))
	}

	return args
}
