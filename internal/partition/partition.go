package partition

import (
	"fmt"
	"slices"

	"github.com/xenrt/haoracle/internal/cluster"
	"github.com/xenrt/haoracle/internal/fault"
	"github.com/xenrt/haoracle/internal/oracle"
)

// ErrInvalidShape is returned when a pool cannot be split into the requested shape.
var ErrInvalidShape = fmt.Errorf("%w: invalid partition shape", oracle.ErrInvalidScenario)

// Shape of a two-way heartbeat partition.
type Shape int

const (
	// Largest puts the coordinator in the larger half.
	Largest Shape = iota
	// Smallest puts the coordinator in the smaller half.
	Smallest
	// Equal splits the pool into two halves of the same size.
	Equal
)

var shapeNames = map[Shape]string{
	Largest:  "largest",
	Smallest: "smallest",
	Equal:    "equal",
}

func (s Shape) String() string {
	if name, ok := shapeNames[s]; ok {
		return name
	}

	return fmt.Sprintf("shape(%d)", int(s))
}

// ParseShape parses largest, smallest or equal.
func ParseShape(name string) (Shape, error) {
	for shape, n := range shapeNames {
		if n == name {
			return shape, nil
		}
	}

	return 0, fmt.Errorf("%w: unknown shape %q (want largest, smallest or equal)", ErrInvalidShape, name)
}

// Plan is a canonical partition of a pool. Halves[0] always holds the coordinator.
type Plan struct {
	Shape  Shape
	Halves [2][]cluster.NodeID
	// Winner is the index of the half expected to survive with the statefile intact.
	Winner int
}

// Build splits t into two halves according to shape. Cross-half links are blocked
// in both directions and links inside a half are untouched.
func Build(t *cluster.Topology, shape Shape) (*Plan, error) {
	n := t.Len()

	var size int
	switch shape {
	case Largest, Smallest:
		if n < 3 {
			return nil, fmt.Errorf("%w: %s partition needs at least 3 nodes, pool has %d", ErrInvalidShape, shape, n)
		}

		big := n/2 + 1
		size = big
		if shape == Smallest {
			size = n - big
		}
	case Equal:
		if n < 2 || n%2 != 0 {
			return nil, fmt.Errorf("%w: cannot split %d nodes into equal halves", ErrInvalidShape, n)
		}

		size = n / 2
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidShape, shape)
	}

	// The coordinator goes first, members fill in by ID
	order := append([]cluster.NodeID{t.Coordinator()}, t.Members()...)

	plan := &Plan{Shape: shape}
	plan.Halves[0] = slices.Sorted(slices.Values(order[:size]))
	plan.Halves[1] = slices.Sorted(slices.Values(order[size:]))
	plan.Winner = winner(plan.Halves)

	return plan, nil
}

// winner picks the larger half, or the half holding the lowest ID on a tie.
func winner(halves [2][]cluster.NodeID) int {
	switch {
	case len(halves[0]) > len(halves[1]):
		return 0
	case len(halves[1]) > len(halves[0]):
		return 1
	case cluster.Lowest(halves[0]) < cluster.Lowest(halves[1]):
		return 0
	default:
		return 1
	}
}

// Survivors returns the half expected to survive.
func (p *Plan) Survivors() []cluster.NodeID {
	return slices.Clone(p.Halves[p.Winner])
}

// Losers returns the half expected to fence.
func (p *Plan) Losers() []cluster.NodeID {
	return slices.Clone(p.Halves[1-p.Winner])
}

// CoordinatorSurvives reports whether the coordinator's half is expected to win.
func (p *Plan) CoordinatorSurvives() bool {
	return p.Winner == 0
}

// Faults returns the heartbeat blocks that realise the partition.
func (p *Plan) Faults() []fault.Fault {
	return fault.Sever(p.Halves[0], p.Halves[1])
}

// Apply requests every block of the partition on s.
func (p *Plan) Apply(s *fault.State) error {
	return s.RequestAll(p.Faults())
}

// State returns a fresh fault state with the partition requested and confirmed.
func (p *Plan) State() *fault.State {
	s := fault.NewState()

	// Faults are distinct, so requesting them on an empty state cannot fail
	_ = p.Apply(s)
	s.ConfirmAll()

	return s
}

func (p *Plan) String() string {
	return fmt.Sprintf("%s partition %v | %v, expecting %v to survive",
		p.Shape, p.Halves[0], p.Halves[1], p.Halves[p.Winner])
}
