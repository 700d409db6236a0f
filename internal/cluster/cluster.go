package cluster

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidTopology is returned when a pool description cannot be modelled.
var ErrInvalidTopology = errors.New("invalid topology")

// NodeID identifies a host. IDs are totally ordered byte-wise and the lower ID wins ties.
type NodeID string

// NewNodeID returns a random lower-case UUID identifier.
func NewNodeID() NodeID {
	return NodeID(uuid.NewString())
}

// Role of a node within a topology.
type Role int

const (
	RoleMember Role = iota
	RoleCoordinator
)

func (r Role) String() string {
	if r == RoleCoordinator {
		return "coordinator"
	}

	return "member"
}

// Node is a single host in the pool.
type Node struct {
	ID   NodeID
	Name string
}

func (n Node) String() string {
	if n.Name == "" {
		return string(n.ID)
	}

	return fmt.Sprintf("%s (%s)", n.Name, n.ID)
}

// Topology is an immutable, ordered set of nodes with exactly one coordinator.
type Topology struct {
	nodes       []Node
	index       map[NodeID]int
	coordinator NodeID
}

// New validates nodes and builds a topology. Nodes are kept sorted by ID.
func New(nodes []Node, coordinator NodeID) (*Topology, error) {
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: pool has no nodes", ErrInvalidTopology)
	}

	sorted := slices.Clone(nodes)
	slices.SortFunc(sorted, func(a, b Node) int {
		return strings.Compare(string(a.ID), string(b.ID))
	})

	index := make(map[NodeID]int, len(sorted))
	for i, node := range sorted {
		if node.ID == "" {
			return nil, fmt.Errorf("%w: node %d has an empty id", ErrInvalidTopology, i)
		}

		if _, dup := index[node.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate node id %s", ErrInvalidTopology, node.ID)
		}

		index[node.ID] = i
	}

	if _, ok := index[coordinator]; !ok {
		return nil, fmt.Errorf("%w: coordinator %q is not a pool member", ErrInvalidTopology, coordinator)
	}

	return &Topology{nodes: sorted, index: index, coordinator: coordinator}, nil
}

// Generate builds a pool of n nodes named host0..host<n-1> with random IDs.
// The coordinator is host0, which is not necessarily the lowest ID.
func Generate(n int) (*Topology, error) {
	nodes := make([]Node, n)
	for i := range nodes {
		nodes[i] = Node{ID: NewNodeID(), Name: fmt.Sprintf("host%d", i)}
	}

	if n == 0 {
		return New(nodes, "")
	}

	return New(nodes, nodes[0].ID)
}

// WithCoordinator returns a copy of the topology with a different coordinator.
// This is the only way the coordinator changes.
func (t *Topology) WithCoordinator(id NodeID) (*Topology, error) {
	if !t.Contains(id) {
		return nil, fmt.Errorf("%w: coordinator %q is not a pool member", ErrInvalidTopology, id)
	}

	return &Topology{nodes: t.nodes, index: t.index, coordinator: id}, nil
}

// Len returns the number of nodes.
func (t *Topology) Len() int {
	return len(t.nodes)
}

// Nodes returns the nodes in ID order.
func (t *Topology) Nodes() []Node {
	return slices.Clone(t.nodes)
}

// IDs returns all node IDs in order.
func (t *Topology) IDs() []NodeID {
	ids := make([]NodeID, len(t.nodes))
	for i, node := range t.nodes {
		ids[i] = node.ID
	}

	return ids
}

// Coordinator returns the current coordinator.
func (t *Topology) Coordinator() NodeID {
	return t.coordinator
}

// Members returns every node except the coordinator, in ID order.
func (t *Topology) Members() []NodeID {
	members := make([]NodeID, 0, len(t.nodes)-1)
	for _, node := range t.nodes {
		if node.ID != t.coordinator {
			members = append(members, node.ID)
		}
	}

	return members
}

// Contains reports whether id is part of the pool.
func (t *Topology) Contains(id NodeID) bool {
	_, ok := t.index[id]
	return ok
}

// Node looks up a node by ID.
func (t *Topology) Node(id NodeID) (Node, bool) {
	i, ok := t.index[id]
	if !ok {
		return Node{}, false
	}

	return t.nodes[i], true
}

// Name returns the display name of id, falling back to the ID itself.
func (t *Topology) Name(id NodeID) string {
	node, ok := t.Node(id)
	if !ok || node.Name == "" {
		return string(id)
	}

	return node.Name
}

// Role returns the role of id.
func (t *Topology) Role(id NodeID) Role {
	if id == t.coordinator {
		return RoleCoordinator
	}

	return RoleMember
}

// Lowest returns the smallest ID in ids. ids must not be empty.
func Lowest(ids []NodeID) NodeID {
	return slices.Min(ids)
}
