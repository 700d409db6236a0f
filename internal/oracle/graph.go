package oracle

import (
	"slices"
	"strings"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/xenrt/haoracle/internal/cluster"
	"github.com/xenrt/haoracle/internal/fault"
)

// Component is a maximal set of nodes that can exchange heartbeats, sorted by ID.
type Component []cluster.NodeID

// Contains reports whether id is in the component.
func (c Component) Contains(id cluster.NodeID) bool {
	_, found := slices.BinarySearch(c, id)
	return found
}

// Lowest returns the smallest ID in the component.
func (c Component) Lowest() cluster.NodeID {
	return c[0]
}

func (c Component) String() string {
	ids := make([]string, len(c))
	for i, id := range c {
		ids[i] = string(id)
	}

	return "{" + strings.Join(ids, " ") + "}"
}

// partition splits the powered-on nodes into heartbeat components. An edge exists only
// when heartbeats flow in both directions. Components are ordered by their lowest ID.
func partition(ids []cluster.NodeID, view fault.View) []Component {
	g := simple.NewUndirectedGraph()
	for i := range ids {
		g.AddNode(simple.Node(int64(i)))
	}

	for i := range ids {
		for j := i + 1; j < len(ids); j++ {
			link := fault.Link{From: ids[i], To: ids[j]}
			if view.Blocked(link) || view.Blocked(link.Reverse()) {
				continue
			}

			g.SetEdge(g.NewEdge(simple.Node(int64(i)), simple.Node(int64(j))))
		}
	}

	var components []Component
	for _, nodes := range topo.ConnectedComponents(g) {
		component := make(Component, len(nodes))
		for k, n := range nodes {
			component[k] = ids[n.ID()]
		}

		slices.Sort(component)
		components = append(components, component)
	}

	slices.SortFunc(components, func(a, b Component) int {
		return strings.Compare(string(a.Lowest()), string(b.Lowest()))
	})

	return components
}

// better reports whether a outranks b: larger wins, then the coordinator's side
// when preferCoordinator is set, then the lowest ID.
func better(a, b Component, coordinator cluster.NodeID, preferCoordinator bool) bool {
	if len(a) != len(b) {
		return len(a) > len(b)
	}

	if preferCoordinator {
		inA, inB := a.Contains(coordinator), b.Contains(coordinator)
		if inA != inB {
			return inA
		}
	}

	return a.Lowest() < b.Lowest()
}

func rank(components []Component, coordinator cluster.NodeID, preferCoordinator bool) Component {
	winner := components[0]
	for _, c := range components[1:] {
		if better(c, winner, coordinator, preferCoordinator) {
			winner = c
		}
	}

	return winner
}
