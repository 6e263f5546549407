package flow

import (
	"github.com/botflow/engine/pkg/api"
)

// CompiledGraph is an execution-ready index of one flow definition: nodes
// by ID, outgoing edges by source, and the resolved start node
type CompiledGraph struct {
	Definition *api.FlowDefinition
	Start      *api.Node
	nodes      map[api.NodeID]*api.Node
	edges      map[api.NodeID][]*api.Edge
}

// Compile validates a definition and builds its execution indexes
func Compile(def *api.FlowDefinition) (*CompiledGraph, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	g := &CompiledGraph{
		Definition: def,
		Start:      def.StartNode(),
		nodes:      make(map[api.NodeID]*api.Node, len(def.Nodes)),
		edges:      map[api.NodeID][]*api.Edge{},
	}
	for _, n := range def.Nodes {
		g.nodes[n.ID] = n
	}
	for _, e := range def.Edges {
		g.edges[e.Source] = append(g.edges[e.Source], e)
	}
	return g, nil
}

// Node returns the node with the given ID
func (g *CompiledGraph) Node(id api.NodeID) (*api.Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// OutEdges returns the outgoing edges of a node in definition order
func (g *CompiledGraph) OutEdges(id api.NodeID) []*api.Edge {
	return g.edges[id]
}

// Next selects the outgoing edge for a branch label. A labeled branch only
// matches an edge carrying that label. An empty branch matches the first
// unlabeled edge, or the sole outgoing edge regardless of label. Returns
// nil when the node is a dead end for that branch
func (g *CompiledGraph) Next(from api.NodeID, branch api.Label) *api.Edge {
	edges := g.edges[from]
	if len(edges) == 0 {
		return nil
	}
	if branch != "" {
		for _, e := range edges {
			if e.Label == branch {
				return e
			}
		}
		return nil
	}
	for _, e := range edges {
		if e.Label == "" {
			return e
		}
	}
	if len(edges) == 1 {
		return edges[0]
	}
	return nil
}
