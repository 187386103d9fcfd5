package fluxroute

import (
	"context"
	"fmt"
	"strings"
)

// Graph is an open or closed fragment of the routing DAG under construction.
// An open graph tracks its "leaves" — nonterminals whose edges are not yet
// all terminated — so that Then and Apply know where to attach further
// structure. A closed graph has every leaf terminated and may only be
// unioned or subscribed to an Engine, never sequentially composed further.
type Graph struct {
	start  NonterminalNode
	leaves []NonterminalNode
	closed bool
}

// NewGraph returns a fresh open graph: a single IdentityNode start that is
// also its only leaf.
func NewGraph() Graph {
	start := NewIdentityNode()
	return Graph{start: start, leaves: []NonterminalNode{start}}
}

// graphFromNode wraps a single nonterminal as a one-node open graph, used by
// std.go's constructors (Equals, If, Is, Process, ...) to lift a bare
// NonterminalNode into composable Graph form.
func graphFromNode(n NonterminalNode) Graph {
	return Graph{start: n, leaves: []NonterminalNode{n}}
}

// Closed reports whether every leaf of g has a terminal attached.
func (g Graph) Closed() bool { return g.closed }

// Then implements sequential composition `A & B`: every open leaf of g gets
// other's start attached as a successor, and the result's leaves become
// other's leaves. It fails if g is already closed.
func (g Graph) Then(other Graph) (Graph, error) {
	if g.closed {
		return Graph{}, ErrClosedGraph
	}
	for _, leaf := range g.leaves {
		leaf.AddSuccessor(other.start)
	}
	return Graph{start: g.start, leaves: other.leaves, closed: other.closed}, nil
}

// Union implements `A | B`: the two starts merge if they share a
// mergeIdentity, otherwise a fresh IdentityNode-keyed polyglot wrapper is
// built pointing at both. The result's leaves are the concatenation of both
// sides' leaves (duplicates are harmless — Apply/Then treat leaves as a set
// of attachment points, not a count).
func (g Graph) Union(other Graph) Graph {
	if g.start.mergeIdentity() == other.start.mergeIdentity() {
		_ = g.start.MergeUnion(other.start)
		return Graph{
			start:  g.start,
			leaves: append(append([]NonterminalNode{}, g.leaves...), other.leaves...),
			closed: g.closed && other.closed,
		}
	}

	wrapper := NewIdentityNode()
	wrapper.AddSuccessor(g.start)
	wrapper.AddSuccessor(other.start)
	return Graph{
		start:  wrapper,
		leaves: append(append([]NonterminalNode{}, g.leaves...), other.leaves...),
		closed: g.closed && other.closed,
	}
}

// Apply attaches terminal under every open leaf and closes the graph. A nil
// terminal closes the graph with no handler attached to its leaves, used
// internally when a graph fragment is meant only to gate later composition.
func (g Graph) Apply(terminal *TerminalNode) Graph {
	if terminal != nil {
		for _, leaf := range g.leaves {
			leaf.AddSuccessor(terminal)
		}
	}
	return Graph{start: g.start, leaves: nil, closed: true}
}

// Copy returns a deep copy of g preserving DAG sharing: a node reachable via
// multiple paths in g is copied once and shared at every path in the
// result, via the package-level copyChild helper.
func (g Graph) Copy() Graph {
	nodeMap := make(map[Node]Node)
	newStart := copyChild(nodeMap, g.start).(NonterminalNode)
	newLeaves := make([]NonterminalNode, 0, len(g.leaves))
	for _, leaf := range g.leaves {
		newLeaves = append(newLeaves, copyChild(nodeMap, leaf).(NonterminalNode))
	}
	return Graph{start: newStart, leaves: newLeaves, closed: g.closed}
}

// RemoveTerminals detaches every given terminal from whatever nonterminals
// currently point to it, using the terminal's own recorded predecessor
// edges so the whole graph need not be walked.
func (g Graph) RemoveTerminals(terminals []*TerminalNode) {
	for _, t := range terminals {
		for _, pred := range t.Predecessors() {
			if nt, ok := pred.Parent.(NonterminalNode); ok {
				nt.RemoveSuccessor(t)
			}
		}
	}
}

// Route threads state through the graph starting from g.start, bracketing
// the whole traversal in a single scope frame (Enter/Exit) — resolving the
// open question of where the Python RouteState scope stack's outermost
// frame is pushed, since that call site lived in an ungrounded graph.py.
func (g Graph) Route(ctx context.Context, state *RouteState) ([]RouteOutcome, error) {
	state.Enter()
	defer state.Exit()
	return g.start.route(ctx, state)
}

// DebugString renders the graph's node tree starting from its start node,
// in the same shape as the Python implementation's debug_fmt.
func (g Graph) DebugString(verbose bool) string {
	var b strings.Builder
	b.WriteString(g.start.DebugString(0, verbose))
	if g.closed {
		b.WriteString(" (closed)")
	} else {
		fmt.Fprintf(&b, " (open, %d leaves)", len(g.leaves))
	}
	return b.String()
}
