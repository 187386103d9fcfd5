package fluxroute

import (
	"context"
	"fmt"
	"reflect"
)

// Node is the minimal contract shared by every graph node: it tracks the
// edges that point into it and knows how to copy itself while preserving
// DAG sharing through nodeMap. Node is intentionally a small interface —
// the routing behavior lives on NonterminalNode and TerminalNode directly,
// not here.
type Node interface {
	addPredecessor(e predecessorEdge)
	Predecessors() []predecessorEdge
	Copy(nodeMap map[Node]Node) Node
}

type predecessorEdge struct {
	Parent  Node
	EdgeKey any
}

type predecessorSet struct {
	preds []predecessorEdge
}

func (p *predecessorSet) addPredecessor(e predecessorEdge) {
	p.preds = append(p.preds, e)
}

func (p *predecessorSet) Predecessors() []predecessorEdge {
	return p.preds
}

// nodeKind tags which concrete nonterminal shape a node is. It is the
// coarse half of nodeIdentity.
type nodeKind uint8

const (
	kindIdentity nodeKind = iota
	kindPredicate
	kindEqual
	kindProcessor
	kindPrefix
)

// nodeIdentity is the structural identity two nonterminals are compared by
// during merge-union (spec's "__id__"). PredicateNode and ProcessorNode
// carry kind alone: any two instances of the same kind are considered the
// same node for merge purposes, so adding a second PredicateNode under an
// edge-key already holding one merges their predicate tables instead of
// creating a sibling. EqualNode and PrefixNode additionally carry their key
// function's identity, so only nodes keyed by the *same* KeyFunction merge.
type nodeIdentity struct {
	kind  nodeKind
	keyID uint64
}

// mergeIdentifier is implemented by every NonterminalNode. It is kept
// separate from Node because TerminalNode never participates in
// merge-union — only nonterminals do.
type mergeIdentifier interface {
	mergeIdentity() nodeIdentity
}

// NonterminalNode is a decision node: it holds an edge-key -> successor-set
// table and knows how to route a RouteState through it. The interface is
// deliberately unexported-method-gated (mergeIdentity, route) so only this
// package's five standard kinds can implement it.
type NonterminalNode interface {
	Node
	mergeIdentifier

	Empty() bool
	AddKey(key any) error
	AddSuccessor(n Node)
	RemoveSuccessor(n Node)
	MergeUnion(other NonterminalNode) error
	Successors() []Node
	DebugString(indent int, verbose bool) string

	route(ctx context.Context, state *RouteState) ([]RouteOutcome, error)
}

// successorTable is the shared edge-key -> []Node storage backing every
// standard nonterminal except PrefixNode (which keys by string prefix via
// internal/triemap instead of exact match).
type successorTable struct {
	successors map[any][]Node
	empty      bool
}

func newSuccessorTable() *successorTable {
	return &successorTable{successors: make(map[any][]Node), empty: true}
}

func (t *successorTable) Empty() bool { return t.empty }

func (t *successorTable) AddKey(key any) error {
	if !isHashable(key) {
		return fmt.Errorf("fluxroute: cannot add %T as a nonterminal edge-key: not comparable", key)
	}
	if _, ok := t.successors[key]; !ok {
		t.successors[key] = nil
	}
	return nil
}

// addSuccessor attaches n under key, owned by self (used to register n's
// predecessor edge). If n is a nonterminal whose mergeIdentity matches an
// existing successor at this key, the two merge instead of n being added as
// a new sibling. A terminal n already present at this key (by pointer) is
// not re-added.
func (t *successorTable) addSuccessor(self Node, key any, n Node) {
	t.empty = false
	existing := t.successors[key]

	if nt, ok := n.(NonterminalNode); ok {
		for _, u := range existing {
			if unt, ok2 := u.(NonterminalNode); ok2 && unt.mergeIdentity() == nt.mergeIdentity() {
				_ = unt.MergeUnion(nt)
				return
			}
		}
	} else {
		for _, u := range existing {
			if u == n {
				return
			}
		}
	}

	n.addPredecessor(predecessorEdge{Parent: self, EdgeKey: key})
	t.successors[key] = append(existing, n)
}

// AddSuccessor adds n under every edge-key this table already has, the
// "add_successor" operation spec.md 4.1 describes for sequential-then.
func (t *successorTable) AddSuccessor(self Node, n Node) {
	for key := range t.successors {
		t.addSuccessor(self, key, n)
	}
}

func (t *successorTable) RemoveSuccessor(n Node) {
	for key, nodes := range t.successors {
		kept := nodes[:0]
		for _, u := range nodes {
			if u != n {
				kept = append(kept, u)
			}
		}
		if len(kept) == 0 {
			delete(t.successors, key)
		} else {
			t.successors[key] = kept
		}
	}
}

func (t *successorTable) Successors() []Node {
	seen := make(map[Node]struct{})
	var out []Node
	for _, nodes := range t.successors {
		for _, n := range nodes {
			if _, ok := seen[n]; !ok {
				seen[n] = struct{}{}
				out = append(out, n)
			}
		}
	}
	return out
}

func (t *successorTable) mergeUnionInto(self Node, other *successorTable) {
	for key, nodes := range other.successors {
		if len(nodes) == 0 {
			_ = t.AddKey(key)
		}
		for _, n := range nodes {
			t.addSuccessor(self, key, n)
		}
	}
}

// copyChild returns nodeMap's copy of n, creating and registering one on
// first encounter. Every NonterminalNode.Copy implementation routes its
// children through this so a node reachable via k paths copies to a single
// shared instance reachable via k paths, not k independent copies.
func copyChild(nodeMap map[Node]Node, n Node) Node {
	if c, ok := nodeMap[n]; ok {
		return c
	}
	c := n.Copy(nodeMap)
	nodeMap[n] = c
	return c
}

// identityEdgeKey is the single implicit always-matching edge-key used by
// IdentityNode.
type identityEdgeKey struct{}

// IdentityNode is a nonterminal with one implicit edge that always matches.
// It is used as the start node of a freshly constructed, not-yet-composed
// Graph, and as the polyglot wrapper Graph.Union builds when two starts of
// different kinds must coexist.
type IdentityNode struct {
	predecessorSet
	successorTable
}

// NewIdentityNode returns an IdentityNode with its implicit edge-key already
// registered but no successors attached (Empty() is true).
func NewIdentityNode() *IdentityNode {
	n := &IdentityNode{successorTable: *newSuccessorTable()}
	_ = n.AddKey(identityEdgeKey{})
	return n
}

func (n *IdentityNode) mergeIdentity() nodeIdentity { return nodeIdentity{kind: kindIdentity} }

func (n *IdentityNode) AddSuccessor(s Node) { n.successorTable.AddSuccessor(n, s) }

func (n *IdentityNode) MergeUnion(other NonterminalNode) error {
	o, ok := other.(*IdentityNode)
	if !ok {
		return fmt.Errorf("fluxroute: cannot merge %T into *IdentityNode", other)
	}
	n.successorTable.mergeUnionInto(n, &o.successorTable)
	return nil
}

func (n *IdentityNode) Copy(nodeMap map[Node]Node) Node {
	cp := NewIdentityNode()
	for key, nodes := range n.successors {
		for _, child := range nodes {
			cp.successorTable.addSuccessor(cp, key, copyChild(nodeMap, child))
		}
	}
	return cp
}

func (n *IdentityNode) route(ctx context.Context, state *RouteState) ([]RouteOutcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	acc := newOutcomeSet()
	if err := routeInto(ctx, state, n.successors[identityEdgeKey{}], acc); err != nil {
		return nil, err
	}
	out := acc.slice()
	state.emit("", "route_decision", map[string]interface{}{"kind": "identity", "matches": len(out)})
	return out, nil
}

func (n *IdentityNode) DebugString(indent int, verbose bool) string {
	return debugFmtNonterminal(n, "IdentityNode", indent, verbose)
}

// outcomeSet accumulates RouteOutcomes the way spec.md's set-union routing
// algorithm does: matches dedupe by their TerminalNode (a handler reached
// via two paths in one nonterminal's subtree yields once), exceptions never
// dedupe (each is a distinct signal).
type outcomeSet struct {
	seen    map[*TerminalNode]struct{}
	results []RouteOutcome
}

func newOutcomeSet() *outcomeSet {
	return &outcomeSet{seen: make(map[*TerminalNode]struct{})}
}

func (s *outcomeSet) add(o RouteOutcome) {
	if o.Result != nil {
		if _, ok := s.seen[o.Result.Node]; ok {
			return
		}
		s.seen[o.Result.Node] = struct{}{}
	}
	s.results = append(s.results, o)
}

func (s *outcomeSet) addAll(outcomes []RouteOutcome) {
	for _, o := range outcomes {
		s.add(o)
	}
}

func (s *outcomeSet) slice() []RouteOutcome { return s.results }

// routeInto routes state into every node in nodes, collecting results into
// acc: a TerminalNode becomes a match via state.Wrap, a NonterminalNode
// recurses. This is the "for node in nodes: ..." loop body shared by every
// standard nonterminal's route method.
func routeInto(ctx context.Context, state *RouteState, nodes []Node, acc *outcomeSet) error {
	for _, n := range nodes {
		switch t := n.(type) {
		case *TerminalNode:
			acc.add(RouteOutcome{Result: state.Wrap(t)})
		case NonterminalNode:
			sub, err := t.route(ctx, state)
			if err != nil {
				return err
			}
			acc.addAll(sub)
		}
	}
	return nil
}

// truthy mirrors Python's duck-typed truthiness for PredicateNode edge
// values: nil, zero numbers, false, and empty strings/slices/maps/arrays are
// falsy; everything else is truthy.
func truthy(v any) bool {
	if v == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool()
	case reflect.String:
		return rv.Len() > 0
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() > 0
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	case reflect.Ptr, reflect.Interface:
		return !rv.IsNil()
	default:
		return true
	}
}

func debugFmtNonterminal(n NonterminalNode, typeName string, indent int, verbose bool) string {
	pad := func(n int) string {
		b := make([]byte, n)
		for i := range b {
			b[i] = ' '
		}
		return string(b)
	}
	out := ""
	for _, s := range n.Successors() {
		inner := ""
		if nt, ok := s.(NonterminalNode); ok {
			inner = nt.DebugString(indent+2, verbose)
		} else if t, ok := s.(*TerminalNode); ok {
			inner = t.DebugString(indent + 2)
		}
		out += fmt.Sprintf("%s[\n%s\n%s]\n", pad(indent+2), inner, pad(indent+2))
	}
	if verbose {
		return fmt.Sprintf("%s<%s:\n%s%s>", pad(indent), typeName, out, pad(indent))
	}
	return fmt.Sprintf("%s<%s %p:\n%s%s>", pad(indent), typeName, n, out, pad(indent))
}
