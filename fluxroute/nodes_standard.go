package fluxroute

import (
	"context"
	"fmt"
)

// PredicateNode evaluates every attached predicate KeyFunction and recurses
// into the successors registered under each predicate that returned a
// truthy value. Any two PredicateNodes merge on union regardless of which
// predicates they carry — see nodeIdentity's doc comment — so composing
// several "if" branches against the same graph accumulates one predicate
// table rather than nesting PredicateNodes.
type PredicateNode struct {
	predecessorSet
	successorTable
}

// NewPredicateNode returns an empty PredicateNode ready to have predicate
// KeyFunctions attached via AddKey.
func NewPredicateNode() *PredicateNode {
	return &PredicateNode{successorTable: *newSuccessorTable()}
}

func (n *PredicateNode) mergeIdentity() nodeIdentity { return nodeIdentity{kind: kindPredicate} }

func (n *PredicateNode) AddSuccessor(s Node) { n.successorTable.AddSuccessor(n, s) }

func (n *PredicateNode) MergeUnion(other NonterminalNode) error {
	o, ok := other.(*PredicateNode)
	if !ok {
		return fmt.Errorf("fluxroute: cannot merge %T into *PredicateNode", other)
	}
	n.successorTable.mergeUnionInto(n, &o.successorTable)
	return nil
}

func (n *PredicateNode) Copy(nodeMap map[Node]Node) Node {
	cp := NewPredicateNode()
	for key, nodes := range n.successors {
		_ = cp.AddKey(key)
		for _, child := range nodes {
			cp.successorTable.addSuccessor(cp, key, copyChild(nodeMap, child))
		}
	}
	return cp
}

func (n *PredicateNode) route(ctx context.Context, state *RouteState) ([]RouteOutcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	acc := newOutcomeSet()
	for key, nodes := range n.successors {
		pred, ok := key.(*KeyFunction)
		if !ok {
			continue
		}
		v, err := state.Store.Evaluate(ctx, pred, state)
		if err != nil {
			acc.add(wrapKeyError(err))
			continue
		}
		if !truthy(v) {
			continue
		}
		if err := routeInto(ctx, state, nodes, acc); err != nil {
			return nil, err
		}
	}
	out := acc.slice()
	state.emit("", "route_decision", map[string]interface{}{"kind": "predicate", "matches": len(out)})
	return out, nil
}

func (n *PredicateNode) DebugString(indent int, verbose bool) string {
	return debugFmtNonterminal(n, "PredicateNode", indent, verbose)
}

// EqualNode evaluates a single key function once and recurses only into the
// successors registered under the value it returned — a switch/case on a
// computed key. Two EqualNodes merge on union only if they share the same
// key function identity (see nodeIdentity).
type EqualNode struct {
	predecessorSet
	successorTable
	key *KeyFunction
}

// NewEqualNode returns an EqualNode dispatching on key.
func NewEqualNode(key *KeyFunction) *EqualNode {
	return &EqualNode{successorTable: *newSuccessorTable(), key: key}
}

func (n *EqualNode) mergeIdentity() nodeIdentity {
	return nodeIdentity{kind: kindEqual, keyID: n.key.ID()}
}

func (n *EqualNode) AddSuccessor(s Node) { n.successorTable.AddSuccessor(n, s) }

func (n *EqualNode) MergeUnion(other NonterminalNode) error {
	o, ok := other.(*EqualNode)
	if !ok || o.key.ID() != n.key.ID() {
		return fmt.Errorf("fluxroute: cannot merge %T into *EqualNode keyed by a different KeyFunction", other)
	}
	n.successorTable.mergeUnionInto(n, &o.successorTable)
	return nil
}

func (n *EqualNode) Copy(nodeMap map[Node]Node) Node {
	cp := NewEqualNode(n.key)
	for key, nodes := range n.successors {
		_ = cp.AddKey(key)
		for _, child := range nodes {
			cp.successorTable.addSuccessor(cp, key, copyChild(nodeMap, child))
		}
	}
	return cp
}

func (n *EqualNode) route(ctx context.Context, state *RouteState) ([]RouteOutcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	acc := newOutcomeSet()
	v, err := state.Store.Evaluate(ctx, n.key, state)
	if err != nil {
		acc.add(wrapKeyError(err))
		return acc.slice(), nil
	}
	if !isHashable(v) {
		// A non-hashable key result is a programmer error (spec §4.2/§7
		// category 3), not a routing outcome — it can never compare equal to
		// any registered edge-key, so silently swallowing it into an
		// exception outcome would mask a broken key function.
		panic(fmt.Sprintf("fluxroute: EqualNode key function returned a non-comparable %T", v))
	}
	if err := routeInto(ctx, state, n.successors[v], acc); err != nil {
		return nil, err
	}
	out := acc.slice()
	state.emit("", "route_decision", map[string]interface{}{"kind": "equal", "matches": len(out)})
	return out, nil
}

func (n *EqualNode) DebugString(indent int, verbose bool) string {
	return debugFmtNonterminal(n, "EqualNode", indent, verbose)
}

// ProcessorNode evaluates every attached processor KeyFunction for its
// side effects (typically publishing a named value into scope via
// WithKeyName) and always recurses into every successor afterward,
// regardless of whether any processor failed. A processor's
// RouteException/error becomes an additional outcome alongside whatever the
// successors produce, never a substitute for routing into them.
type ProcessorNode struct {
	predecessorSet
	successorTable
}

// NewProcessorNode returns an empty ProcessorNode.
func NewProcessorNode() *ProcessorNode {
	return &ProcessorNode{successorTable: *newSuccessorTable()}
}

func (n *ProcessorNode) mergeIdentity() nodeIdentity { return nodeIdentity{kind: kindProcessor} }

func (n *ProcessorNode) AddSuccessor(s Node) { n.successorTable.AddSuccessor(n, s) }

func (n *ProcessorNode) MergeUnion(other NonterminalNode) error {
	o, ok := other.(*ProcessorNode)
	if !ok {
		return fmt.Errorf("fluxroute: cannot merge %T into *ProcessorNode", other)
	}
	n.successorTable.mergeUnionInto(n, &o.successorTable)
	return nil
}

func (n *ProcessorNode) Copy(nodeMap map[Node]Node) Node {
	cp := NewProcessorNode()
	for key, nodes := range n.successors {
		_ = cp.AddKey(key)
		for _, child := range nodes {
			cp.successorTable.addSuccessor(cp, key, copyChild(nodeMap, child))
		}
	}
	return cp
}

func (n *ProcessorNode) route(ctx context.Context, state *RouteState) ([]RouteOutcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	acc := newOutcomeSet()
	for key := range n.successors {
		proc, ok := key.(*KeyFunction)
		if !ok {
			continue
		}
		if _, err := state.Store.Evaluate(ctx, proc, state); err != nil {
			acc.add(wrapKeyError(err))
		}
	}
	for _, nodes := range n.successors {
		if err := routeInto(ctx, state, nodes, acc); err != nil {
			return nil, err
		}
	}
	out := acc.slice()
	state.emit("", "route_decision", map[string]interface{}{"kind": "processor", "matches": len(out)})
	return out, nil
}

func (n *ProcessorNode) DebugString(indent int, verbose bool) string {
	return debugFmtNonterminal(n, "ProcessorNode", indent, verbose)
}
