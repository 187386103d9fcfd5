package fluxroute

import (
	"context"
	"fmt"

	"github.com/nolandwork/fluxroute/fluxroute/internal/triemap"
)

// PrefixNode evaluates a single string-valued key function once and
// recurses into the successors registered under every stored prefix of the
// resulting string, shortest to longest. It is the graph-native equivalent
// of a routing trie: registering successors under "/api" and "/api/v1"
// against the same PrefixNode lets a request path "/api/v1/users" match
// both, grounded on trie.py's AbsTrieNonterminalNode / pygtrie.CharTrie
// usage.
type PrefixNode struct {
	predecessorSet
	key        *KeyFunction
	trie       *triemap.Trie[[]Node]
	registered []string
	empty      bool
}

// NewPrefixNode returns a PrefixNode dispatching on key, which must evaluate
// to a string.
func NewPrefixNode(key *KeyFunction) *PrefixNode {
	return &PrefixNode{key: key, trie: triemap.New[[]Node](), empty: true}
}

func (n *PrefixNode) mergeIdentity() nodeIdentity {
	return nodeIdentity{kind: kindPrefix, keyID: n.key.ID()}
}

func (n *PrefixNode) Empty() bool { return n.empty }

func (n *PrefixNode) AddKey(key any) error {
	prefix, ok := key.(string)
	if !ok {
		return fmt.Errorf("fluxroute: PrefixNode edge-key must be a string, got %T", key)
	}
	if _, ok := n.trie.Get(prefix); !ok {
		n.trie.Set(prefix, nil)
		n.registered = append(n.registered, prefix)
	}
	return nil
}

func (n *PrefixNode) addSuccessor(prefix string, s Node) {
	n.empty = false
	existing, _ := n.trie.Get(prefix)

	if nt, ok := s.(NonterminalNode); ok {
		for _, u := range existing {
			if unt, ok2 := u.(NonterminalNode); ok2 && unt.mergeIdentity() == nt.mergeIdentity() {
				_ = unt.MergeUnion(nt)
				return
			}
		}
	} else {
		for _, u := range existing {
			if u == s {
				return
			}
		}
	}

	s.addPredecessor(predecessorEdge{Parent: n, EdgeKey: prefix})
	n.trie.Set(prefix, append(existing, s))
}

// AddSuccessor adds s under every prefix this node already has registered.
func (n *PrefixNode) AddSuccessor(s Node) {
	for _, prefix := range n.registered {
		n.addSuccessor(prefix, s)
	}
}

func (n *PrefixNode) RemoveSuccessor(s Node) {
	for _, prefix := range n.registered {
		nodes, _ := n.trie.Get(prefix)
		kept := nodes[:0]
		for _, u := range nodes {
			if u != s {
				kept = append(kept, u)
			}
		}
		n.trie.Set(prefix, kept)
	}
}

func (n *PrefixNode) Successors() []Node {
	seen := make(map[Node]struct{})
	var out []Node
	for _, prefix := range n.registered {
		nodes, _ := n.trie.Get(prefix)
		for _, s := range nodes {
			if _, ok := seen[s]; !ok {
				seen[s] = struct{}{}
				out = append(out, s)
			}
		}
	}
	return out
}

func (n *PrefixNode) MergeUnion(other NonterminalNode) error {
	o, ok := other.(*PrefixNode)
	if !ok || o.key.ID() != n.key.ID() {
		return fmt.Errorf("fluxroute: cannot merge %T into *PrefixNode keyed by a different KeyFunction", other)
	}
	for _, prefix := range o.registered {
		_ = n.AddKey(prefix)
		nodes, _ := o.trie.Get(prefix)
		for _, s := range nodes {
			n.addSuccessor(prefix, s)
		}
	}
	return nil
}

func (n *PrefixNode) Copy(nodeMap map[Node]Node) Node {
	cp := NewPrefixNode(n.key)
	for _, prefix := range n.registered {
		_ = cp.AddKey(prefix)
		nodes, _ := n.trie.Get(prefix)
		for _, child := range nodes {
			cp.addSuccessor(prefix, copyChild(nodeMap, child))
		}
	}
	return cp
}

func (n *PrefixNode) route(ctx context.Context, state *RouteState) ([]RouteOutcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	acc := newOutcomeSet()
	v, err := state.Store.Evaluate(ctx, n.key, state)
	if err != nil {
		acc.add(wrapKeyError(err))
		return acc.slice(), nil
	}
	s, ok := v.(string)
	if !ok {
		// A non-string key result is simply no match (spec.md §4.2, and
		// trie.py's PrefixNode._route: "if not isinstance(key, str): return"),
		// not a routing exception.
		return acc.slice(), nil
	}
	for _, entry := range n.trie.Prefixes(s) {
		if err := routeInto(ctx, state, entry.Value, acc); err != nil {
			return nil, err
		}
	}
	out := acc.slice()
	state.emit("", "route_decision", map[string]interface{}{"kind": "prefix", "matches": len(out)})
	return out, nil
}

func (n *PrefixNode) DebugString(indent int, verbose bool) string {
	return debugFmtNonterminal(n, "PrefixNode", indent, verbose)
}
