package fluxroute

import (
	"context"
	"reflect"
)

// True returns a fresh open Graph whose start is an IdentityNode: every
// traversal unconditionally reaches its open leaf. Useful as a no-op gate
// to anchor further composition, and as the graph form of the engine's
// empty start.
func True() Graph {
	return NewGraph()
}

// Equals returns a fresh open Graph dispatching on key: forward() reaches
// its open leaf whenever key evaluates to one of values — the graph
// equivalent of a switch/case over a computed value (spec.md scenario 2).
func Equals(key *KeyFunction, values ...any) Graph {
	n := NewEqualNode(key)
	for _, v := range values {
		_ = n.AddKey(v)
	}
	return graphFromNode(n)
}

// If returns a fresh open Graph gated by a PredicateNode: forward() reaches
// its open leaf whenever any predicate in predicates evaluates truthy
// (spec.md scenario 1).
func If(predicates ...*KeyFunction) Graph {
	n := NewPredicateNode()
	for _, p := range predicates {
		_ = n.AddKey(p)
	}
	return graphFromNode(n)
}

// Is returns a fresh open Graph matching when forward()'s first positional
// argument has the given type — a type-identity EqualNode, mirroring the
// Python source's `is_ = partial(EqualNode, key=lambda x: type(x))`.
func Is(t reflect.Type) Graph {
	key := NewKeyFunction(func(_ context.Context, state *RouteState, _ map[string]any) (any, error) {
		if len(state.Args) == 0 {
			return nil, nil
		}
		return reflect.TypeOf(state.Args[0]), nil
	})
	n := NewEqualNode(key)
	_ = n.AddKey(t)
	return graphFromNode(n)
}

// Process returns a fresh open Graph with a ProcessorNode that evaluates
// every key function in fns for its side effects (typically publishing a
// named value via WithKeyName so a later handler parameter can bind it)
// and then unconditionally recurses into its open leaf.
func Process(fns ...*KeyFunction) Graph {
	n := NewProcessorNode()
	for _, f := range fns {
		_ = n.AddKey(f)
	}
	return graphFromNode(n)
}

// NamedKey pairs a name with a KeyFuncBody for Store's variadic extra
// key functions, standing in for the Python source's `**named_fns` kwargs.
type NamedKey struct {
	Name string
	Body KeyFuncBody
}

// Store returns a fresh open Graph built from a single ProcessorNode that
// evaluates fn — published into scope under name — and any additional
// extra key functions, each published under its own NamedKey.Name, before
// unconditionally recursing into its open leaf. This is the convenience
// constructor behind spec.md scenario 3's `store_ctx("u", x+1)`.
func Store(name string, fn KeyFuncBody, extra ...NamedKey) Graph {
	n := NewProcessorNode()
	_ = n.AddKey(NewKeyFunction(fn, WithKeyName(name)))
	for _, e := range extra {
		_ = n.AddKey(NewKeyFunction(e.Body, WithKeyName(e.Name)))
	}
	return graphFromNode(n)
}
