package fluxroute

import (
	"context"
	"sync/atomic"
)

// KeyFuncBody computes a value from the traversal state. built is the
// flattened scope (RouteState.Build) at the point the key function is
// evaluated; most key functions only need state.Args or built, never both.
type KeyFuncBody func(ctx context.Context, state *RouteState, built map[string]any) (any, error)

var keyFunctionSeq uint64

// KeyFunction is an identity-bearing callable: two KeyFunction values are
// equal iff they share identity, never by comparing their closures. The
// identity is what lets two independently constructed nodes that reference
// "the same" computation merge (EqualNode, PrefixNode) and what a KeyStore
// memoizes against.
type KeyFunction struct {
	id   uint64
	name string
	has  bool
	body KeyFuncBody
}

// KeyFunctionOption configures a KeyFunction at construction.
type KeyFunctionOption func(*KeyFunction)

// WithKeyName gives the KeyFunction a name: once evaluated, the KeyFunction
// itself is published into the traversal's current scope under this name as
// an indirection to its memoized result, making that result visible to later
// handler parameter resolution without an explicit ProcessorNode.
func WithKeyName(name string) KeyFunctionOption {
	return func(k *KeyFunction) {
		k.name = name
		k.has = true
	}
}

// NewKeyFunction allocates a fresh KeyFunction wrapping body. Each call
// produces a distinct identity even if body is behaviorally identical to one
// passed to a prior call.
func NewKeyFunction(body KeyFuncBody, opts ...KeyFunctionOption) *KeyFunction {
	kf := &KeyFunction{id: atomic.AddUint64(&keyFunctionSeq, 1), body: body}
	for _, opt := range opts {
		opt(kf)
	}
	return kf
}

// ID returns the KeyFunction's identity, stable for its lifetime and unique
// across the process.
func (k *KeyFunction) ID() uint64 { return k.id }

// Name returns the name this KeyFunction publishes its result under, if any.
func (k *KeyFunction) Name() (string, bool) { return k.name, k.has }

func (k *KeyFunction) call(ctx context.Context, state *RouteState) (any, error) {
	return k.body(ctx, state, state.Build())
}
