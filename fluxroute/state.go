package fluxroute

import (
	"github.com/google/uuid"

	"github.com/nolandwork/fluxroute/fluxroute/emit"
)

// RouteState is the mutable per-traversal context threaded through a single
// Engine.Forward call: the positional arguments, the memoizing KeyStore, and
// a stack of scope frames that nonterminals push/pop as they recurse.
//
// A RouteState is created fresh for every traversal and never reused or
// shared across traversals — the concurrency model relies on that isolation.
type RouteState struct {
	Args        []any
	Store       *KeyStore
	TraversalID string

	scopes []map[string]any

	emitter emit.Emitter
	metrics *PrometheusMetrics
}

// NewRouteState builds a RouteState over args and store, stamping a fresh
// traversal ID used to correlate emitted events and metrics for this
// traversal.
func NewRouteState(args []any, store *KeyStore) *RouteState {
	return &RouteState{
		Args:        args,
		Store:       store,
		TraversalID: uuid.NewString(),
	}
}

// withObservability attaches the engine's emitter and metrics to state so
// that KeyStore.Evaluate and every nonterminal's route method can surface
// key-function and routing-decision events without threading them through
// every call signature. Called once by Engine.runForward right after
// construction; a RouteState left without it (as every other_test.go in
// this package constructs them) simply emits and records nothing.
func (s *RouteState) withObservability(e emit.Emitter, m *PrometheusMetrics) *RouteState {
	s.emitter = e
	s.metrics = m
	return s
}

// emit reports msg (plus meta) to the attached emitter, a no-op when state
// was built without one (NewRouteState alone, as in this package's tests).
func (s *RouteState) emit(nodeID, msg string, meta map[string]interface{}) {
	if s.emitter == nil {
		return
	}
	s.emitter.Emit(emit.Event{TraversalID: s.TraversalID, NodeID: nodeID, Msg: msg, Meta: meta})
}

// Enter pushes a fresh scope frame. Writes via Set land in the newest frame
// until the matching Exit pops it.
func (s *RouteState) Enter() {
	s.scopes = append(s.scopes, map[string]any{})
}

// Exit pops the newest scope frame. It panics if called without a matching
// Enter — a programmer error; Graph.Route pairs its Enter with a deferred
// Exit. The frame Set pushes on an empty stack has no matching Exit.
func (s *RouteState) Exit() {
	if len(s.scopes) == 0 {
		panic("fluxroute: RouteState.Exit called without a matching Enter")
	}
	s.scopes = s.scopes[:len(s.scopes)-1]
}

// Set writes key into the top scope frame.
func (s *RouteState) Set(key string, value any) {
	if len(s.scopes) == 0 {
		s.Enter()
	}
	s.scopes[len(s.scopes)-1][key] = value
}

// Build flattens the scope stack into one mapping, deeper frames overriding
// shallower ones.
func (s *RouteState) Build() map[string]any {
	out := make(map[string]any, 8)
	for _, scope := range s.scopes {
		for k, v := range scope {
			out[k] = v
		}
	}
	return out
}

// Wrap snapshots Build() into a RouteResult bound to node, capturing the
// scope environment in effect at the moment node matched.
func (s *RouteState) Wrap(node *TerminalNode) *RouteResult {
	return &RouteResult{Node: node, Mapping: s.Build()}
}

// RouteResult pairs a matched TerminalNode with the binding environment
// (built from the scope stack) captured when it matched. Two RouteResults
// are considered the same match iff they share Node — Mapping is
// informational only and never compared.
type RouteResult struct {
	Node    *TerminalNode
	Mapping map[string]any
}

// RouteOutcome is a tagged union over the two shapes routing can produce for
// one reachable path: a successful match (Result) or a routing-level
// exception (Err, a *RouteException or *RouteInternalException).
type RouteOutcome struct {
	Result *RouteResult
	Err    error
}

// IsException reports whether this outcome carries a routing exception
// rather than a match.
func (o RouteOutcome) IsException() bool { return o.Err != nil }
