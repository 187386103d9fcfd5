package fluxroute

import (
	"errors"
	"fmt"
)

// ErrClosedGraph is returned by Graph.Then when the receiver is already closed.
var ErrClosedGraph = errors.New("fluxroute: cannot sequentially compose a closed graph")

// ErrOpenGraph is returned by Engine.Subscribe when given a graph that has
// not had a terminal applied to every leaf.
var ErrOpenGraph = errors.New("fluxroute: cannot subscribe an open graph")

// RouteException is a structured signal raised inside a key function to
// abort one subtree of a traversal with a caller-supplied payload. It is a
// routing-level outcome, not a Go error in the usual sense: a predicate or
// processor may return it and the engine yields Payload to the caller
// without aborting sibling branches.
type RouteException struct {
	Payload any
}

func (e *RouteException) Error() string {
	return fmt.Sprintf("fluxroute: route exception: %v", e.Payload)
}

// RouteInternalException wraps an unexpected error raised by user code
// (a key function, a predicate) during routing. It is yielded to the caller
// like RouteException but is distinguishable as unintended.
type RouteInternalException struct {
	Cause error
}

func (e *RouteInternalException) Error() string {
	return fmt.Sprintf("fluxroute: route internal exception: %v", e.Cause)
}

func (e *RouteInternalException) Unwrap() error { return e.Cause }

// BindingError reports a failure to resolve a handler's parameter from the
// traversal mapping or store. It is a programmer error: construction-time
// signature mistakes or a key function that never ran under the name a
// handler expects. NewTerminalNode returns it for a bad signature. At
// Forward time TerminalNode.Forward returns it, and Engine.Forward yields it
// as that handler's HandlerErr; the forward call is not aborted and the
// other matched handlers still run.
type BindingError struct {
	Handler string
	Detail  string
}

func (e *BindingError) Error() string {
	if e.Handler == "" {
		return fmt.Sprintf("fluxroute: binding error: %s", e.Detail)
	}
	return fmt.Sprintf("fluxroute: binding error in %s: %s", e.Handler, e.Detail)
}

// EngineError wraps an error surfaced by an Engine operation with enough
// context to tell which call failed. BoundGraph.Handle wraps its Subscribe
// failure in one; Engine.Subscribe itself returns ErrOpenGraph unwrapped.
type EngineError struct {
	Op    string
	Cause error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("fluxroute: %s: %v", e.Op, e.Cause)
}

func (e *EngineError) Unwrap() error { return e.Cause }

func wrapKeyError(err error) RouteOutcome {
	var routeExc *RouteException
	if errors.As(err, &routeExc) {
		return RouteOutcome{Err: routeExc}
	}
	return RouteOutcome{Err: &RouteInternalException{Cause: err}}
}
