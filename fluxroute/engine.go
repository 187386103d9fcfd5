package fluxroute

import (
	"context"
	"errors"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nolandwork/fluxroute/fluxroute/emit"
)

// Engine is the public facade: callers subscribe closed Graphs to it and
// forward events through it. It keeps a mutable accumulating graph and a
// dirty-flag-gated compiled copy used for routing, per spec.md section 3's
// Lifecycle.
type Engine struct {
	mu       sync.Mutex
	graph    Graph
	compiled Graph
	dirty    bool

	cfg      engineConfig
	inflight int64
}

// New builds an Engine with an empty accumulating graph, ready to accept
// Subscribe calls.
func New(opts ...Option) *Engine {
	cfg := defaultEngineConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	empty := NewGraph().Apply(nil)
	return &Engine{
		graph:    empty,
		compiled: empty,
		dirty:    true,
		cfg:      cfg,
	}
}

// BoundGraph is the result of Engine.On(g): an open graph wired to a
// specific engine, supporting decorator-style registration — calling
// Handle with a function builds a TerminalNode, closes g with it, and
// subscribes the result in one step, mirroring the Python source's
// `@engine.on(graph)` over a plain function.
type BoundGraph struct {
	engine *Engine
	graph  Graph
}

// On returns g bound to this engine for decorator-style subscription.
func (e *Engine) On(g Graph) *BoundGraph {
	return &BoundGraph{engine: e, graph: g}
}

// Handle builds a TerminalNode around fn, attaches it to every open leaf of
// the bound graph, and subscribes the now-closed result to the engine.
func (b *BoundGraph) Handle(fn any, opts ...HandlerOption) (*TerminalNode, error) {
	term, err := NewTerminalNode(fn, opts...)
	if err != nil {
		return nil, err
	}
	closed := b.graph.Apply(term)
	if err := b.engine.Subscribe(closed); err != nil {
		return nil, &EngineError{Op: "Handle", Cause: err}
	}
	return term, nil
}

// Subscribe unions g into the engine's accumulating graph. g must be
// closed (every leaf terminated) — ErrOpenGraph otherwise, a programmer
// error per spec.md section 7 category 3.
func (e *Engine) Subscribe(g Graph) error {
	if !g.Closed() {
		return ErrOpenGraph
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.graph = e.graph.Union(g)
	e.dirty = true
	return nil
}

// UnsubscribeTerminals detaches the given terminals from the accumulating
// graph and marks the compiled copy stale.
func (e *Engine) UnsubscribeTerminals(terminals []*TerminalNode) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.graph.RemoveTerminals(terminals)
	e.dirty = true
}

// Clear empties the accumulating graph.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	empty := NewGraph().Apply(nil)
	e.graph = empty
	e.compiled = empty
	e.dirty = true
}

// ForwardResult is one item Engine.Forward yields: either a routing-level
// exception discovered while traversing the graph (IsException true,
// Exception set) or a matched terminal's completed invocation (Node, Value,
// HandlerErr set). Exceptions are always yielded before any handler result,
// per spec.md section 5's ordering guarantee.
type ForwardResult struct {
	IsException bool
	Exception   error

	Node       *TerminalNode
	Value      any
	HandlerErr error
}

// Forward builds a fresh RouteState over args/kwargs, routes it through a
// compiled copy of the accumulating graph, and returns a Go iterator
// streaming routing exceptions followed by matched-handler results —
// the Go-native replacement for the Python source's `async for` (see
// SPEC_FULL.md section 5).
func (e *Engine) Forward(ctx context.Context, args []any, kwargs map[string]any) iter.Seq[ForwardResult] {
	return func(yield func(ForwardResult) bool) {
		for r := range e.ForwardChan(ctx, args, kwargs) {
			if !yield(r) {
				return
			}
		}
	}
}

// ForwardChan is a channel-based equivalent of Forward, for callers that
// prefer to select over the result stream rather than range over an
// iter.Seq — the teacher's own scheduler plumbing (graph/scheduler.go's
// Frontier) favors channels for exactly this reason.
func (e *Engine) ForwardChan(ctx context.Context, args []any, kwargs map[string]any) <-chan ForwardResult {
	out := make(chan ForwardResult)

	e.mu.Lock()
	if e.dirty {
		e.compiled = e.graph.Copy()
		e.dirty = false
	}
	compiled := e.compiled
	e.mu.Unlock()

	cancel := func() {}
	if e.cfg.traversalTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, e.cfg.traversalTimeout)
	}

	go e.runForward(ctx, cancel, compiled, args, kwargs, out)

	return out
}

func (e *Engine) runForward(ctx context.Context, cancel context.CancelFunc, compiled Graph, args []any, kwargs map[string]any, out chan<- ForwardResult) {
	defer close(out)
	defer cancel()

	n := atomic.AddInt64(&e.inflight, 1)
	defer func() {
		n := atomic.AddInt64(&e.inflight, -1)
		if e.cfg.metrics != nil {
			e.cfg.metrics.UpdateInflightTraversals(int(n))
		}
	}()
	if e.cfg.metrics != nil {
		e.cfg.metrics.UpdateInflightTraversals(int(n))
	}

	store := NewKeyStore(kwargs)
	state := NewRouteState(args, store).withObservability(e.cfg.emitter, e.cfg.metrics)
	store.Set("_store", store)
	store.Set("_state", state)

	outcomes, err := compiled.Route(ctx, state)
	if err != nil {
		e.emitEvent(state.TraversalID, "", "traversal_aborted", map[string]interface{}{"error": err.Error()})
		// ctx is usually already done here (timeout or cancellation), so the
		// abort result is delivered without racing it against ctx.Done().
		out <- ForwardResult{IsException: true, Exception: err}
		return
	}

	var matches []RouteOutcome
	for _, o := range outcomes {
		if o.IsException() {
			e.recordException(state.TraversalID, o.Err)
			if !send(ctx, out, ForwardResult{IsException: true, Exception: o.Err}) {
				return
			}
			continue
		}
		matches = append(matches, o)
	}

	exec := e.newExecutor()
	if e.cfg.metrics != nil {
		e.cfg.metrics.UpdateQueueDepth(len(matches))
	}
	for _, o := range matches {
		result := o.Result
		node := result.Node
		exec.CreateTask(node, func(ctx context.Context) (any, error) {
			e.emitEvent(state.TraversalID, node.ID(), "handler_start", map[string]interface{}{"priority": node.Priority()})
			start := time.Now()
			v, err := node.Forward(ctx, state, result)
			e.emitEvent(state.TraversalID, node.ID(), "handler_end", map[string]interface{}{"duration_ms": time.Since(start).Milliseconds()})
			return v, err
		}, node.Priority(), node.CountFinished())
	}

	pending := len(matches)
	for r := range exec.Run(ctx) {
		pending--
		if e.cfg.metrics != nil {
			e.cfg.metrics.UpdateQueueDepth(pending)
		}
		if r.Err != nil && e.cfg.metrics != nil {
			e.cfg.metrics.IncrementHandlerErrors(r.Node.ID())
		}
		if !send(ctx, out, ForwardResult{Node: r.Node, Value: r.Value, HandlerErr: r.Err}) {
			return
		}
	}
}

func (e *Engine) newExecutor() Executor {
	if e.cfg.useConcurrentExec {
		return NewConcurrentExecutor()
	}
	return NewPriorityExecutor()
}

func (e *Engine) recordException(traversalID string, err error) {
	kind := "internal"
	var routeExc *RouteException
	if errors.As(err, &routeExc) {
		kind = "route"
	}
	if e.cfg.metrics != nil {
		e.cfg.metrics.IncrementRouteExceptions(kind)
	}
	e.emitEvent(traversalID, "", "route_exception", map[string]interface{}{"kind": kind, "error": err.Error()})
}

func (e *Engine) emitEvent(traversalID, nodeID, msg string, meta map[string]interface{}) {
	if e.cfg.emitter == nil {
		return
	}
	e.cfg.emitter.Emit(emit.Event{TraversalID: traversalID, NodeID: nodeID, Msg: msg, Meta: meta})
}

// send delivers v on out, returning false if ctx was cancelled first (the
// caller should stop producing further results — spec.md section 5's
// cancellation guarantee: no further terminals scheduled once the caller
// stops consuming).
func send(ctx context.Context, out chan<- ForwardResult, v ForwardResult) bool {
	select {
	case out <- v:
		return true
	case <-ctx.Done():
		return false
	}
}
