package fluxroute

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/nolandwork/fluxroute/fluxroute/pqueue"
)

// DefaultPriority is the baseline executor priority a TerminalNode gets when
// no WithPriority option is given. Smaller values run earlier.
const DefaultPriority = 0

// TaskResult is one completed (or failed) handler invocation streamed back
// from an Executor's Run. A handler runtime error is carried in Err rather
// than aborting the run — spec.md section 7 category 4: handler errors are
// caught and yielded, never allowed to affect sibling handlers.
type TaskResult struct {
	Node          *TerminalNode
	Value         any
	Err           error
	CountFinished bool
}

// taskFunc is the executor's view of a submitted unit of work: everything
// needed to invoke one matched TerminalNode has already been captured by
// the caller (Engine.Forward) via closure.
type taskFunc func(ctx context.Context) (any, error)

type taskDescriptor struct {
	node          *TerminalNode
	fn            taskFunc
	countFinished bool
	priority      int
}

// Executor schedules the handlers matched by one Graph.Route call. A fresh
// Executor is created per Engine.Forward, per spec.md section 4.5.
type Executor interface {
	// CreateTask enqueues fn, to run at priority (ascending, ties broken by
	// submission order) attributed to node for result/metric labeling.
	CreateTask(node *TerminalNode, fn taskFunc, priority int, countFinished bool)

	// Run drains every enqueued task and streams a TaskResult for each as
	// it completes. The returned channel is closed once every task has
	// run. Run must be called at most once per Executor.
	Run(ctx context.Context) <-chan TaskResult
}

// PriorityExecutor runs tasks strictly sequentially, ascending by priority:
// it starts a task, awaits its completion, yields the result, then starts
// the next. This is the default per spec.md section 4.5 point 1 — the
// executor does not interleave tasks.
type PriorityExecutor struct {
	mu    sync.Mutex
	queue *pqueue.PriorityQueue[*taskDescriptor]
}

// NewPriorityExecutor returns an empty, ready-to-use PriorityExecutor.
func NewPriorityExecutor() *PriorityExecutor {
	return &PriorityExecutor{queue: pqueue.New[*taskDescriptor]()}
}

func (e *PriorityExecutor) CreateTask(node *TerminalNode, fn taskFunc, priority int, countFinished bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queue.Push(&taskDescriptor{node: node, fn: fn, countFinished: countFinished, priority: priority}, priority)
}

func (e *PriorityExecutor) Run(ctx context.Context) <-chan TaskResult {
	out := make(chan TaskResult)
	go func() {
		defer close(out)
		for {
			e.mu.Lock()
			d, ok := e.queue.Pop()
			e.mu.Unlock()
			if !ok {
				return
			}
			value, err := d.fn(ctx)
			select {
			case out <- TaskResult{Node: d.node, Value: value, Err: err, CountFinished: d.countFinished}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// ConcurrentExecutor runs all tasks sharing the current minimum priority
// concurrently via errgroup, and only advances to the next priority tier
// once that whole batch has completed. This preserves "priority ordering
// across yielded results" (spec.md design notes' "acceptable extension")
// while letting same-priority handlers run in parallel — grounded on the
// teacher's graph/engine.go executeParallel bounded-fan-out shape,
// reimplemented with errgroup instead of a manual semaphore (the same join-
// after-fan-out shape ahrav-go-gavel's answerer_unit.go uses errgroup for).
type ConcurrentExecutor struct {
	mu    sync.Mutex
	queue *pqueue.PriorityQueue[*taskDescriptor]
}

// NewConcurrentExecutor returns an empty, ready-to-use ConcurrentExecutor.
func NewConcurrentExecutor() *ConcurrentExecutor {
	return &ConcurrentExecutor{queue: pqueue.New[*taskDescriptor]()}
}

func (e *ConcurrentExecutor) CreateTask(node *TerminalNode, fn taskFunc, priority int, countFinished bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queue.Push(&taskDescriptor{node: node, fn: fn, countFinished: countFinished, priority: priority}, priority)
}

func (e *ConcurrentExecutor) Run(ctx context.Context) <-chan TaskResult {
	out := make(chan TaskResult)
	go func() {
		defer close(out)
		for {
			tier, ok := e.popTier()
			if !ok {
				return
			}

			results := make([]TaskResult, len(tier))
			g, gctx := errgroup.WithContext(ctx)
			for i, d := range tier {
				i, d := i, d
				g.Go(func() error {
					value, err := d.fn(gctx)
					results[i] = TaskResult{Node: d.node, Value: value, Err: err, CountFinished: d.countFinished}
					return nil
				})
			}
			_ = g.Wait() // per-task errors are carried in results, not returned here

			for _, r := range results {
				select {
				case out <- r:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// popTier drains every pending descriptor sharing the current minimum
// priority and returns them as a batch.
func (e *ConcurrentExecutor) popTier() ([]*taskDescriptor, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	first, ok := e.queue.Pop()
	if !ok {
		return nil, false
	}
	tier := []*taskDescriptor{first}
	minPriority := first.priority

	for {
		next, ok := e.queue.Pop()
		if !ok {
			break
		}
		if next.priority != minPriority {
			// Not part of this tier: push back and stop.
			e.queue.Push(next, next.priority)
			break
		}
		tier = append(tier, next)
	}
	return tier, true
}
