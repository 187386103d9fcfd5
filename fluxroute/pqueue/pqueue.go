// Package pqueue provides a generic priority queue over container/heap,
// factored out as a standalone type the way the Python source's pqueue.py
// keeps PriorityQueue independent of the executor that uses it (rather than
// inlining heap bookkeeping directly into the scheduler), mirroring the
// teacher's own workHeap/Frontier split in graph/scheduler.go.
package pqueue

import "container/heap"

// Entry is one item submitted to a PriorityQueue: Value is the caller's
// payload, Priority orders it (smaller runs first), and Seq breaks ties by
// submission order (FIFO among equal priorities).
type Entry[V any] struct {
	Value    V
	Priority int
	Seq      uint64
}

// innerHeap implements heap.Interface over a slice of Entry, ordering by
// (Priority asc, Seq asc).
type innerHeap[V any] []Entry[V]

func (h innerHeap[V]) Len() int { return len(h) }

func (h innerHeap[V]) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].Seq < h[j].Seq
}

func (h innerHeap[V]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *innerHeap[V]) Push(x interface{}) {
	*h = append(*h, x.(Entry[V]))
}

func (h *innerHeap[V]) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// PriorityQueue is a generic min-priority queue: Pop always returns the
// lowest-Priority entry, ties broken by submission order. Not safe for
// concurrent use — callers needing concurrency (the executor) guard it with
// their own lock, since the queue itself has no opinion on how it is
// scheduled.
type PriorityQueue[V any] struct {
	h       innerHeap[V]
	nextSeq uint64
}

// New returns an empty PriorityQueue.
func New[V any]() *PriorityQueue[V] {
	pq := &PriorityQueue[V]{}
	heap.Init(&pq.h)
	return pq
}

// Push adds value at the given priority, stamping it with the next
// submission sequence number so ties resolve in push order.
func (pq *PriorityQueue[V]) Push(value V, priority int) {
	heap.Push(&pq.h, Entry[V]{Value: value, Priority: priority, Seq: pq.nextSeq})
	pq.nextSeq++
}

// Pop removes and returns the lowest-priority entry's value. ok is false if
// the queue is empty.
func (pq *PriorityQueue[V]) Pop() (value V, ok bool) {
	if pq.h.Len() == 0 {
		return value, false
	}
	e := heap.Pop(&pq.h).(Entry[V])
	return e.Value, true
}

// Len reports how many entries are pending.
func (pq *PriorityQueue[V]) Len() int { return pq.h.Len() }

// Empty reports whether the queue has no pending entries.
func (pq *PriorityQueue[V]) Empty() bool { return pq.h.Len() == 0 }
