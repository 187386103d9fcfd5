package emit

import "context"

// Emitter receives observability events from a routing traversal.
//
// Emitters enable pluggable backends: stdout/file logging, OpenTelemetry
// spans, or a custom sink. Implementations should be non-blocking and safe
// for concurrent use — a traversal may evaluate several key functions
// concurrently within one nonterminal.
type Emitter interface {
	// Emit sends a single event. Must not block the traversal and must not
	// panic; backend failures should be swallowed or logged internally.
	Emit(event Event)

	// EmitBatch sends multiple events in one operation, preserving order.
	EmitBatch(ctx context.Context, events []Event) error

	// Flush blocks until all buffered events have been delivered, or the
	// context is done. Safe to call more than once.
	Flush(ctx context.Context) error
}
