package emit

// Event represents an observability event emitted during a single forward()
// traversal: a key function evaluation, a nonterminal routing decision, a
// routing exception, or a handler dispatch/completion.
type Event struct {
	// TraversalID identifies the forward() call that emitted this event.
	TraversalID string

	// NodeID identifies the node involved (a key function name, or a
	// terminal handler's ID). Empty for traversal-level events.
	NodeID string

	// Msg is a short machine-stable event name, e.g. "keyfunc_evaluated",
	// "route_decision", "route_exception", "handler_start", "handler_end".
	Msg string

	// Meta carries event-specific structured data. Common keys:
	//   - "duration_ms": evaluation/handler duration
	//   - "priority": the terminal's declared priority
	//   - "error": error detail for exception/error events
	//   - "kind": "route" or "internal" for exception events
	Meta map[string]interface{}
}
