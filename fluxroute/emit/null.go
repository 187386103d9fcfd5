package emit

import "context"

// NullEmitter discards every event. Use it when observability overhead is
// unwanted, e.g. benchmarks or unit tests that don't assert on events.
type NullEmitter struct{}

// NewNullEmitter returns an Emitter that does nothing.
func NewNullEmitter() *NullEmitter {
	return &NullEmitter{}
}

// Emit is a no-op.
func (n *NullEmitter) Emit(Event) {}

// EmitBatch is a no-op.
func (n *NullEmitter) EmitBatch(context.Context, []Event) error { return nil }

// Flush is a no-op.
func (n *NullEmitter) Flush(context.Context) error { return nil }
