package emit

import (
	"context"
	"testing"
)

// recordingEmitter is a minimal Emitter used to verify the interface
// contract without pulling in a concrete implementation.
type recordingEmitter struct {
	emitted []Event
	flushed bool
}

func (r *recordingEmitter) Emit(event Event) { r.emitted = append(r.emitted, event) }

func (r *recordingEmitter) EmitBatch(_ context.Context, events []Event) error {
	r.emitted = append(r.emitted, events...)
	return nil
}

func (r *recordingEmitter) Flush(context.Context) error {
	r.flushed = true
	return nil
}

func TestEmitterInterfaceSatisfiedByImplementations(t *testing.T) {
	var impls = []Emitter{
		NewNullEmitter(),
		NewLogEmitter(nil, false),
		NewBufferedEmitter(),
		&recordingEmitter{},
	}
	for _, e := range impls {
		e.Emit(Event{Msg: "ping"})
		if err := e.EmitBatch(context.Background(), []Event{{Msg: "ping"}}); err != nil {
			t.Errorf("%T.EmitBatch returned error: %v", e, err)
		}
		if err := e.Flush(context.Background()); err != nil {
			t.Errorf("%T.Flush returned error: %v", e, err)
		}
	}
}

func TestRecordingEmitterOrderPreserved(t *testing.T) {
	r := &recordingEmitter{}
	r.Emit(Event{Msg: "first"})
	_ = r.EmitBatch(context.Background(), []Event{{Msg: "second"}, {Msg: "third"}})

	want := []string{"first", "second", "third"}
	if len(r.emitted) != len(want) {
		t.Fatalf("got %d events, want %d", len(r.emitted), len(want))
	}
	for i, msg := range want {
		if r.emitted[i].Msg != msg {
			t.Errorf("event %d = %q, want %q", i, r.emitted[i].Msg, msg)
		}
	}
}
