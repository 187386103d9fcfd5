package emit

import (
	"context"
	"testing"
	"time"
)

func TestBufferedEmitter_StoresEvents(t *testing.T) {
	t.Run("stores single event", func(t *testing.T) {
		emitter := NewBufferedEmitter()

		event := Event{
			TraversalID: "trav-001",
			NodeID:      "node1",
			Msg:         "node_start",
		}

		emitter.Emit(event)

		history := emitter.GetHistory("trav-001")
		if len(history) != 1 {
			t.Fatalf("expected 1 event, got %d", len(history))
		}
		if history[0].NodeID != "node1" {
			t.Errorf("expected NodeID = 'node1', got %q", history[0].NodeID)
		}
	})

	t.Run("stores multiple events", func(t *testing.T) {
		emitter := NewBufferedEmitter()

		events := []Event{
			{TraversalID: "trav-001", NodeID: "node1", Msg: "node_start"},
			{TraversalID: "trav-001", NodeID: "node1", Msg: "node_end"},
			{TraversalID: "trav-001", NodeID: "node2", Msg: "node_start"},
		}

		for _, event := range events {
			emitter.Emit(event)
		}

		history := emitter.GetHistory("trav-001")
		if len(history) != 3 {
			t.Fatalf("expected 3 events, got %d", len(history))
		}
	})

	t.Run("isolates events by traversalID", func(t *testing.T) {
		emitter := NewBufferedEmitter()

		emitter.Emit(Event{TraversalID: "trav-001", Msg: "event1"})
		emitter.Emit(Event{TraversalID: "trav-002", Msg: "event2"})
		emitter.Emit(Event{TraversalID: "trav-001", Msg: "event3"})

		history1 := emitter.GetHistory("trav-001")
		history2 := emitter.GetHistory("trav-002")

		if len(history1) != 2 {
			t.Errorf("expected 2 events for trav-001, got %d", len(history1))
		}
		if len(history2) != 1 {
			t.Errorf("expected 1 event for trav-002, got %d", len(history2))
		}
	})

	t.Run("returns empty slice for unknown traversalID", func(t *testing.T) {
		emitter := NewBufferedEmitter()

		history := emitter.GetHistory("unknown-trav")
		if history == nil {
			t.Error("expected empty slice, got nil")
		}
		if len(history) != 0 {
			t.Errorf("expected 0 events, got %d", len(history))
		}
	})

	t.Run("GetHistory returns a copy", func(t *testing.T) {
		emitter := NewBufferedEmitter()
		emitter.Emit(Event{TraversalID: "trav-001", Msg: "node_start"})

		history := emitter.GetHistory("trav-001")
		history[0].Msg = "mutated"

		if emitter.GetHistory("trav-001")[0].Msg != "node_start" {
			t.Error("GetHistory leaked internal storage to caller mutation")
		}
	})
}

func TestBufferedEmitter_GetHistoryWithFilter(t *testing.T) {
	t.Run("filters by nodeID", func(t *testing.T) {
		emitter := NewBufferedEmitter()

		events := []Event{
			{TraversalID: "trav-001", NodeID: "node1", Msg: "event1"},
			{TraversalID: "trav-001", NodeID: "node2", Msg: "event2"},
			{TraversalID: "trav-001", NodeID: "node1", Msg: "event3"},
		}

		for _, event := range events {
			emitter.Emit(event)
		}

		filter := HistoryFilter{NodeID: "node1"}
		history := emitter.GetHistoryWithFilter("trav-001", filter)

		if len(history) != 2 {
			t.Fatalf("expected 2 events, got %d", len(history))
		}
		for _, event := range history {
			if event.NodeID != "node1" {
				t.Errorf("expected NodeID = 'node1', got %q", event.NodeID)
			}
		}
	})

	t.Run("filters by message", func(t *testing.T) {
		emitter := NewBufferedEmitter()

		events := []Event{
			{TraversalID: "trav-001", Msg: "node_start"},
			{TraversalID: "trav-001", Msg: "node_end"},
			{TraversalID: "trav-001", Msg: "node_start"},
		}

		for _, event := range events {
			emitter.Emit(event)
		}

		filter := HistoryFilter{Msg: "node_start"}
		history := emitter.GetHistoryWithFilter("trav-001", filter)

		if len(history) != 2 {
			t.Fatalf("expected 2 events, got %d", len(history))
		}
		for _, event := range history {
			if event.Msg != "node_start" {
				t.Errorf("expected Msg = 'node_start', got %q", event.Msg)
			}
		}
	})

	t.Run("combines nodeID and message filters", func(t *testing.T) {
		emitter := NewBufferedEmitter()

		events := []Event{
			{TraversalID: "trav-001", NodeID: "node1", Msg: "node_start"},
			{TraversalID: "trav-001", NodeID: "node2", Msg: "node_start"},
			{TraversalID: "trav-001", NodeID: "node1", Msg: "node_end"},
		}

		for _, event := range events {
			emitter.Emit(event)
		}

		filter := HistoryFilter{NodeID: "node1", Msg: "node_start"}
		history := emitter.GetHistoryWithFilter("trav-001", filter)

		if len(history) != 1 {
			t.Fatalf("expected 1 event, got %d", len(history))
		}
		if history[0].NodeID != "node1" || history[0].Msg != "node_start" {
			t.Error("expected event with nodeID=node1, msg=node_start")
		}
	})

	t.Run("empty filter returns all events", func(t *testing.T) {
		emitter := NewBufferedEmitter()

		events := []Event{
			{TraversalID: "trav-001", Msg: "event1"},
			{TraversalID: "trav-001", Msg: "event2"},
			{TraversalID: "trav-001", Msg: "event3"},
		}

		for _, event := range events {
			emitter.Emit(event)
		}

		filter := HistoryFilter{}
		history := emitter.GetHistoryWithFilter("trav-001", filter)

		if len(history) != 3 {
			t.Fatalf("expected 3 events, got %d", len(history))
		}
	})

	t.Run("no matches returns empty slice, not nil", func(t *testing.T) {
		emitter := NewBufferedEmitter()
		emitter.Emit(Event{TraversalID: "trav-001", NodeID: "node1", Msg: "event1"})

		history := emitter.GetHistoryWithFilter("trav-001", HistoryFilter{NodeID: "missing"})
		if history == nil {
			t.Error("expected empty slice, got nil")
		}
	})
}

func TestBufferedEmitter_Clear(t *testing.T) {
	t.Run("clears all events for traversalID", func(t *testing.T) {
		emitter := NewBufferedEmitter()

		emitter.Emit(Event{TraversalID: "trav-001", Msg: "event1"})
		emitter.Emit(Event{TraversalID: "trav-002", Msg: "event2"})

		emitter.Clear("trav-001")

		history1 := emitter.GetHistory("trav-001")
		history2 := emitter.GetHistory("trav-002")

		if len(history1) != 0 {
			t.Errorf("expected 0 events for trav-001, got %d", len(history1))
		}
		if len(history2) != 1 {
			t.Errorf("expected 1 event for trav-002, got %d", len(history2))
		}
	})

	t.Run("clears all events when traversalID is empty", func(t *testing.T) {
		emitter := NewBufferedEmitter()

		emitter.Emit(Event{TraversalID: "trav-001", Msg: "event1"})
		emitter.Emit(Event{TraversalID: "trav-002", Msg: "event2"})

		emitter.Clear("")

		history1 := emitter.GetHistory("trav-001")
		history2 := emitter.GetHistory("trav-002")

		if len(history1) != 0 || len(history2) != 0 {
			t.Error("expected all events to be cleared")
		}
	})
}

func TestBufferedEmitter_EmitBatch(t *testing.T) {
	emitter := NewBufferedEmitter()
	events := []Event{
		{TraversalID: "trav-001", Msg: "first"},
		{TraversalID: "trav-001", Msg: "second"},
	}
	if err := emitter.EmitBatch(context.Background(), events); err != nil {
		t.Fatalf("EmitBatch returned error: %v", err)
	}
	if len(emitter.GetHistory("trav-001")) != 2 {
		t.Error("EmitBatch did not store both events")
	}
}

func TestBufferedEmitter_FlushNoop(t *testing.T) {
	emitter := NewBufferedEmitter()
	if err := emitter.Flush(context.Background()); err != nil {
		t.Errorf("Flush returned error: %v", err)
	}
}

func TestBufferedEmitter_ThreadSafety(t *testing.T) {
	t.Run("concurrent emit and read", func(t *testing.T) {
		emitter := NewBufferedEmitter()

		done := make(chan bool)
		for i := 0; i < 10; i++ {
			go func(_ int) {
				for j := 0; j < 100; j++ {
					emitter.Emit(Event{
						TraversalID: "trav-001",
						Msg:         "concurrent_event",
					})
				}
				done <- true
			}(i)
		}

		readDone := make(chan bool)
		go func() {
			for i := 0; i < 100; i++ {
				emitter.GetHistory("trav-001")
				time.Sleep(1 * time.Millisecond)
			}
			readDone <- true
		}()

		for i := 0; i < 10; i++ {
			<-done
		}
		<-readDone

		history := emitter.GetHistory("trav-001")
		if len(history) != 1000 {
			t.Errorf("expected 1000 events, got %d", len(history))
		}
	})
}

func TestBufferedEmitter_InterfaceContract(_ *testing.T) {
	var _ Emitter = NewBufferedEmitter()
}
