package emit

import (
	"context"
	"testing"
)

func TestEmitterInterfaceContract(t *testing.T) {
	var _ Emitter = (*mockEmitter)(nil)
}

// mockEmitter is a minimal Emitter implementation for testing the interface contract.
type mockEmitter struct {
	events []Event
}

func (m *mockEmitter) Emit(event Event) {
	if m.events == nil {
		m.events = make([]Event, 0)
	}
	m.events = append(m.events, event)
}

func (m *mockEmitter) EmitBatch(_ context.Context, events []Event) error {
	for _, event := range events {
		m.Emit(event)
	}
	return nil
}

func (m *mockEmitter) Flush(_ context.Context) error {
	return nil
}

func TestEmitterEmit(t *testing.T) {
	t.Run("emit single event", func(t *testing.T) {
		emitter := &mockEmitter{}

		event := Event{
			RunID:  "run-001",
			Step:   1,
			NodeID: "-.N1",
			Msg:    "node_start",
		}

		emitter.Emit(event)

		if len(emitter.events) != 1 {
			t.Fatalf("expected 1 event, got %d", len(emitter.events))
		}
		if emitter.events[0].Msg != "node_start" {
			t.Errorf("expected Msg = 'node_start', got %q", emitter.events[0].Msg)
		}
	})

	t.Run("emit multiple events", func(t *testing.T) {
		emitter := &mockEmitter{}

		events := []Event{
			{RunID: "run-001", Step: 1, Msg: "Event 1"},
			{RunID: "run-001", Step: 2, Msg: "Event 2"},
			{RunID: "run-001", Step: 3, Msg: "Event 3"},
		}

		for _, event := range events {
			emitter.Emit(event)
		}

		if len(emitter.events) != 3 {
			t.Fatalf("expected 3 events, got %d", len(emitter.events))
		}

		for i, event := range emitter.events {
			expectedStep := i + 1
			if event.Step != expectedStep {
				t.Errorf("event %d: expected Step = %d, got %d", i, expectedStep, event.Step)
			}
		}
	})

	t.Run("emit with metadata", func(t *testing.T) {
		emitter := &mockEmitter{}

		event := Event{
			RunID:  "run-001",
			Step:   1,
			NodeID: "-.N1",
			Msg:    "node_finish",
			Meta: map[string]interface{}{
				"worker":     "iadd",
				"latency_ms": 250,
			},
		}

		emitter.Emit(event)

		if len(emitter.events) != 1 {
			t.Fatal("expected 1 event")
		}

		meta := emitter.events[0].Meta
		if meta["worker"] != "iadd" {
			t.Errorf("expected worker = iadd, got %v", meta["worker"])
		}
		if meta["latency_ms"] != 250 {
			t.Errorf("expected latency_ms = 250, got %v", meta["latency_ms"])
		}
	})

	t.Run("emit zero value event", func(t *testing.T) {
		emitter := &mockEmitter{}

		emitter.Emit(Event{})

		if len(emitter.events) != 1 {
			t.Fatalf("expected 1 event, got %d", len(emitter.events))
		}
	})
}

func TestEmitterBatchAndFlush(t *testing.T) {
	emitter := &mockEmitter{}

	events := []Event{
		{RunID: "run-001", Step: 1, Msg: "node_start"},
		{RunID: "run-001", Step: 1, Msg: "node_finish"},
	}

	if err := emitter.EmitBatch(context.Background(), events); err != nil {
		t.Fatalf("EmitBatch: %v", err)
	}
	if err := emitter.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	if len(emitter.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(emitter.events))
	}
}

func TestEmitterFilteringPattern(t *testing.T) {
	// Emitters can filter events based on criteria without implementing the
	// full Emitter interface themselves.
	type filteringSink struct {
		events []Event
	}

	sink := &filteringSink{events: make([]Event, 0)}

	record := func(event Event) {
		if event.Msg == "node_error" {
			sink.events = append(sink.events, event)
		}
	}

	record(Event{Msg: "node_start"})
	record(Event{Msg: "node_error", Meta: map[string]interface{}{"error": "division by zero"}})

	if len(sink.events) != 1 {
		t.Errorf("expected 1 node_error event, got %d", len(sink.events))
	}
	if sink.events[0].Msg != "node_error" {
		t.Errorf("expected 'node_error', got %q", sink.events[0].Msg)
	}
}
