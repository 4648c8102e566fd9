package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

type recordingHandler struct {
	events []*Event
	err    error
}

func (h *recordingHandler) HandleEvent(_ context.Context, ev *Event) error {
	h.events = append(h.events, ev)
	return h.err
}

func TestInlineDispatcherExecutesSynchronously(t *testing.T) {
	handler := &recordingHandler{}
	d := NewInlineDispatcher(handler, zerolog.Nop())

	ev := NewProcessNext("user-1", "q")
	id, err := d.Schedule(context.Background(), ev)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if id != ev.ID {
		t.Fatalf("expected event ID %s, got %s", ev.ID, id)
	}
	if len(handler.events) != 1 || handler.events[0].Name != EventProcessNext {
		t.Fatalf("expected handler invoked once, got %d", len(handler.events))
	}
}

func TestInlineDispatcherSwallowsHandlerErrors(t *testing.T) {
	handler := &recordingHandler{err: errors.New("boom")}
	d := NewInlineDispatcher(handler, zerolog.Nop())

	if _, err := d.Schedule(context.Background(), NewProcessNext("user-1", "q")); err != nil {
		t.Fatalf("expected scheduling to stay fire-and-forget, got %v", err)
	}
}

func TestInlineDispatcherNilHandler(t *testing.T) {
	d := NewInlineDispatcher(nil, zerolog.Nop())

	// Must not panic before the handler is wired.
	if _, err := d.Schedule(context.Background(), NewProcessNext("user-1", "q")); err != nil {
		t.Fatalf("Schedule with nil handler: %v", err)
	}

	handler := &recordingHandler{}
	d.SetHandler(handler)
	if _, err := d.Schedule(context.Background(), NewProcessNext("user-1", "q")); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if len(handler.events) != 1 {
		t.Fatalf("expected handler invoked after SetHandler, got %d", len(handler.events))
	}
}
