package dispatch

import "context"

// Dispatcher schedules events for asynchronous execution. Scheduling is
// fire-and-forget with at-least-once delivery to the consumer side.
type Dispatcher interface {
	Schedule(ctx context.Context, ev *Event) (string, error)
}

// Consumer executes scheduled events in background goroutines.
// Start begins consuming; Stop shuts down gracefully.
type Consumer interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// DeadLetter manages events whose handling kept failing.
type DeadLetter interface {
	MoveToDLQ(ctx context.Context, ev *Event, reason string) error
	Reprocess(ctx context.Context, eventIDs []string) (int, error)
}

// Handler processes a single event. Implementations re-enter the queue
// manager and must tolerate duplicate delivery.
type Handler interface {
	HandleEvent(ctx context.Context, ev *Event) error
}
