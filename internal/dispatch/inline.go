package dispatch

import (
	"context"

	"github.com/rs/zerolog"
)

// InlineDispatcher executes events synchronously in the scheduling goroutine.
// It satisfies the at-least-once contract trivially (exactly once, inline)
// and is used by tests and single-process deployments where no broker is
// available. Handler errors are logged, not returned: scheduling is
// fire-and-forget like the brokered backends.
type InlineDispatcher struct {
	handler Handler
	log     zerolog.Logger
}

// NewInlineDispatcher creates an InlineDispatcher around the given handler.
func NewInlineDispatcher(handler Handler, log zerolog.Logger) *InlineDispatcher {
	return &InlineDispatcher{handler: handler, log: log}
}

// Schedule runs the handler immediately and returns the event ID.
func (d *InlineDispatcher) Schedule(ctx context.Context, ev *Event) (string, error) {
	EventsScheduledTotal.WithLabelValues(ev.Name).Inc()

	if d.handler == nil {
		d.log.Warn().Str("event", ev.Name).Msg("inline dispatcher has no handler, dropping event")
		return ev.ID, nil
	}

	if err := d.handler.HandleEvent(ctx, ev); err != nil {
		d.log.Error().Err(err).
			Str("event_id", ev.ID).
			Str("event", ev.Name).
			Msg("inline event handling failed")
		EventsProcessedTotal.WithLabelValues("failed").Inc()
		return ev.ID, nil
	}

	EventsProcessedTotal.WithLabelValues("handled").Inc()
	return ev.ID, nil
}

// SetHandler replaces the handler. The manager and the worker handler
// reference each other; inline wiring needs a two-step construction.
func (d *InlineDispatcher) SetHandler(handler Handler) {
	d.handler = handler
}

var _ Dispatcher = (*InlineDispatcher)(nil)
