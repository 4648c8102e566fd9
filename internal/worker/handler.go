package worker

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/jiwoo/sms-sequencer/internal/dispatch"
)

// queueManager is the slice of the queue manager the handler needs.
type queueManager interface {
	ProcessNext(ctx context.Context, recipientID, queueName string) error
}

// Handler implements dispatch.Handler. It routes dispatcher events back into
// the queue manager. Events are delivered at least once, so every route must
// be idempotent; the manager's conditional transitions make duplicates no-ops.
type Handler struct {
	manager queueManager
	log     zerolog.Logger
}

// NewHandler creates a Handler driving the given queue manager.
func NewHandler(manager queueManager, log zerolog.Logger) *Handler {
	return &Handler{manager: manager, log: log}
}

// HandleEvent implements dispatch.Handler.
func (h *Handler) HandleEvent(ctx context.Context, ev *dispatch.Event) error {
	log := h.log.With().
		Str("event_id", ev.ID).
		Str("event", ev.Name).
		Str("recipient_id", ev.RecipientID).
		Str("queue", ev.QueueName).
		Logger()

	switch ev.Name {
	case dispatch.EventProcessNext:
		if err := h.manager.ProcessNext(ctx, ev.RecipientID, ev.QueueName); err != nil {
			log.Error().Err(err).Msg("process_next failed")
			return fmt.Errorf("process next for %s/%s: %w", ev.RecipientID, ev.QueueName, err)
		}
		return nil

	case dispatch.EventRetryDelivery:
		// Audit-only: the re-send itself happens through the next claim. The
		// event keeps retry decisions visible in the stream and the logs.
		log.Info().
			Str("entry_id", ev.EntryID).
			Str("reason", ev.Reason).
			Msg("entry retry recorded")
		return nil

	default:
		log.Warn().Msg("unknown event, acknowledging")
		return nil
	}
}

var _ dispatch.Handler = (*Handler)(nil)
