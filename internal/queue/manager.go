package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jiwoo/sms-sequencer/internal/dispatch"
	"github.com/jiwoo/sms-sequencer/internal/provider"
)

// Manager owns the per-queue delivery state machine. It enforces strict
// ordering by only ever advancing one entry at a time per (recipient, queue)
// pair: the next send happens when the previous entry reaches delivered or
// failed. All entry points are idempotent; duplicate webhooks and redelivered
// dispatcher events resolve to no-ops.
type Manager struct {
	repo       Repository
	provider   provider.Provider
	dispatcher dispatch.Dispatcher
	log        zerolog.Logger
	maxRetries int
}

// NewManager creates a Manager. maxRetries <= 0 selects DefaultMaxRetries.
func NewManager(repo Repository, prov provider.Provider, dispatcher dispatch.Dispatcher, maxRetries int, log zerolog.Logger) *Manager {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Manager{
		repo:       repo,
		provider:   prov,
		dispatcher: dispatcher,
		log:        log,
		maxRetries: maxRetries,
	}
}

// Enqueue appends a batch of messages to one queue in the given order and
// schedules a process_next event to start (or continue) draining it. The
// entries are persisted even if scheduling fails; a later event for the same
// queue picks them up. An empty batch is a no-op: nothing is persisted and
// nothing is scheduled.
func (m *Manager) Enqueue(ctx context.Context, recipientID, queueName string, items []Content) ([]*Entry, error) {
	if recipientID == "" {
		return nil, errors.New("recipient id is required")
	}
	if queueName == "" {
		return nil, errors.New("queue name is required")
	}
	if len(items) == 0 {
		return nil, nil
	}
	for i, c := range items {
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
	}

	entries, err := m.repo.InsertBatch(ctx, recipientID, queueName, items, m.maxRetries)
	if err != nil {
		return nil, fmt.Errorf("insert entries: %w", err)
	}

	EntriesEnqueuedTotal.Add(float64(len(entries)))

	m.log.Info().
		Str("recipient_id", recipientID).
		Str("queue", queueName).
		Int("count", len(entries)).
		Msg("entries enqueued")

	m.scheduleNext(ctx, recipientID, queueName)

	return entries, nil
}

// ProcessNext claims the head of the queue and hands it to the provider. It
// is a no-op when the queue already has an entry in flight (the pending
// webhook or the sweeper will advance it) and cleans up terminal entries when
// the queue is drained.
func (m *Manager) ProcessNext(ctx context.Context, recipientID, queueName string) error {
	e, err := m.repo.ClaimNextPending(ctx, recipientID, queueName)
	switch {
	case errors.Is(err, ErrInFlight):
		m.log.Debug().
			Str("recipient_id", recipientID).
			Str("queue", queueName).
			Msg("queue has an entry in flight, skipping")
		return nil
	case errors.Is(err, ErrDrained):
		return m.cleanupDrained(ctx, recipientID, queueName)
	case err != nil:
		return fmt.Errorf("claim next entry: %w", err)
	}

	log := m.log.With().
		Str("entry_id", e.ID.String()).
		Str("recipient_id", recipientID).
		Str("queue", queueName).
		Int("sequence", e.SequenceNumber).
		Logger()

	msg := &provider.Message{
		To:        e.RecipientID,
		Body:      e.Content.Text,
		MediaURLs: e.Content.MediaURLs,
	}

	start := time.Now()
	res, sendErr := m.provider.Send(ctx, msg)
	SendDuration.Observe(time.Since(start).Seconds())

	if sendErr != nil {
		SendsTotal.WithLabelValues("error").Inc()
		log.Error().Err(sendErr).Int("retry_count", e.RetryCount).Msg("provider send failed")

		if _, err := m.failEntry(ctx, e, sendErr.Error(), provider.IsPermanent(sendErr)); err != nil {
			return fmt.Errorf("record send failure: %w", err)
		}
		return nil
	}

	SendsTotal.WithLabelValues("accepted").Inc()

	if err := m.repo.LinkProviderMessage(ctx, e.ID, res.ProviderMessageID); err != nil {
		// The message is out but unlinked; the stall sweeper will resolve it.
		log.Error().Err(err).
			Str("provider_message_id", res.ProviderMessageID).
			Msg("failed to link provider message id")
		return fmt.Errorf("link provider message: %w", err)
	}

	log.Info().
		Str("provider", m.provider.GetName()).
		Str("provider_message_id", res.ProviderMessageID).
		Msg("entry sent")

	return nil
}

// MarkDelivered resolves a provider delivery receipt. Unknown provider
// message IDs and receipts for entries no longer in flight report false
// without error so duplicate webhooks stay harmless.
func (m *Manager) MarkDelivered(ctx context.Context, providerMessageID string) (bool, error) {
	e, err := m.repo.GetByProviderMessageID(ctx, providerMessageID)
	if errors.Is(err, ErrNotFound) {
		m.log.Debug().Str("provider_message_id", providerMessageID).Msg("receipt for unknown message")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup provider message: %w", err)
	}
	return m.DeliverEntry(ctx, e.ID)
}

// MarkFailed resolves a provider failure receipt. The entry is requeued while
// its retry budget lasts and failed terminally after that. Unknown provider
// message IDs report false without error.
func (m *Manager) MarkFailed(ctx context.Context, providerMessageID, reason string) (bool, error) {
	e, err := m.repo.GetByProviderMessageID(ctx, providerMessageID)
	if errors.Is(err, ErrNotFound) {
		m.log.Debug().Str("provider_message_id", providerMessageID).Msg("failure receipt for unknown message")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup provider message: %w", err)
	}
	return m.failEntry(ctx, e, reason, false)
}

// DeliverEntry transitions one in-flight entry to delivered by ID and
// advances its queue. Used by the stall sweeper; webhook receipts arrive via
// MarkDelivered.
func (m *Manager) DeliverEntry(ctx context.Context, id uuid.UUID) (bool, error) {
	e, err := m.repo.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup entry: %w", err)
	}

	ok, err := m.repo.MarkDelivered(ctx, id)
	if err != nil {
		return false, fmt.Errorf("mark delivered: %w", err)
	}
	if !ok {
		return false, nil
	}

	EntriesDeliveredTotal.Inc()
	m.log.Info().
		Str("entry_id", id.String()).
		Str("recipient_id", e.RecipientID).
		Str("queue", e.QueueName).
		Msg("entry delivered")

	m.scheduleNext(ctx, e.RecipientID, e.QueueName)
	return true, nil
}

// FailEntry records a failure on one in-flight entry by ID, applying the
// retry budget. Used by the stall sweeper.
func (m *Manager) FailEntry(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	e, err := m.repo.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup entry: %w", err)
	}
	return m.failEntry(ctx, e, reason, false)
}

// QueueStatus returns per-status entry counts for one queue.
func (m *Manager) QueueStatus(ctx context.Context, recipientID, queueName string) (StatusCounts, error) {
	return m.repo.CountByStatus(ctx, recipientID, queueName)
}

// ClearQueue removes the queue's terminal entries and returns the count.
func (m *Manager) ClearQueue(ctx context.Context, recipientID, queueName string) (int64, error) {
	return m.repo.DeleteTerminal(ctx, recipientID, queueName)
}

// failEntry routes a failure to either a requeue (retries remaining, error
// not permanent) or a terminal failed status. Both outcomes advance the
// queue: a requeued entry is pending again at its original sequence and is
// the next claim; a terminally failed entry stops blocking its successors.
func (m *Manager) failEntry(ctx context.Context, e *Entry, reason string, permanent bool) (bool, error) {
	log := m.log.With().
		Str("entry_id", e.ID.String()).
		Str("recipient_id", e.RecipientID).
		Str("queue", e.QueueName).
		Logger()

	if !permanent {
		ok, err := m.repo.RequeueForRetry(ctx, e.ID, reason)
		if err != nil {
			return false, fmt.Errorf("requeue entry: %w", err)
		}
		if ok {
			RetriesTotal.Inc()
			log.Warn().
				Int("retry_count", e.RetryCount+1).
				Int("max_retries", e.MaxRetries).
				Str("reason", reason).
				Msg("entry requeued for retry")

			if _, err := m.dispatcher.Schedule(ctx, dispatch.NewRetryDelivery(e.RecipientID, e.QueueName, e.ID.String(), reason)); err != nil {
				log.Error().Err(err).Msg("failed to schedule retry event")
			}
			m.scheduleNext(ctx, e.RecipientID, e.QueueName)
			return true, nil
		}
		// Budget exhausted or entry no longer in flight; fall through.
	}

	ok, err := m.repo.MarkFailed(ctx, e.ID, reason)
	if err != nil {
		return false, fmt.Errorf("mark failed: %w", err)
	}
	if !ok {
		return false, nil
	}

	EntriesFailedTotal.Inc()
	log.Error().Str("reason", reason).Bool("permanent", permanent).Msg("entry failed terminally")

	m.scheduleNext(ctx, e.RecipientID, e.QueueName)
	return true, nil
}

// cleanupDrained removes terminal entries once a queue has nothing left to
// send or confirm.
func (m *Manager) cleanupDrained(ctx context.Context, recipientID, queueName string) error {
	removed, err := m.repo.DeleteTerminal(ctx, recipientID, queueName)
	if err != nil {
		return fmt.Errorf("cleanup drained queue: %w", err)
	}

	QueuesDrainedTotal.Inc()
	if removed > 0 {
		m.log.Info().
			Str("recipient_id", recipientID).
			Str("queue", queueName).
			Int64("removed", removed).
			Msg("drained queue cleaned up")
	}
	return nil
}

// scheduleNext fires a process_next event for the queue. Scheduling failures
// are logged, not propagated: the state transition that prompted the event
// has already been persisted.
func (m *Manager) scheduleNext(ctx context.Context, recipientID, queueName string) {
	if _, err := m.dispatcher.Schedule(ctx, dispatch.NewProcessNext(recipientID, queueName)); err != nil {
		m.log.Error().Err(err).
			Str("recipient_id", recipientID).
			Str("queue", queueName).
			Msg("failed to schedule process_next event")
	}
}
