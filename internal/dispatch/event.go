package dispatch

import (
	"time"

	"github.com/google/uuid"
)

// Event names understood by the worker handler.
const (
	// EventProcessNext asks the queue manager to advance one queue.
	EventProcessNext = "queue.process_next"
	// EventRetryDelivery announces that an entry was requeued for another
	// send attempt. Consumed by audit/metrics; the re-send itself happens
	// through the next process_next claim.
	EventRetryDelivery = "queue.retry_delivery"
)

// Event is a deferred continuation step for one queue. Delivery is
// at-least-once; handlers must be idempotent.
type Event struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	RecipientID string    `json:"recipient_id"`
	QueueName   string    `json:"queue_name"`
	EntryID     string    `json:"entry_id,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	// RetryCount tracks dispatcher redeliveries of this event, not the
	// queue entry's own send retries.
	RetryCount int       `json:"retry_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewProcessNext creates a process_next event for one queue.
func NewProcessNext(recipientID, queueName string) *Event {
	return &Event{
		ID:          uuid.New().String(),
		Name:        EventProcessNext,
		RecipientID: recipientID,
		QueueName:   queueName,
		CreatedAt:   time.Now(),
	}
}

// NewRetryDelivery creates a retry_delivery event for a requeued entry.
func NewRetryDelivery(recipientID, queueName, entryID, reason string) *Event {
	return &Event{
		ID:          uuid.New().String(),
		Name:        EventRetryDelivery,
		RecipientID: recipientID,
		QueueName:   queueName,
		EntryID:     entryID,
		Reason:      reason,
		CreatedAt:   time.Now(),
	}
}

// Redis stream keys. A single stream carries all queues; per-queue isolation
// lives in the event payload, not the transport.
const (
	eventStreamKey = "dispatch:events"
	dlqStreamKey   = "dispatch:dlq"
)
