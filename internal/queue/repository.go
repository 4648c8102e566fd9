package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors returned by Repository implementations.
var (
	// ErrNotFound indicates the requested entry does not exist.
	ErrNotFound = errors.New("queue entry not found")
	// ErrInFlight indicates the queue already has an entry in status sent.
	ErrInFlight = errors.New("queue has an entry in flight")
	// ErrDrained indicates the queue has no pending and no in-flight entries.
	ErrDrained = errors.New("queue is drained")
)

// Repository is the durable store for queue entries.
//
// ClaimNextPending is the load-bearing operation: it must atomically select
// the oldest pending entry of a queue and transition it to sent, and it must
// refuse to claim while another entry of the same queue is already sent.
// Without that atomicity two concurrent process-next invocations could both
// dispatch and break the ordering guarantee.
type Repository interface {
	// InsertBatch persists one pending entry per item, assigning sequence
	// numbers that continue after the queue's current maximum.
	InsertBatch(ctx context.Context, recipientID, queueName string, items []Content, maxRetries int) ([]*Entry, error)

	// ClaimNextPending atomically transitions the oldest pending entry of the
	// queue to sent and returns it. It returns ErrInFlight when another entry
	// is already sent, and ErrDrained when the queue holds no pending entries
	// and nothing is in flight.
	ClaimNextPending(ctx context.Context, recipientID, queueName string) (*Entry, error)

	// LinkProviderMessage records the provider-assigned message ID on a sent entry.
	LinkProviderMessage(ctx context.Context, id uuid.UUID, providerMessageID string) error

	// GetByID returns the entry with the given ID, or ErrNotFound.
	GetByID(ctx context.Context, id uuid.UUID) (*Entry, error)

	// GetByProviderMessageID returns the entry linked to the given provider
	// message ID, or ErrNotFound.
	GetByProviderMessageID(ctx context.Context, providerMessageID string) (*Entry, error)

	// MarkDelivered transitions a sent entry to delivered and stamps
	// DeliveredAt. It reports whether the transition happened; calling it on
	// an entry in any other status is a no-op returning false.
	MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error)

	// RequeueForRetry transitions a sent entry with retries remaining back to
	// pending, incrementing RetryCount, recording the error, and clearing the
	// provider link. It reports whether the transition happened.
	RequeueForRetry(ctx context.Context, id uuid.UUID, reason string) (bool, error)

	// MarkFailed transitions a sent entry to failed, exhausting its retry
	// budget and recording the error. It reports whether the transition
	// happened. The manager decides between RequeueForRetry and MarkFailed
	// based on the retry budget and error classification.
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) (bool, error)

	// FindStalled returns up to limit sent entries whose SentAt is older than
	// the cutoff, oldest first.
	FindStalled(ctx context.Context, cutoff time.Time, limit int) ([]*Entry, error)

	// CountByStatus returns per-status entry counts for one queue.
	CountByStatus(ctx context.Context, recipientID, queueName string) (StatusCounts, error)

	// DeleteTerminal removes delivered and terminally failed entries of one
	// queue, returning the number removed.
	DeleteTerminal(ctx context.Context, recipientID, queueName string) (int64, error)
}
