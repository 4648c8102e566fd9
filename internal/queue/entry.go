package queue

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxRetries is the per-entry retry budget used when none is configured.
const DefaultMaxRetries = 3

// Status represents the lifecycle state of a queue entry.
type Status string

// Entry statuses. An entry is terminal in StatusDelivered, or in StatusFailed
// once its retry budget is exhausted.
const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
)

// Content is the opaque payload of a single outbound message. At least one of
// Text or MediaURLs must be present.
type Content struct {
	Text      string   `json:"text,omitempty"`
	MediaURLs []string `json:"media_urls,omitempty"`
}

// ErrEmptyContent is returned when a payload carries neither text nor media.
var ErrEmptyContent = errors.New("message content must include text or media")

// Validate checks that the content is deliverable.
func (c Content) Validate() error {
	if c.Text == "" && len(c.MediaURLs) == 0 {
		return ErrEmptyContent
	}
	return nil
}

// Entry is a single message awaiting ordered delivery. Ordering is scoped to
// the (RecipientID, QueueName) pair; SequenceNumber is strictly increasing
// within that scope and assigned at enqueue time.
type Entry struct {
	ID                uuid.UUID
	RecipientID       string
	QueueName         string
	SequenceNumber    int
	Content           Content
	Status            Status
	ProviderMessageID string
	RetryCount        int
	MaxRetries        int
	LastError         string
	CreatedAt         time.Time
	SentAt            *time.Time
	DeliveredAt       *time.Time
}

// Terminal reports whether the entry can no longer change state. A failed
// entry with retries remaining is not terminal; it may be requeued.
func (e *Entry) Terminal() bool {
	switch e.Status {
	case StatusDelivered:
		return true
	case StatusFailed:
		return e.RetryCount >= e.MaxRetries
	default:
		return false
	}
}

// StatusCounts holds per-status entry counts for one queue.
type StatusCounts struct {
	Pending   int `json:"pending"`
	Sent      int `json:"sent"`
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
}

// Total returns the number of entries across all statuses.
func (s StatusCounts) Total() int {
	return s.Pending + s.Sent + s.Delivered + s.Failed
}

// Drained reports whether every entry in the queue is in a terminal status.
func (s StatusCounts) Drained() bool {
	return s.Pending == 0 && s.Sent == 0
}
