package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is an in-memory Repository. It is the reference
// implementation of the claim semantics and backs unit tests and
// single-process deployments without PostgreSQL.
type MemoryRepository struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*Entry
	now     func() time.Time
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		entries: make(map[uuid.UUID]*Entry),
		now:     time.Now,
	}
}

// queueKey identifies one ordering domain.
type queueKey struct {
	recipientID string
	queueName   string
}

func (r *MemoryRepository) queueEntries(key queueKey) []*Entry {
	var out []*Entry
	for _, e := range r.entries {
		if e.RecipientID == key.recipientID && e.QueueName == key.queueName {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SequenceNumber < out[j].SequenceNumber
	})
	return out
}

// InsertBatch implements Repository.
func (r *MemoryRepository) InsertBatch(_ context.Context, recipientID, queueName string, items []Content, maxRetries int) ([]*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seq := 0
	for _, e := range r.queueEntries(queueKey{recipientID, queueName}) {
		if e.SequenceNumber > seq {
			seq = e.SequenceNumber
		}
	}

	created := make([]*Entry, 0, len(items))
	for _, item := range items {
		seq++
		e := &Entry{
			ID:             uuid.New(),
			RecipientID:    recipientID,
			QueueName:      queueName,
			SequenceNumber: seq,
			Content:        item,
			Status:         StatusPending,
			MaxRetries:     maxRetries,
			CreatedAt:      r.now(),
		}
		r.entries[e.ID] = e
		created = append(created, copyEntry(e))
	}
	return created, nil
}

// ClaimNextPending implements Repository. The mutex makes the
// read-oldest-pending plus transition-to-sent step atomic.
func (r *MemoryRepository) ClaimNextPending(_ context.Context, recipientID, queueName string) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var head *Entry
	for _, e := range r.queueEntries(queueKey{recipientID, queueName}) {
		if e.Status == StatusSent {
			return nil, ErrInFlight
		}
		if e.Status == StatusPending && head == nil {
			head = e
		}
	}
	if head == nil {
		return nil, ErrDrained
	}

	now := r.now()
	head.Status = StatusSent
	head.SentAt = &now
	return copyEntry(head), nil
}

// LinkProviderMessage implements Repository.
func (r *MemoryRepository) LinkProviderMessage(_ context.Context, id uuid.UUID, providerMessageID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return ErrNotFound
	}
	e.ProviderMessageID = providerMessageID
	return nil
}

// GetByID implements Repository.
func (r *MemoryRepository) GetByID(_ context.Context, id uuid.UUID) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyEntry(e), nil
}

// GetByProviderMessageID implements Repository.
func (r *MemoryRepository) GetByProviderMessageID(_ context.Context, providerMessageID string) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if providerMessageID == "" {
		return nil, ErrNotFound
	}
	for _, e := range r.entries {
		if e.ProviderMessageID == providerMessageID {
			return copyEntry(e), nil
		}
	}
	return nil, ErrNotFound
}

// MarkDelivered implements Repository.
func (r *MemoryRepository) MarkDelivered(_ context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok || e.Status != StatusSent {
		return false, nil
	}
	now := r.now()
	e.Status = StatusDelivered
	e.DeliveredAt = &now
	return true, nil
}

// RequeueForRetry implements Repository.
func (r *MemoryRepository) RequeueForRetry(_ context.Context, id uuid.UUID, reason string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok || e.Status != StatusSent || e.RetryCount >= e.MaxRetries {
		return false, nil
	}
	e.Status = StatusPending
	e.RetryCount++
	e.LastError = reason
	e.ProviderMessageID = ""
	e.SentAt = nil
	return true, nil
}

// MarkFailed implements Repository.
func (r *MemoryRepository) MarkFailed(_ context.Context, id uuid.UUID, reason string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok || e.Status != StatusSent {
		return false, nil
	}
	e.Status = StatusFailed
	e.RetryCount = e.MaxRetries
	e.LastError = reason
	return true, nil
}

// FindStalled implements Repository.
func (r *MemoryRepository) FindStalled(_ context.Context, cutoff time.Time, limit int) ([]*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Entry
	for _, e := range r.entries {
		if e.Status == StatusSent && e.SentAt != nil && e.SentAt.Before(cutoff) {
			out = append(out, copyEntry(e))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SentAt.Before(*out[j].SentAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CountByStatus implements Repository.
func (r *MemoryRepository) CountByStatus(_ context.Context, recipientID, queueName string) (StatusCounts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var counts StatusCounts
	for _, e := range r.queueEntries(queueKey{recipientID, queueName}) {
		switch e.Status {
		case StatusPending:
			counts.Pending++
		case StatusSent:
			counts.Sent++
		case StatusDelivered:
			counts.Delivered++
		case StatusFailed:
			counts.Failed++
		}
	}
	return counts, nil
}

// DeleteTerminal implements Repository.
func (r *MemoryRepository) DeleteTerminal(_ context.Context, recipientID, queueName string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed int64
	for id, e := range r.entries {
		if e.RecipientID == recipientID && e.QueueName == queueName && e.Terminal() {
			delete(r.entries, id)
			removed++
		}
	}
	return removed, nil
}

func copyEntry(e *Entry) *Entry {
	cp := *e
	if e.SentAt != nil {
		t := *e.SentAt
		cp.SentAt = &t
	}
	if e.DeliveredAt != nil {
		t := *e.DeliveredAt
		cp.DeliveredAt = &t
	}
	cp.Content.MediaURLs = append([]string(nil), e.Content.MediaURLs...)
	return &cp
}
