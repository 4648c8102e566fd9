package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jiwoo/sms-sequencer/internal/provider"
	"github.com/jiwoo/sms-sequencer/internal/queue"
)

type stubFinder struct {
	entries []*queue.Entry
	err     error
}

func (f *stubFinder) FindStalled(_ context.Context, _ time.Time, _ int) ([]*queue.Entry, error) {
	return f.entries, f.err
}

type recordingResolver struct {
	delivered []uuid.UUID
	failed    map[uuid.UUID]string
}

func newRecordingResolver() *recordingResolver {
	return &recordingResolver{failed: make(map[uuid.UUID]string)}
}

func (r *recordingResolver) DeliverEntry(_ context.Context, id uuid.UUID) (bool, error) {
	r.delivered = append(r.delivered, id)
	return true, nil
}

func (r *recordingResolver) FailEntry(_ context.Context, id uuid.UUID, reason string) (bool, error) {
	r.failed[id] = reason
	return true, nil
}

type stubPoller struct {
	statuses map[string]provider.DeliveryStatus
	err      error
}

func (p *stubPoller) GetStatus(_ context.Context, id string) (provider.DeliveryStatus, error) {
	if p.err != nil {
		return "", p.err
	}
	return p.statuses[id], nil
}

func stalledEntry(providerMessageID string) *queue.Entry {
	sentAt := time.Now().Add(-30 * time.Minute)
	return &queue.Entry{
		ID:                uuid.New(),
		RecipientID:       "user-1",
		QueueName:         "q",
		SequenceNumber:    1,
		Status:            queue.StatusSent,
		ProviderMessageID: providerMessageID,
		MaxRetries:        queue.DefaultMaxRetries,
		SentAt:            &sentAt,
	}
}

func TestSweepResolutions(t *testing.T) {
	tests := []struct {
		name          string
		entry         *queue.Entry
		poller        *stubPoller
		wantDelivered bool
		wantFailed    bool
	}{
		{
			name:          "provider reports delivered",
			entry:         stalledEntry("pm-1"),
			poller:        &stubPoller{statuses: map[string]provider.DeliveryStatus{"pm-1": provider.StatusDelivered}},
			wantDelivered: true,
		},
		{
			name:       "provider reports failed",
			entry:      stalledEntry("pm-2"),
			poller:     &stubPoller{statuses: map[string]provider.DeliveryStatus{"pm-2": provider.StatusFailed}},
			wantFailed: true,
		},
		{
			name:       "provider reports undelivered",
			entry:      stalledEntry("pm-3"),
			poller:     &stubPoller{statuses: map[string]provider.DeliveryStatus{"pm-3": provider.StatusUndelivered}},
			wantFailed: true,
		},
		{
			name:          "still in transit resolves optimistically",
			entry:         stalledEntry("pm-4"),
			poller:        &stubPoller{statuses: map[string]provider.DeliveryStatus{"pm-4": provider.StatusInTransit}},
			wantDelivered: true,
		},
		{
			name:          "poll failure resolves optimistically",
			entry:         stalledEntry("pm-5"),
			poller:        &stubPoller{err: errors.New("timeout")},
			wantDelivered: true,
		},
		{
			name:       "no provider link fails the entry",
			entry:      stalledEntry(""),
			poller:     &stubPoller{},
			wantFailed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := newRecordingResolver()
			s := NewStallReconciler(
				&stubFinder{entries: []*queue.Entry{tt.entry}},
				resolver,
				tt.poller,
				Config{},
				zerolog.Nop(),
			)

			s.Sweep(context.Background())

			delivered := len(resolver.delivered) == 1 && resolver.delivered[0] == tt.entry.ID
			_, failed := resolver.failed[tt.entry.ID]

			if delivered != tt.wantDelivered || failed != tt.wantFailed {
				t.Fatalf("delivered=%v failed=%v; want delivered=%v failed=%v",
					delivered, failed, tt.wantDelivered, tt.wantFailed)
			}
		})
	}
}

func TestSweepEmptyAndErrors(t *testing.T) {
	t.Run("scan error does not panic", func(t *testing.T) {
		resolver := newRecordingResolver()
		s := NewStallReconciler(&stubFinder{err: errors.New("db down")}, resolver, &stubPoller{}, Config{}, zerolog.Nop())
		s.Sweep(context.Background())
		if len(resolver.delivered) != 0 || len(resolver.failed) != 0 {
			t.Fatal("expected no resolutions on scan error")
		}
	})

	t.Run("nothing stalled", func(t *testing.T) {
		resolver := newRecordingResolver()
		s := NewStallReconciler(&stubFinder{}, resolver, &stubPoller{}, Config{}, zerolog.Nop())
		s.Sweep(context.Background())
		if len(resolver.delivered) != 0 || len(resolver.failed) != 0 {
			t.Fatal("expected no resolutions on empty scan")
		}
	})
}

func TestNewStallReconcilerDefaults(t *testing.T) {
	s := NewStallReconciler(&stubFinder{}, newRecordingResolver(), &stubPoller{}, Config{}, zerolog.Nop())
	if s.interval != DefaultInterval || s.stallAge != DefaultStallAge || s.batchLimit != DefaultBatchLimit {
		t.Fatalf("defaults not applied: %+v", s)
	}
}
