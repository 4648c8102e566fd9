package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/jiwoo/sms-sequencer/internal/dispatch"
	"github.com/jiwoo/sms-sequencer/internal/provider"
)

// fakeProvider returns scripted send outcomes in order. Once the script runs
// out, sends succeed with generated message IDs.
type fakeProvider struct {
	mu       sync.Mutex
	script   []error
	sent     []provider.Message
	nextID   int
	statuses map[string]provider.DeliveryStatus
}

func (f *fakeProvider) Send(_ context.Context, msg *provider.Message) (*provider.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sent = append(f.sent, *msg)
	if len(f.script) > 0 {
		err := f.script[0]
		f.script = f.script[1:]
		if err != nil {
			return nil, err
		}
	}
	f.nextID++
	return &provider.SendResult{ProviderMessageID: fmt.Sprintf("pm-%d", f.nextID)}, nil
}

func (f *fakeProvider) GetStatus(_ context.Context, id string) (provider.DeliveryStatus, error) {
	if s, ok := f.statuses[id]; ok {
		return s, nil
	}
	return provider.StatusInTransit, nil
}

func (f *fakeProvider) GetName() string { return "fake" }

func (f *fakeProvider) HealthCheck(_ context.Context) error { return nil }

// captureDispatcher records scheduled events without executing them; tests
// drive the manager directly.
type captureDispatcher struct {
	mu     sync.Mutex
	events []*dispatch.Event
}

func (d *captureDispatcher) Schedule(_ context.Context, ev *dispatch.Event) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, ev)
	return ev.ID, nil
}

func (d *captureDispatcher) names() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.events))
	for _, ev := range d.events {
		out = append(out, ev.Name)
	}
	return out
}

func newTestManager(maxRetries int) (*Manager, *MemoryRepository, *fakeProvider, *captureDispatcher) {
	repo := NewMemoryRepository()
	prov := &fakeProvider{}
	disp := &captureDispatcher{}
	m := NewManager(repo, prov, disp, maxRetries, zerolog.Nop())
	return m, repo, prov, disp
}

func TestEnqueueValidation(t *testing.T) {
	m, _, _, _ := newTestManager(0)
	ctx := context.Background()

	tests := []struct {
		name        string
		recipientID string
		queueName   string
		items       []Content
	}{
		{"missing recipient", "", "q", []Content{{Text: "hi"}}},
		{"missing queue name", "user-1", "", []Content{{Text: "hi"}}},
		{"empty content", "user-1", "q", []Content{{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.Enqueue(ctx, tt.recipientID, tt.queueName, tt.items); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestEnqueueEmptyBatchIsNoOp(t *testing.T) {
	m, repo, _, disp := newTestManager(0)
	ctx := context.Background()

	entries, err := m.Enqueue(ctx, "user-1", "q", nil)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no entries, got %d", len(entries))
	}
	if got := disp.names(); len(got) != 0 {
		t.Fatalf("expected no scheduled events, got %v", got)
	}

	counts, err := repo.CountByStatus(ctx, "user-1", "q")
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if counts.Total() != 0 {
		t.Fatalf("expected nothing persisted, got %d entries", counts.Total())
	}
}

func TestOrderedDeliveryChain(t *testing.T) {
	m, repo, prov, disp := newTestManager(0)
	ctx := context.Background()

	entries, err := m.Enqueue(ctx, "user-1", "q", []Content{{Text: "one"}, {Text: "two"}})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if entries[0].MaxRetries != DefaultMaxRetries {
		t.Fatalf("expected default retry budget, got %d", entries[0].MaxRetries)
	}
	if got := disp.names(); len(got) != 1 || got[0] != dispatch.EventProcessNext {
		t.Fatalf("expected one process_next event after enqueue, got %v", got)
	}

	// First claim sends the head entry.
	if err := m.ProcessNext(ctx, "user-1", "q"); err != nil {
		t.Fatalf("ProcessNext: %v", err)
	}
	if len(prov.sent) != 1 || prov.sent[0].Body != "one" {
		t.Fatalf("expected first message sent, got %+v", prov.sent)
	}

	// While the first is in flight, a duplicate event must not send more.
	if err := m.ProcessNext(ctx, "user-1", "q"); err != nil {
		t.Fatalf("duplicate ProcessNext: %v", err)
	}
	if len(prov.sent) != 1 {
		t.Fatalf("expected no send while in flight, got %d sends", len(prov.sent))
	}

	// Delivery receipt advances the queue.
	ok, err := m.MarkDelivered(ctx, "pm-1")
	if err != nil || !ok {
		t.Fatalf("MarkDelivered = %v, %v; want true, nil", ok, err)
	}
	if err := m.ProcessNext(ctx, "user-1", "q"); err != nil {
		t.Fatalf("ProcessNext after delivery: %v", err)
	}
	if len(prov.sent) != 2 || prov.sent[1].Body != "two" {
		t.Fatalf("expected second message sent after receipt, got %+v", prov.sent)
	}

	got, err := repo.GetByID(ctx, entries[0].ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != StatusDelivered {
		t.Fatalf("expected first entry delivered, got %s", got.Status)
	}
}

func TestTransientSendFailureRequeues(t *testing.T) {
	m, repo, prov, disp := newTestManager(0)
	ctx := context.Background()
	prov.script = []error{errors.New("connection reset")}

	entries, err := m.Enqueue(ctx, "user-1", "q", []Content{{Text: "msg"}})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	if err := m.ProcessNext(ctx, "user-1", "q"); err != nil {
		t.Fatalf("ProcessNext: %v", err)
	}

	got, _ := repo.GetByID(ctx, entries[0].ID)
	if got.Status != StatusPending || got.RetryCount != 1 {
		t.Fatalf("expected requeued entry with retry 1, got %+v", got)
	}

	var sawRetryEvent bool
	for _, name := range disp.names() {
		if name == dispatch.EventRetryDelivery {
			sawRetryEvent = true
		}
	}
	if !sawRetryEvent {
		t.Fatal("expected a retry_delivery event")
	}

	// The requeued entry is the next claim and sends again.
	if err := m.ProcessNext(ctx, "user-1", "q"); err != nil {
		t.Fatalf("ProcessNext retry: %v", err)
	}
	got, _ = repo.GetByID(ctx, entries[0].ID)
	if got.Status != StatusSent {
		t.Fatalf("expected entry back in flight, got %s", got.Status)
	}
}

func TestPermanentSendFailureSkipsRetries(t *testing.T) {
	m, repo, prov, _ := newTestManager(0)
	ctx := context.Background()
	prov.script = []error{&provider.ProviderError{
		Provider:  "fake",
		Message:   "invalid recipient",
		Permanent: true,
	}}

	entries, err := m.Enqueue(ctx, "user-1", "q", []Content{{Text: "bad"}, {Text: "good"}})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	if err := m.ProcessNext(ctx, "user-1", "q"); err != nil {
		t.Fatalf("ProcessNext: %v", err)
	}

	got, _ := repo.GetByID(ctx, entries[0].ID)
	if got.Status != StatusFailed || !got.Terminal() {
		t.Fatalf("expected terminal failure without retries, got %+v", got)
	}

	// The failed entry does not block its successor.
	if err := m.ProcessNext(ctx, "user-1", "q"); err != nil {
		t.Fatalf("ProcessNext after failure: %v", err)
	}
	if len(prov.sent) != 2 || prov.sent[1].Body != "good" {
		t.Fatalf("expected second message sent, got %+v", prov.sent)
	}
}

func TestFailureReceiptExhaustsBudgetThenFails(t *testing.T) {
	m, repo, _, _ := newTestManager(1)
	ctx := context.Background()

	entries, err := m.Enqueue(ctx, "user-1", "q", []Content{{Text: "msg"}})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	if err := m.ProcessNext(ctx, "user-1", "q"); err != nil {
		t.Fatalf("ProcessNext: %v", err)
	}

	// First failure receipt requeues.
	ok, err := m.MarkFailed(ctx, "pm-1", "carrier rejected")
	if err != nil || !ok {
		t.Fatalf("MarkFailed = %v, %v; want true, nil", ok, err)
	}
	got, _ := repo.GetByID(ctx, entries[0].ID)
	if got.Status != StatusPending || got.RetryCount != 1 {
		t.Fatalf("expected requeue, got %+v", got)
	}

	// Second attempt, second failure: budget of 1 is spent, entry fails.
	if err := m.ProcessNext(ctx, "user-1", "q"); err != nil {
		t.Fatalf("ProcessNext retry: %v", err)
	}
	ok, err = m.MarkFailed(ctx, "pm-2", "carrier rejected")
	if err != nil || !ok {
		t.Fatalf("second MarkFailed = %v, %v; want true, nil", ok, err)
	}
	got, _ = repo.GetByID(ctx, entries[0].ID)
	if got.Status != StatusFailed || !got.Terminal() {
		t.Fatalf("expected terminal failure, got %+v", got)
	}
}

func TestReceiptIdempotency(t *testing.T) {
	m, _, _, _ := newTestManager(0)
	ctx := context.Background()

	if _, err := m.Enqueue(ctx, "user-1", "q", []Content{{Text: "msg"}}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := m.ProcessNext(ctx, "user-1", "q"); err != nil {
		t.Fatalf("ProcessNext: %v", err)
	}

	ok, err := m.MarkDelivered(ctx, "pm-1")
	if err != nil || !ok {
		t.Fatalf("MarkDelivered = %v, %v; want true, nil", ok, err)
	}

	// Duplicate and conflicting receipts resolve to no-ops.
	ok, err = m.MarkDelivered(ctx, "pm-1")
	if err != nil || ok {
		t.Fatalf("duplicate MarkDelivered = %v, %v; want false, nil", ok, err)
	}
	ok, err = m.MarkFailed(ctx, "pm-1", "late failure")
	if err != nil || ok {
		t.Fatalf("late MarkFailed = %v, %v; want false, nil", ok, err)
	}

	// Receipts for unknown messages are no-ops, not errors.
	ok, err = m.MarkDelivered(ctx, "pm-unknown")
	if err != nil || ok {
		t.Fatalf("unknown MarkDelivered = %v, %v; want false, nil", ok, err)
	}
}

func TestDrainedQueueCleanup(t *testing.T) {
	m, repo, _, _ := newTestManager(0)
	ctx := context.Background()

	if _, err := m.Enqueue(ctx, "user-1", "q", []Content{{Text: "msg"}}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := m.ProcessNext(ctx, "user-1", "q"); err != nil {
		t.Fatalf("ProcessNext: %v", err)
	}
	if _, err := m.MarkDelivered(ctx, "pm-1"); err != nil {
		t.Fatalf("MarkDelivered: %v", err)
	}

	// The follow-up event finds the queue drained and removes terminal entries.
	if err := m.ProcessNext(ctx, "user-1", "q"); err != nil {
		t.Fatalf("ProcessNext on drained queue: %v", err)
	}

	counts, err := repo.CountByStatus(ctx, "user-1", "q")
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if counts.Total() != 0 {
		t.Fatalf("expected empty queue after cleanup, got %+v", counts)
	}
}
