package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

// mockSQSClient records calls and returns scripted responses.
type mockSQSClient struct {
	sends   []*sqsSendInput
	deletes []*sqsDeleteInput
	receive *sqsReceiveOutput
	sendErr error
	recvErr error
}

func (m *mockSQSClient) SendMessage(_ context.Context, input *sqsSendInput) (*sqsSendOutput, error) {
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	m.sends = append(m.sends, input)
	return &sqsSendOutput{MessageID: "sqs-msg-1"}, nil
}

func (m *mockSQSClient) ReceiveMessage(_ context.Context, _ *sqsReceiveInput) (*sqsReceiveOutput, error) {
	if m.recvErr != nil {
		return nil, m.recvErr
	}
	if m.receive == nil {
		return &sqsReceiveOutput{}, nil
	}
	return m.receive, nil
}

func (m *mockSQSClient) DeleteMessage(_ context.Context, input *sqsDeleteInput) error {
	m.deletes = append(m.deletes, input)
	return nil
}

func TestSQSDispatcherSchedule(t *testing.T) {
	client := &mockSQSClient{}
	d := NewSQSDispatcher(client, "https://sqs.test/queue", zerolog.Nop())

	ev := NewProcessNext("user-1", "q")
	id, err := d.Schedule(context.Background(), ev)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if id != "sqs-msg-1" {
		t.Fatalf("expected SQS message ID, got %q", id)
	}

	if len(client.sends) != 1 {
		t.Fatalf("expected one send, got %d", len(client.sends))
	}
	var decoded Event
	if err := json.Unmarshal([]byte(client.sends[0].MessageBody), &decoded); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if decoded.Name != EventProcessNext || decoded.RecipientID != "user-1" {
		t.Fatalf("unexpected event on the wire: %+v", decoded)
	}
}

func TestSQSDispatcherDelayCap(t *testing.T) {
	client := &mockSQSClient{}
	d := NewSQSDispatcher(client, "https://sqs.test/queue", zerolog.Nop())

	if _, err := d.ScheduleWithDelay(context.Background(), NewProcessNext("user-1", "q"), 5000); err != nil {
		t.Fatalf("ScheduleWithDelay: %v", err)
	}
	if got := client.sends[0].DelaySeconds; got != 900 {
		t.Fatalf("expected delay capped at 900, got %d", got)
	}
}

func TestSQSDispatcherSendError(t *testing.T) {
	client := &mockSQSClient{sendErr: errors.New("throttled")}
	d := NewSQSDispatcher(client, "https://sqs.test/queue", zerolog.Nop())

	if _, err := d.Schedule(context.Background(), NewProcessNext("user-1", "q")); err == nil {
		t.Fatal("expected error")
	}
}

func TestSQSDLQMoveToDLQ(t *testing.T) {
	client := &mockSQSClient{}
	dlq := NewSQSDLQ(client, "https://sqs.test/dlq", nil, zerolog.Nop())

	ev := NewProcessNext("user-1", "q")
	if err := dlq.MoveToDLQ(context.Background(), ev, "handler kept failing"); err != nil {
		t.Fatalf("MoveToDLQ: %v", err)
	}

	if len(client.sends) != 1 || client.sends[0].QueueURL != "https://sqs.test/dlq" {
		t.Fatalf("expected one send to the DLQ, got %+v", client.sends)
	}
	var envelope DLQEvent
	if err := json.Unmarshal([]byte(client.sends[0].MessageBody), &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if envelope.FailureReason != "handler kept failing" || envelope.OriginalEvent.ID != ev.ID {
		t.Fatalf("unexpected envelope: %+v", envelope)
	}
}

func TestSQSDLQReprocess(t *testing.T) {
	ev := NewProcessNext("user-1", "q")
	ev.RetryCount = 5
	envelope, err := json.Marshal(DLQEvent{OriginalEvent: ev, FailureReason: "boom"})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}

	client := &mockSQSClient{receive: &sqsReceiveOutput{
		Messages: []sqsReceivedMessage{{MessageID: "m1", ReceiptHandle: "rh1", Body: string(envelope)}},
	}}
	dispatcher := NewSQSDispatcher(client, "https://sqs.test/queue", zerolog.Nop())
	dlq := NewSQSDLQ(client, "https://sqs.test/dlq", dispatcher, zerolog.Nop())

	reprocessed, err := dlq.Reprocess(context.Background(), []string{ev.ID})
	if err != nil {
		t.Fatalf("Reprocess: %v", err)
	}
	if reprocessed != 1 {
		t.Fatalf("expected 1 reprocessed, got %d", reprocessed)
	}

	// The event went back to the primary queue with a fresh redelivery budget.
	if len(client.sends) != 1 || client.sends[0].QueueURL != "https://sqs.test/queue" {
		t.Fatalf("expected one send to the primary queue, got %+v", client.sends)
	}
	var rescheduled Event
	if err := json.Unmarshal([]byte(client.sends[0].MessageBody), &rescheduled); err != nil {
		t.Fatalf("decode rescheduled event: %v", err)
	}
	if rescheduled.RetryCount != 0 {
		t.Fatalf("expected retry count reset, got %d", rescheduled.RetryCount)
	}

	// The DLQ copy was deleted.
	if len(client.deletes) != 1 || client.deletes[0].ReceiptHandle != "rh1" {
		t.Fatalf("expected DLQ message deleted, got %+v", client.deletes)
	}
}

func TestSQSDLQReprocessEmpty(t *testing.T) {
	dlq := NewSQSDLQ(&mockSQSClient{}, "https://sqs.test/dlq", nil, zerolog.Nop())
	reprocessed, err := dlq.Reprocess(context.Background(), nil)
	if err != nil || reprocessed != 0 {
		t.Fatalf("Reprocess(nil) = %d, %v; want 0, nil", reprocessed, err)
	}
}
