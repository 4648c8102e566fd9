package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// SQSDLQ manages dead letter operations backed by an AWS SQS queue.
type SQSDLQ struct {
	client     sqsAPI
	dlqURL     string
	dispatcher Dispatcher
	log        zerolog.Logger
}

// NewSQSDLQ creates an SQSDLQ targeting the given DLQ URL. The dispatcher is
// used by Reprocess to reschedule events onto the primary queue.
func NewSQSDLQ(client sqsAPI, dlqURL string, dispatcher Dispatcher, log zerolog.Logger) *SQSDLQ {
	return &SQSDLQ{
		client:     client,
		dlqURL:     dlqURL,
		dispatcher: dispatcher,
		log:        log,
	}
}

// MoveToDLQ wraps the failed event in a DLQEvent envelope and sends it to the
// dead letter queue.
func (d *SQSDLQ) MoveToDLQ(ctx context.Context, ev *Event, reason string) error {
	dlqEv := DLQEvent{
		OriginalEvent: ev,
		FailureReason: reason,
		FinalError:    reason,
		MovedAt:       time.Now(),
	}

	data, err := json.Marshal(dlqEv)
	if err != nil {
		return fmt.Errorf("marshal dlq event: %w", err)
	}

	_, err = d.client.SendMessage(ctx, &sqsSendInput{
		QueueURL:    d.dlqURL,
		MessageBody: string(data),
	})
	if err != nil {
		return fmt.Errorf("sqs send to dlq: %w", err)
	}

	DLQEventsTotal.WithLabelValues(reason).Inc()
	EventsProcessedTotal.WithLabelValues("dlq").Inc()

	return nil
}

// Reprocess reads events from the DLQ, resets their retry count, and
// reschedules them. SQS does not support reading by message ID, so this polls
// the DLQ and reprocesses up to len(eventIDs) messages; the SQS redrive
// policy is the primary production mechanism.
func (d *SQSDLQ) Reprocess(ctx context.Context, eventIDs []string) (int, error) {
	batchSize := len(eventIDs)
	if batchSize == 0 {
		return 0, nil
	}
	if batchSize > 10 {
		batchSize = 10
	}

	out, err := d.client.ReceiveMessage(ctx, &sqsReceiveInput{
		QueueURL:            d.dlqURL,
		MaxNumberOfMessages: int32(batchSize),
		WaitTimeSeconds:     0, // no long-poll for reprocessing
		VisibilityTimeout:   30,
	})
	if err != nil {
		return 0, fmt.Errorf("sqs receive from dlq: %w", err)
	}

	reprocessed := 0
	for _, sqsMsg := range out.Messages {
		var dlqEv DLQEvent
		if err := json.Unmarshal([]byte(sqsMsg.Body), &dlqEv); err != nil {
			d.log.Warn().Err(err).Msg("skipping malformed dlq event")
			continue
		}

		dlqEv.OriginalEvent.RetryCount = 0
		if _, err := d.dispatcher.Schedule(ctx, dlqEv.OriginalEvent); err != nil {
			return reprocessed, fmt.Errorf("reschedule event %s: %w", dlqEv.OriginalEvent.ID, err)
		}

		if err := d.client.DeleteMessage(ctx, &sqsDeleteInput{
			QueueURL:      d.dlqURL,
			ReceiptHandle: sqsMsg.ReceiptHandle,
		}); err != nil {
			return reprocessed, fmt.Errorf("delete dlq event: %w", err)
		}

		reprocessed++
	}

	return reprocessed, nil
}
