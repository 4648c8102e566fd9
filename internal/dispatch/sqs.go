package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
)

// SQSDispatcher publishes events to an AWS SQS queue.
type SQSDispatcher struct {
	client   sqsAPI
	queueURL string
	log      zerolog.Logger
}

// NewSQSDispatcher creates an SQSDispatcher targeting the given queue URL.
func NewSQSDispatcher(client sqsAPI, queueURL string, log zerolog.Logger) *SQSDispatcher {
	return &SQSDispatcher{
		client:   client,
		queueURL: queueURL,
		log:      log,
	}
}

// Schedule serializes the event to JSON and sends it via SQS SendMessage.
// It returns the SQS message ID.
func (d *SQSDispatcher) Schedule(ctx context.Context, ev *Event) (string, error) {
	return d.ScheduleWithDelay(ctx, ev, 0)
}

// ScheduleWithDelay sends the event with a delivery delay. The delay is
// capped at 900 seconds (SQS maximum).
func (d *SQSDispatcher) ScheduleWithDelay(ctx context.Context, ev *Event, delaySeconds int32) (string, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}

	if delaySeconds > 900 {
		delaySeconds = 900
	}

	out, err := d.client.SendMessage(ctx, &sqsSendInput{
		QueueURL:     d.queueURL,
		MessageBody:  string(data),
		DelaySeconds: delaySeconds,
	})
	if err != nil {
		return "", fmt.Errorf("sqs send message: %w", err)
	}

	EventsScheduledTotal.WithLabelValues(ev.Name).Inc()

	return out.MessageID, nil
}
