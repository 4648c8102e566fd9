package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DLQEvent wraps a failed event with failure metadata.
type DLQEvent struct {
	OriginalEvent *Event    `json:"original_event"`
	FailureReason string    `json:"failure_reason"`
	FinalError    string    `json:"final_error"`
	MovedAt       time.Time `json:"moved_at"`
}

// RedisDLQ manages dead letter operations backed by a Redis stream.
type RedisDLQ struct {
	client     *redis.Client
	dispatcher Dispatcher
}

// NewRedisDLQ creates a RedisDLQ backed by the given Redis client and dispatcher.
func NewRedisDLQ(client *redis.Client, dispatcher Dispatcher) *RedisDLQ {
	return &RedisDLQ{client: client, dispatcher: dispatcher}
}

// MoveToDLQ moves a failed event to the dead letter stream.
func (d *RedisDLQ) MoveToDLQ(ctx context.Context, ev *Event, reason string) error {
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

	err = d.client.XAdd(ctx, &redis.XAddArgs{
		Stream: dlqStreamKey,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd to dlq stream %s: %w", dlqStreamKey, err)
	}

	DLQEventsTotal.WithLabelValues(reason).Inc()
	EventsProcessedTotal.WithLabelValues("dlq").Inc()

	return nil
}

// Reprocess removes events from the DLQ, resets their retry count, and
// reschedules them. It returns the number of events successfully reprocessed.
func (d *RedisDLQ) Reprocess(ctx context.Context, eventIDs []string) (int, error) {
	reprocessed := 0

	for _, id := range eventIDs {
		msgs, err := d.client.XRange(ctx, dlqStreamKey, id, id).Result()
		if err != nil {
			return reprocessed, fmt.Errorf("xrange dlq event %s: %w", id, err)
		}
		if len(msgs) == 0 {
			continue
		}

		data, ok := msgs[0].Values["data"].(string)
		if !ok {
			continue
		}

		var dlqEv DLQEvent
		if err := json.Unmarshal([]byte(data), &dlqEv); err != nil {
			continue
		}

		dlqEv.OriginalEvent.RetryCount = 0
		if _, err := d.dispatcher.Schedule(ctx, dlqEv.OriginalEvent); err != nil {
			return reprocessed, fmt.Errorf("reschedule event %s: %w", dlqEv.OriginalEvent.ID, err)
		}

		if err := d.client.XDel(ctx, dlqStreamKey, id).Err(); err != nil {
			return reprocessed, fmt.Errorf("xdel dlq event %s: %w", id, err)
		}

		reprocessed++
	}

	return reprocessed, nil
}
