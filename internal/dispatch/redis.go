package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisDispatcher publishes events to a Redis stream.
type RedisDispatcher struct {
	client *redis.Client
}

// NewRedisDispatcher creates a RedisDispatcher backed by the given Redis client.
func NewRedisDispatcher(client *redis.Client) *RedisDispatcher {
	return &RedisDispatcher{client: client}
}

// Schedule adds an event to the dispatch stream using XADD and returns the
// Redis stream entry ID.
func (d *RedisDispatcher) Schedule(ctx context.Context, ev *Event) (string, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}

	entryID, err := d.client.XAdd(ctx, &redis.XAddArgs{
		Stream: eventStreamKey,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd to stream %s: %w", eventStreamKey, err)
	}

	EventsScheduledTotal.WithLabelValues(ev.Name).Inc()

	return entryID, nil
}
