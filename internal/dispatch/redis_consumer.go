package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisConsumer manages a pool of worker goroutines that consume and process
// events from the dispatch stream using a consumer group.
type RedisConsumer struct {
	client     *redis.Client
	dispatcher Dispatcher
	dlq        DeadLetter
	handler    Handler
	retry      *RetryStrategy
	config     Config
	log        zerolog.Logger
	wg         sync.WaitGroup
	cancel     context.CancelFunc
}

// NewRedisConsumer creates a RedisConsumer. The handler defines event
// processing logic; the dispatcher is used for redelivery after backoff.
func NewRedisConsumer(
	client *redis.Client,
	dispatcher Dispatcher,
	dlq DeadLetter,
	handler Handler,
	retry *RetryStrategy,
	cfg Config,
	log zerolog.Logger,
) *RedisConsumer {
	return &RedisConsumer{
		client:     client,
		dispatcher: dispatcher,
		dlq:        dlq,
		handler:    handler,
		retry:      retry,
		config:     cfg,
		log:        log,
	}
}

// Start creates the consumer group (if it does not already exist) and
// launches the configured number of worker goroutines.
func (c *RedisConsumer) Start(ctx context.Context) error {
	if err := c.createConsumerGroup(ctx); err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}

	ctx, c.cancel = context.WithCancel(ctx)

	for i := range c.config.WorkerCount {
		c.wg.Add(1)
		go c.runWorker(ctx, fmt.Sprintf("worker-%d", i))
	}

	c.log.Info().
		Int("worker_count", c.config.WorkerCount).
		Str("group", c.config.GroupName).
		Msg("redis consumer started")

	return nil
}

// Stop signals all workers to stop and waits up to the configured shutdown
// timeout for them to finish processing.
func (c *RedisConsumer) Stop(ctx context.Context) error {
	c.cancel()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.log.Info().Msg("redis consumer stopped gracefully")
		return nil
	case <-time.After(c.config.ShutdownTimeout):
		c.log.Warn().Msg("redis consumer shutdown timed out")
		return fmt.Errorf("shutdown timed out after %s", c.config.ShutdownTimeout)
	}
}

// createConsumerGroup creates the consumer group on the dispatch stream.
// If the stream or group already exists, the error is ignored.
func (c *RedisConsumer) createConsumerGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, eventStreamKey, c.config.GroupName, "0").Err()
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return fmt.Errorf("create consumer group %s on stream %s: %w", c.config.GroupName, eventStreamKey, err)
	}
	return nil
}

// runWorker is the main loop for a single worker goroutine.
func (c *RedisConsumer) runWorker(ctx context.Context, consumerName string) {
	defer c.wg.Done()

	c.log.Info().Str("consumer", consumerName).Msg("worker started")

	for {
		select {
		case <-ctx.Done():
			c.log.Info().Str("consumer", consumerName).Msg("worker stopping")
			return
		default:
		}

		xMsgs, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.config.GroupName,
			Consumer: consumerName,
			Streams:  []string{eventStreamKey, ">"},
			Count:    1,
			Block:    c.config.BlockTimeout,
		}).Result()
		if err != nil {
			if err == redis.Nil || ctx.Err() != nil {
				continue
			}
			c.log.Error().Err(err).Str("consumer", consumerName).Msg("xreadgroup error")
			continue
		}

		for _, stream := range xMsgs {
			for _, xMsg := range stream.Messages {
				c.processEvent(ctx, consumerName, xMsg)
			}
		}
	}
}

// processEvent handles a single stream message: deserializes the event,
// invokes the handler, and either acknowledges or retries/DLQs on failure.
func (c *RedisConsumer) processEvent(ctx context.Context, consumerName string, xMsg redis.XMessage) {
	start := time.Now()

	data, ok := xMsg.Values["data"].(string)
	if !ok {
		c.log.Error().Str("entry_id", xMsg.ID).Msg("invalid event data type")
		_ = c.acknowledge(ctx, xMsg.ID)
		return
	}

	var ev Event
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		c.log.Error().Err(err).Str("entry_id", xMsg.ID).Msg("failed to unmarshal event")
		_ = c.acknowledge(ctx, xMsg.ID)
		return
	}

	processCtx, cancel := context.WithTimeout(ctx, c.config.ProcessTimeout)
	defer cancel()

	err := c.handler.HandleEvent(processCtx, &ev)

	EventProcessingDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		c.log.Error().
			Err(err).
			Str("event_id", ev.ID).
			Str("event", ev.Name).
			Int("retry_count", ev.RetryCount).
			Msg("event handling failed")

		ev.RetryCount++

		if c.retry.ShouldRetry(ev.RetryCount) {
			backoff := c.retry.NextBackoff(ev.RetryCount - 1)
			c.log.Info().
				Str("event_id", ev.ID).
				Int("retry_count", ev.RetryCount).
				Dur("backoff", backoff).
				Msg("scheduling event redelivery")

			go c.redeliverAfterBackoff(context.WithoutCancel(ctx), &ev, backoff)

			EventsProcessedTotal.WithLabelValues("failed").Inc()
		} else {
			c.log.Warn().
				Str("event_id", ev.ID).
				Int("retry_count", ev.RetryCount).
				Msg("redelivery budget exhausted, moving event to DLQ")

			if dlqErr := c.dlq.MoveToDLQ(ctx, &ev, err.Error()); dlqErr != nil {
				c.log.Error().Err(dlqErr).Str("event_id", ev.ID).Msg("failed to move event to DLQ")
			}
		}
	} else {
		EventsProcessedTotal.WithLabelValues("handled").Inc()
	}

	// Acknowledge regardless of outcome to prevent redelivery of the original.
	if ackErr := c.acknowledge(ctx, xMsg.ID); ackErr != nil {
		c.log.Error().Err(ackErr).Str("entry_id", xMsg.ID).Msg("failed to acknowledge event")
	}
}

// acknowledge acknowledges a stream message in the consumer group using XACK.
func (c *RedisConsumer) acknowledge(ctx context.Context, entryID string) error {
	err := c.client.XAck(ctx, eventStreamKey, c.config.GroupName, entryID).Err()
	if err != nil {
		return fmt.Errorf("xack message %s on stream %s: %w", entryID, eventStreamKey, err)
	}
	return nil
}

// redeliverAfterBackoff waits for the backoff duration then reschedules the
// event through the dispatcher.
func (c *RedisConsumer) redeliverAfterBackoff(ctx context.Context, ev *Event, backoff time.Duration) {
	timer := time.NewTimer(backoff)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	if _, err := c.dispatcher.Schedule(ctx, ev); err != nil {
		c.log.Error().Err(err).Str("event_id", ev.ID).Msg("failed to reschedule event")
	}
}
