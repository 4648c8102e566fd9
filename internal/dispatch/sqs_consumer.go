package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// SQSConsumer manages a pool of worker goroutines that consume and process
// events from an AWS SQS queue.
type SQSConsumer struct {
	client          sqsAPI
	queueURL        string
	handler         Handler
	dlq             DeadLetter
	retry           *RetryStrategy
	dispatcher      *SQSDispatcher
	log             zerolog.Logger
	workerCount     int
	waitTime        int32
	visTimeout      int32
	processTimeout  time.Duration
	shutdownTimeout time.Duration
	wg              sync.WaitGroup
	cancel          context.CancelFunc
}

// NewSQSConsumer creates an SQSConsumer configured from the given Config.
func NewSQSConsumer(
	client sqsAPI,
	queueURL string,
	handler Handler,
	dlq DeadLetter,
	retry *RetryStrategy,
	dispatcher *SQSDispatcher,
	cfg Config,
	log zerolog.Logger,
) *SQSConsumer {
	waitTime := cfg.SQSWaitTime
	if waitTime == 0 {
		waitTime = 20
	}
	visTimeout := cfg.SQSVisTimeout
	if visTimeout == 0 {
		visTimeout = 30
	}
	workerCount := cfg.WorkerCount
	if workerCount == 0 {
		workerCount = 10
	}
	processTimeout := cfg.ProcessTimeout
	if processTimeout == 0 {
		processTimeout = 30 * time.Second
	}
	shutdownTimeout := cfg.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}

	return &SQSConsumer{
		client:          client,
		queueURL:        queueURL,
		handler:         handler,
		dlq:             dlq,
		retry:           retry,
		dispatcher:      dispatcher,
		log:             log,
		workerCount:     workerCount,
		waitTime:        waitTime,
		visTimeout:      visTimeout,
		processTimeout:  processTimeout,
		shutdownTimeout: shutdownTimeout,
	}
}

// Start launches workerCount goroutines that long-poll the SQS queue.
func (c *SQSConsumer) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)

	for i := range c.workerCount {
		c.wg.Add(1)
		go c.runWorker(ctx, fmt.Sprintf("sqs-worker-%d", i))
	}

	c.log.Info().
		Int("worker_count", c.workerCount).
		Str("queue_url", c.queueURL).
		Msg("sqs consumer started")

	return nil
}

// Stop cancels the context and waits for workers to finish within the
// shutdown timeout.
func (c *SQSConsumer) Stop(_ context.Context) error {
	c.cancel()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.log.Info().Msg("sqs consumer stopped gracefully")
		return nil
	case <-time.After(c.shutdownTimeout):
		c.log.Warn().Msg("sqs consumer shutdown timed out")
		return fmt.Errorf("shutdown timed out after %s", c.shutdownTimeout)
	}
}

// runWorker is the main loop for a single worker goroutine. It long-polls
// SQS and processes received events one at a time.
func (c *SQSConsumer) runWorker(ctx context.Context, workerName string) {
	defer c.wg.Done()

	c.log.Info().Str("worker", workerName).Msg("sqs worker started")

	for {
		select {
		case <-ctx.Done():
			c.log.Info().Str("worker", workerName).Msg("sqs worker stopping")
			return
		default:
		}

		out, err := c.client.ReceiveMessage(ctx, &sqsReceiveInput{
			QueueURL:            c.queueURL,
			MaxNumberOfMessages: 1,
			WaitTimeSeconds:     c.waitTime,
			VisibilityTimeout:   c.visTimeout,
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Error().Err(err).Str("worker", workerName).Msg("sqs receive error")
			continue
		}

		for _, sqsMsg := range out.Messages {
			c.processEvent(ctx, workerName, sqsMsg)
		}
	}
}

// processEvent deserializes an SQS message body, invokes the handler, and
// either deletes the message (success) or retries/DLQs (failure).
func (c *SQSConsumer) processEvent(ctx context.Context, workerName string, sqsMsg sqsReceivedMessage) {
	start := time.Now()

	var ev Event
	if err := json.Unmarshal([]byte(sqsMsg.Body), &ev); err != nil {
		c.log.Error().Err(err).
			Str("sqs_message_id", sqsMsg.MessageID).
			Msg("failed to unmarshal sqs event")
		// Delete malformed messages to prevent infinite redelivery.
		_ = c.client.DeleteMessage(ctx, &sqsDeleteInput{
			QueueURL:      c.queueURL,
			ReceiptHandle: sqsMsg.ReceiptHandle,
		})
		return
	}

	processCtx, cancel := context.WithTimeout(ctx, c.processTimeout)
	defer cancel()

	err := c.handler.HandleEvent(processCtx, &ev)

	EventProcessingDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		c.log.Error().
			Err(err).
			Str("event_id", ev.ID).
			Str("event", ev.Name).
			Int("retry_count", ev.RetryCount).
			Msg("sqs event handling failed")

		ev.RetryCount++

		if c.retry.ShouldRetry(ev.RetryCount) {
			backoff := c.retry.NextBackoff(ev.RetryCount - 1)
			delaySec := int32(backoff.Seconds())
			if delaySec < 1 {
				delaySec = 1
			}

			c.log.Info().
				Str("event_id", ev.ID).
				Int("retry_count", ev.RetryCount).
				Int32("delay_seconds", delaySec).
				Msg("sqs scheduling event redelivery with delay")

			if _, schedErr := c.dispatcher.ScheduleWithDelay(ctx, &ev, delaySec); schedErr != nil {
				c.log.Error().Err(schedErr).Str("event_id", ev.ID).Msg("failed to reschedule event")
			}

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

	// Delete the original message regardless of outcome to prevent SQS
	// redelivery. Retries are handled by re-scheduling with delay.
	if delErr := c.client.DeleteMessage(ctx, &sqsDeleteInput{
		QueueURL:      c.queueURL,
		ReceiptHandle: sqsMsg.ReceiptHandle,
	}); delErr != nil {
		c.log.Error().Err(delErr).
			Str("sqs_message_id", sqsMsg.MessageID).
			Msg("failed to delete sqs message")
	}
}
