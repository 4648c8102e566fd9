package dispatch

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// NewDispatcher creates the producer side for the configured backend: a
// Dispatcher for scheduling events and the DeadLetter for reprocessing. The
// inline backend has no DLQ and needs its handler wired via SetHandler once
// the manager exists.
func NewDispatcher(cfg Config, log zerolog.Logger) (Dispatcher, DeadLetter, error) {
	switch cfg.Type {
	case "redis", "":
		client := newRedisClient(cfg)
		dispatcher := NewRedisDispatcher(client)
		dlq := NewRedisDLQ(client, dispatcher)
		return dispatcher, dlq, nil

	case "sqs":
		sqsClient, err := newAWSSQSClient(cfg.SQSRegion)
		if err != nil {
			return nil, nil, fmt.Errorf("create sqs client: %w", err)
		}
		dispatcher := NewSQSDispatcher(sqsClient, cfg.SQSQueueURL, log)
		dlq := NewSQSDLQ(sqsClient, cfg.SQSDLQueueURL, dispatcher, log)
		return dispatcher, dlq, nil

	case "inline":
		return NewInlineDispatcher(nil, log), nil, nil

	default:
		return nil, nil, fmt.Errorf("unknown dispatcher type: %s", cfg.Type)
	}
}

// NewConsumer creates the consumer side for the configured backend: a worker
// pool driving the given handler, plus the DeadLetter it moves exhausted
// events to. The inline backend executes events at the scheduling site and
// has no consumer.
func NewConsumer(cfg Config, handler Handler, log zerolog.Logger) (Consumer, DeadLetter, error) {
	retry := NewRetryStrategy(cfg.MaxRetries)

	switch cfg.Type {
	case "redis", "":
		client := newRedisClient(cfg)
		dispatcher := NewRedisDispatcher(client)
		dlq := NewRedisDLQ(client, dispatcher)
		consumer := NewRedisConsumer(client, dispatcher, dlq, handler, retry, cfg, log)
		return consumer, dlq, nil

	case "sqs":
		sqsClient, err := newAWSSQSClient(cfg.SQSRegion)
		if err != nil {
			return nil, nil, fmt.Errorf("create sqs client: %w", err)
		}
		dispatcher := NewSQSDispatcher(sqsClient, cfg.SQSQueueURL, log)
		dlq := NewSQSDLQ(sqsClient, cfg.SQSDLQueueURL, dispatcher, log)
		consumer := NewSQSConsumer(sqsClient, cfg.SQSQueueURL, handler, dlq, retry, dispatcher, cfg, log)
		return consumer, dlq, nil

	case "inline":
		return nil, nil, fmt.Errorf("inline dispatcher has no consumer")

	default:
		return nil, nil, fmt.Errorf("unknown dispatcher type: %s", cfg.Type)
	}
}

func newRedisClient(cfg Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}
