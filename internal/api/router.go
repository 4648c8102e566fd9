package api

import (
	"context"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/jiwoo/sms-sequencer/internal/dispatch"
)

// RouterConfig collects the collaborators the HTTP surface needs. DB and
// ProviderCheck may be nil (readiness then skips that check); DLQ may be nil,
// in which case the reprocess endpoint is not registered.
type RouterConfig struct {
	Manager       QueueManager
	DB            Pinger
	ProviderCheck func(ctx context.Context) error
	DLQ           dispatch.DeadLetter
	AuthToken     string
}

// NewRouter creates a chi.Mux with all routes, middleware, and handlers configured.
func NewRouter(cfg RouterConfig, log zerolog.Logger) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(CorrelationIDMiddleware)
	r.Use(LoggingMiddleware(log))
	r.Use(RecoverMiddleware(log))

	// Health and metrics endpoints (no auth required)
	r.Get("/healthz", HealthzHandler())
	r.Get("/readyz", ReadyzHandler(cfg.DB, cfg.ProviderCheck))
	r.Handle("/metrics", promhttp.Handler())

	// Webhook endpoints (no auth required - called by SMS providers)
	r.Post("/api/v1/webhooks/twilio", TwilioWebhookHandler(cfg.Manager))
	r.Post("/api/v1/webhooks/vonage", VonageWebhookHandler(cfg.Manager))

	// Management routes (auth required)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(StaticBearerAuth(cfg.AuthToken))

		r.Post("/queues/{recipientID}/{queueName}/messages", EnqueueHandler(cfg.Manager))
		r.Get("/queues/{recipientID}/{queueName}", QueueStatusHandler(cfg.Manager))
		r.Delete("/queues/{recipientID}/{queueName}", ClearQueueHandler(cfg.Manager))

		if cfg.DLQ != nil {
			r.Post("/dispatch/dlq/reprocess", DLQReprocessHandler(cfg.DLQ))
		}
	})

	return r
}
