package reconcile

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jiwoo/sms-sequencer/internal/provider"
	"github.com/jiwoo/sms-sequencer/internal/queue"
)

// Defaults for the sweep loop.
const (
	DefaultInterval   = 2 * time.Minute
	DefaultStallAge   = 10 * time.Minute
	DefaultBatchLimit = 100
)

// stalledFinder is the slice of the repository the sweeper needs.
type stalledFinder interface {
	FindStalled(ctx context.Context, cutoff time.Time, limit int) ([]*queue.Entry, error)
}

// entryResolver is the slice of the queue manager the sweeper needs.
type entryResolver interface {
	DeliverEntry(ctx context.Context, id uuid.UUID) (bool, error)
	FailEntry(ctx context.Context, id uuid.UUID, reason string) (bool, error)
}

// statusPoller polls the provider for a message's delivery state.
type statusPoller interface {
	GetStatus(ctx context.Context, providerMessageID string) (provider.DeliveryStatus, error)
}

// StallReconciler resolves entries stuck in status sent, which happens when a
// provider webhook is lost or delayed. Each stalled entry is polled at the
// provider; when the poll cannot settle the question (still in transit, or
// the poll itself fails) the entry is resolved as delivered. Holding the
// queue indefinitely on a lost receipt is worse than occasionally advancing
// past a message the provider may still fail.
type StallReconciler struct {
	repo       stalledFinder
	resolver   entryResolver
	poller     statusPoller
	interval   time.Duration
	stallAge   time.Duration
	batchLimit int
	log        zerolog.Logger
}

// Config holds the sweep loop parameters. Zero values select the defaults.
type Config struct {
	Interval   time.Duration `mapstructure:"interval"`
	StallAge   time.Duration `mapstructure:"stall_age"`
	BatchLimit int           `mapstructure:"batch_limit"`
}

// NewStallReconciler creates a StallReconciler.
func NewStallReconciler(repo stalledFinder, resolver entryResolver, poller statusPoller, cfg Config, log zerolog.Logger) *StallReconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.StallAge <= 0 {
		cfg.StallAge = DefaultStallAge
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = DefaultBatchLimit
	}
	return &StallReconciler{
		repo:       repo,
		resolver:   resolver,
		poller:     poller,
		interval:   cfg.Interval,
		stallAge:   cfg.StallAge,
		batchLimit: cfg.BatchLimit,
		log:        log,
	}
}

// Run sweeps on the configured interval until the context is cancelled. One
// sweep runs immediately on start.
func (s *StallReconciler) Run(ctx context.Context) error {
	s.log.Info().
		Dur("interval", s.interval).
		Dur("stall_age", s.stallAge).
		Msg("stall reconciler started")

	s.Sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("stall reconciler stopping")
			return ctx.Err()
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep resolves one batch of stalled entries. Failures on individual entries
// are logged and skipped; the next sweep picks them up again.
func (s *StallReconciler) Sweep(ctx context.Context) {
	cutoff := time.Now().Add(-s.stallAge)

	stalled, err := s.repo.FindStalled(ctx, cutoff, s.batchLimit)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to scan for stalled entries")
		return
	}
	if len(stalled) == 0 {
		return
	}

	s.log.Info().Int("count", len(stalled)).Msg("resolving stalled entries")

	for _, e := range stalled {
		if ctx.Err() != nil {
			return
		}
		s.resolve(ctx, e)
	}
}

// resolve settles a single stalled entry.
func (s *StallReconciler) resolve(ctx context.Context, e *queue.Entry) {
	log := s.log.With().
		Str("entry_id", e.ID.String()).
		Str("recipient_id", e.RecipientID).
		Str("queue", e.QueueName).
		Logger()

	// No provider link means the send never completed; the message was most
	// likely never accepted, so the failure path (with its retry budget)
	// applies.
	if e.ProviderMessageID == "" {
		if _, err := s.resolver.FailEntry(ctx, e.ID, "stalled with no provider message id"); err != nil {
			log.Error().Err(err).Msg("failed to resolve unlinked stalled entry")
			return
		}
		queue.StallResolutionsTotal.WithLabelValues("unlinked").Inc()
		log.Warn().Msg("stalled entry had no provider link, failed")
		return
	}

	status, err := s.poller.GetStatus(ctx, e.ProviderMessageID)
	if err != nil {
		log.Warn().Err(err).Msg("status poll failed, resolving stalled entry as delivered")
		s.deliver(ctx, e, log)
		return
	}

	switch status {
	case provider.StatusDelivered:
		s.deliver(ctx, e, log)
	case provider.StatusFailed, provider.StatusUndelivered:
		if _, err := s.resolver.FailEntry(ctx, e.ID, "provider reported "+string(status)); err != nil {
			log.Error().Err(err).Msg("failed to record stalled entry failure")
			return
		}
		queue.StallResolutionsTotal.WithLabelValues("failed").Inc()
		log.Warn().Str("provider_status", string(status)).Msg("stalled entry failed at provider")
	default:
		// Still in transit after the stall age: assume the receipt was lost
		// and move on rather than block the queue.
		log.Warn().Str("provider_status", string(status)).Msg("stalled entry still in transit, resolving as delivered")
		s.deliver(ctx, e, log)
	}
}

func (s *StallReconciler) deliver(ctx context.Context, e *queue.Entry, log zerolog.Logger) {
	ok, err := s.resolver.DeliverEntry(ctx, e.ID)
	if err != nil {
		log.Error().Err(err).Msg("failed to resolve stalled entry as delivered")
		return
	}
	if ok {
		queue.StallResolutionsTotal.WithLabelValues("delivered").Inc()
		log.Info().Msg("stalled entry resolved as delivered")
	}
}
