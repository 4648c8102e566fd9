package provider

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Stdout is a development provider that logs sends instead of delivering
// them. Every message is reported delivered on the first status poll.
type Stdout struct {
	log zerolog.Logger
}

// NewStdout creates a Stdout provider.
func NewStdout(log zerolog.Logger) *Stdout {
	return &Stdout{log: log}
}

func (s *Stdout) GetName() string { return "stdout" }

// Send logs the message and returns a generated provider message ID.
func (s *Stdout) Send(_ context.Context, msg *Message) (*SendResult, error) {
	id := "stdout-" + uuid.New().String()
	s.log.Info().
		Str("to", msg.To).
		Str("body", msg.Body).
		Strs("media_urls", msg.MediaURLs).
		Str("provider_message_id", id).
		Msg("stdout provider send")

	return &SendResult{
		ProviderMessageID: id,
		Timestamp:         time.Now(),
	}, nil
}

// GetStatus always reports delivered.
func (s *Stdout) GetStatus(_ context.Context, _ string) (DeliveryStatus, error) {
	return StatusDelivered, nil
}

// HealthCheck always succeeds.
func (s *Stdout) HealthCheck(_ context.Context) error { return nil }
