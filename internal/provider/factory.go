package provider

import (
	"fmt"

	"github.com/rs/zerolog"
)

// New creates a Provider from configuration. Unknown types are an error so a
// misconfigured deployment fails at startup instead of silently dropping sends.
func New(cfg Config, client HTTPClient, log zerolog.Logger) (Provider, error) {
	switch cfg.Type {
	case "twilio":
		return NewTwilio(cfg, client), nil
	case "vonage":
		return NewVonage(cfg, client), nil
	case "stdout", "":
		return NewStdout(log), nil
	default:
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Type)
	}
}
