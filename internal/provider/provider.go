package provider

import (
	"context"
	"time"
)

// Provider defines the interface for sending messages through an SMS provider.
type Provider interface {
	// Send delivers a message and returns the provider-assigned message ID.
	Send(ctx context.Context, msg *Message) (*SendResult, error)
	// GetStatus polls the provider for the current delivery status of a
	// previously sent message.
	GetStatus(ctx context.Context, providerMessageID string) (DeliveryStatus, error)
	// GetName returns the provider's identifier (e.g., "twilio", "vonage").
	GetName() string
	// HealthCheck verifies the provider is reachable and functional.
	HealthCheck(ctx context.Context) error
}

// HTTPClient abstracts HTTP operations for testability.
type HTTPClient interface {
	Do(req *HTTPRequest) (*HTTPResponse, error)
}

// HTTPRequest represents an outgoing HTTP request.
type HTTPRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

// HTTPResponse represents an HTTP response from a provider API.
type HTTPResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
}

// Message represents an outbound message to one recipient. The body and media
// list are opaque to this package; content is produced upstream.
type Message struct {
	To        string
	Body      string
	MediaURLs []string
}

// SendResult contains the outcome of an accepted send request.
type SendResult struct {
	ProviderMessageID string
	Timestamp         time.Time
	Metadata          map[string]string
}

// DeliveryStatus is the provider's view of a message's delivery state.
type DeliveryStatus string

// Delivery statuses returned by GetStatus.
const (
	StatusDelivered   DeliveryStatus = "delivered"
	StatusFailed      DeliveryStatus = "failed"
	StatusUndelivered DeliveryStatus = "undelivered"
	StatusInTransit   DeliveryStatus = "in_transit"
)
