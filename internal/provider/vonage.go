package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const vonageDefaultEndpoint = "https://rest.nexmo.com"

// Vonage implements the Provider interface for the Vonage SMS API.
// Vonage SMS is text-only; media URLs are appended to the message body.
type Vonage struct {
	apiKey    string
	apiSecret string
	from      string
	endpoint  string
	client    HTTPClient
}

// NewVonage creates a Vonage provider from the given configuration.
func NewVonage(cfg Config, client HTTPClient) *Vonage {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = vonageDefaultEndpoint
	}
	return &Vonage{
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		from:      cfg.From,
		endpoint:  endpoint,
		client:    client,
	}
}

func (v *Vonage) GetName() string { return "vonage" }

type vonageSendResponse struct {
	Messages []struct {
		Status    string `json:"status"`
		MessageID string `json:"message-id"`
		ErrorText string `json:"error-text"`
	} `json:"messages"`
}

type vonageSearchResponse struct {
	Status     string `json:"status"`
	FinalState string `json:"final-status"`
}

// Send delivers a message via the Vonage SMS API.
func (v *Vonage) Send(ctx context.Context, msg *Message) (*SendResult, error) {
	text := msg.Body
	if len(msg.MediaURLs) > 0 {
		if text != "" {
			text += "\n"
		}
		text += strings.Join(msg.MediaURLs, "\n")
	}

	form := url.Values{}
	form.Set("api_key", v.apiKey)
	form.Set("api_secret", v.apiSecret)
	form.Set("to", msg.To)
	form.Set("from", v.from)
	form.Set("text", text)

	resp, err := v.client.Do(&HTTPRequest{
		Method: "POST",
		URL:    v.endpoint + "/sms/json",
		Headers: map[string]string{
			"Content-Type": "application/x-www-form-urlencoded",
		},
		Body: []byte(form.Encode()),
	})
	if err != nil {
		return nil, fmt.Errorf("vonage: send request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, ClassifyHTTPError("vonage", resp.StatusCode, string(resp.Body))
	}

	var vr vonageSendResponse
	if err := json.Unmarshal(resp.Body, &vr); err != nil {
		return nil, fmt.Errorf("vonage: decode send response: %w", err)
	}
	if len(vr.Messages) == 0 {
		return nil, &ProviderError{Provider: "vonage", StatusCode: resp.StatusCode, Message: "empty messages array"}
	}

	// Vonage reports per-message errors with HTTP 200; status "0" is success.
	part := vr.Messages[0]
	if part.Status != "0" {
		return nil, &ProviderError{
			Provider:   "vonage",
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("status %s: %s", part.Status, part.ErrorText),
			Permanent:  vonagePermanentSendStatus(part.Status),
		}
	}

	return &SendResult{
		ProviderMessageID: part.MessageID,
		Timestamp:         time.Now(),
		Metadata:          map[string]string{"status": part.Status},
	}, nil
}

// GetStatus polls the Vonage message search API for the delivery state.
func (v *Vonage) GetStatus(ctx context.Context, providerMessageID string) (DeliveryStatus, error) {
	q := url.Values{}
	q.Set("api_key", v.apiKey)
	q.Set("api_secret", v.apiSecret)
	q.Set("id", providerMessageID)

	resp, err := v.client.Do(&HTTPRequest{
		Method: "GET",
		URL:    v.endpoint + "/search/message?" + q.Encode(),
	})
	if err != nil {
		return "", fmt.Errorf("vonage: status request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", ClassifyHTTPError("vonage", resp.StatusCode, string(resp.Body))
	}

	var sr vonageSearchResponse
	if err := json.Unmarshal(resp.Body, &sr); err != nil {
		return "", fmt.Errorf("vonage: decode status response: %w", err)
	}

	status := sr.FinalState
	if status == "" {
		status = sr.Status
	}
	return mapVonageStatus(status), nil
}

// HealthCheck verifies Vonage API connectivity via the account balance endpoint.
func (v *Vonage) HealthCheck(ctx context.Context) error {
	q := url.Values{}
	q.Set("api_key", v.apiKey)
	q.Set("api_secret", v.apiSecret)

	resp, err := v.client.Do(&HTTPRequest{
		Method: "GET",
		URL:    v.endpoint + "/account/get-balance?" + q.Encode(),
	})
	if err != nil {
		return fmt.Errorf("vonage: health check request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("vonage: health check status %d", resp.StatusCode)
	}
	return nil
}

// vonagePermanentSendStatus reports whether a Vonage send error code is
// permanent. See the SMS API error code table: 6 (invalid message), 7
// (number barred), 15 (invalid sender address), 29 (non-whitelisted
// destination).
func vonagePermanentSendStatus(status string) bool {
	switch status {
	case "6", "7", "15", "29":
		return true
	default:
		return false
	}
}

// mapVonageStatus normalizes a Vonage message state onto DeliveryStatus.
func mapVonageStatus(status string) DeliveryStatus {
	switch strings.ToLower(status) {
	case "delivered":
		return StatusDelivered
	case "failed", "rejected":
		return StatusFailed
	case "expired", "unknown":
		return StatusUndelivered
	default:
		// accepted, buffered, submitted, ...
		return StatusInTransit
	}
}
