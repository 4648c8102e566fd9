package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"time"
)

const twilioDefaultEndpoint = "https://api.twilio.com"

// Twilio implements the Provider interface for the Twilio Messages API.
type Twilio struct {
	accountSID string
	authToken  string
	from       string
	endpoint   string
	client     HTTPClient
}

// NewTwilio creates a Twilio provider from the given configuration.
func NewTwilio(cfg Config, client HTTPClient) *Twilio {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = twilioDefaultEndpoint
	}
	return &Twilio{
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		from:       cfg.From,
		endpoint:   endpoint,
		client:     client,
	}
}

func (t *Twilio) GetName() string { return "twilio" }

// twilioMessage is the subset of the Twilio message resource we consume.
type twilioMessage struct {
	SID          string `json:"sid"`
	Status       string `json:"status"`
	ErrorCode    *int   `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

// Send delivers a message via the Twilio Messages API.
func (t *Twilio) Send(ctx context.Context, msg *Message) (*SendResult, error) {
	form := url.Values{}
	form.Set("To", msg.To)
	form.Set("From", t.from)
	if msg.Body != "" {
		form.Set("Body", msg.Body)
	}
	for _, mediaURL := range msg.MediaURLs {
		form.Add("MediaUrl", mediaURL)
	}

	resp, err := t.client.Do(&HTTPRequest{
		Method: "POST",
		URL:    fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", t.endpoint, t.accountSID),
		Headers: map[string]string{
			"Authorization": "Basic " + basicAuth(t.accountSID, t.authToken),
			"Content-Type":  "application/x-www-form-urlencoded",
		},
		Body: []byte(form.Encode()),
	})
	if err != nil {
		return nil, fmt.Errorf("twilio: send request: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var tw twilioMessage
		if err := json.Unmarshal(resp.Body, &tw); err != nil {
			return nil, fmt.Errorf("twilio: decode send response: %w", err)
		}
		return &SendResult{
			ProviderMessageID: tw.SID,
			Timestamp:         time.Now(),
			Metadata: map[string]string{
				"status":      tw.Status,
				"status_code": fmt.Sprintf("%d", resp.StatusCode),
			},
		}, nil
	}

	return nil, ClassifyHTTPError("twilio", resp.StatusCode, string(resp.Body))
}

// GetStatus polls the Twilio message resource for its current delivery status.
func (t *Twilio) GetStatus(ctx context.Context, providerMessageID string) (DeliveryStatus, error) {
	resp, err := t.client.Do(&HTTPRequest{
		Method: "GET",
		URL:    fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages/%s.json", t.endpoint, t.accountSID, providerMessageID),
		Headers: map[string]string{
			"Authorization": "Basic " + basicAuth(t.accountSID, t.authToken),
		},
	})
	if err != nil {
		return "", fmt.Errorf("twilio: status request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", ClassifyHTTPError("twilio", resp.StatusCode, string(resp.Body))
	}

	var tw twilioMessage
	if err := json.Unmarshal(resp.Body, &tw); err != nil {
		return "", fmt.Errorf("twilio: decode status response: %w", err)
	}

	return mapTwilioStatus(tw.Status), nil
}

// HealthCheck verifies Twilio API connectivity by requesting the account resource.
func (t *Twilio) HealthCheck(ctx context.Context) error {
	resp, err := t.client.Do(&HTTPRequest{
		Method: "GET",
		URL:    fmt.Sprintf("%s/2010-04-01/Accounts/%s.json", t.endpoint, t.accountSID),
		Headers: map[string]string{
			"Authorization": "Basic " + basicAuth(t.accountSID, t.authToken),
		},
	})
	if err != nil {
		return fmt.Errorf("twilio: health check request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("twilio: health check status %d", resp.StatusCode)
	}
	return nil
}

// mapTwilioStatus normalizes a Twilio message status onto DeliveryStatus.
// Anything the API may add that we do not recognize is reported as in transit;
// the stall reconciler resolves such entries optimistically.
func mapTwilioStatus(status string) DeliveryStatus {
	switch status {
	case "delivered", "read":
		return StatusDelivered
	case "failed", "canceled":
		return StatusFailed
	case "undelivered":
		return StatusUndelivered
	default:
		// queued, accepted, sending, sent, receiving, ...
		return StatusInTransit
	}
}

// basicAuth encodes a username/password pair for an Authorization header.
func basicAuth(user, pass string) string {
	return base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))
}
