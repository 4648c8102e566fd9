package provider

import (
	"context"
	"encoding/base64"
	"errors"
	"net/url"
	"testing"
)

// mockHTTPClient returns scripted responses and records requests. Shared by
// the Twilio and Vonage tests.
type mockHTTPClient struct {
	requests []*HTTPRequest
	response *HTTPResponse
	err      error
}

func (m *mockHTTPClient) Do(req *HTTPRequest) (*HTTPResponse, error) {
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	return m.response, nil
}

func newTwilio(client *mockHTTPClient) *Twilio {
	return NewTwilio(Config{
		AccountSID: "AC123",
		AuthToken:  "token",
		From:       "+15550001111",
		Endpoint:   "https://twilio.test",
	}, client)
}

func TestTwilioSend(t *testing.T) {
	client := &mockHTTPClient{response: &HTTPResponse{
		StatusCode: 201,
		Body:       []byte(`{"sid":"SM123","status":"queued"}`),
	}}
	tw := newTwilio(client)

	result, err := tw.Send(context.Background(), &Message{
		To:        "+15559998888",
		Body:      "hello",
		MediaURLs: []string{"https://cdn.test/a.jpg"},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if result.ProviderMessageID != "SM123" {
		t.Fatalf("expected SM123, got %q", result.ProviderMessageID)
	}

	req := client.requests[0]
	if req.Method != "POST" || req.URL != "https://twilio.test/2010-04-01/Accounts/AC123/Messages.json" {
		t.Fatalf("unexpected request: %s %s", req.Method, req.URL)
	}
	wantAuth := "Basic " + base64.StdEncoding.EncodeToString([]byte("AC123:token"))
	if req.Headers["Authorization"] != wantAuth {
		t.Fatalf("unexpected auth header: %q", req.Headers["Authorization"])
	}

	form, err := url.ParseQuery(string(req.Body))
	if err != nil {
		t.Fatalf("parse form: %v", err)
	}
	if form.Get("To") != "+15559998888" || form.Get("From") != "+15550001111" || form.Get("Body") != "hello" {
		t.Fatalf("unexpected form: %v", form)
	}
	if form.Get("MediaUrl") != "https://cdn.test/a.jpg" {
		t.Fatalf("expected media url in form, got %v", form)
	}
}

func TestTwilioSendErrorClassification(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantPermanent bool
	}{
		{"invalid number", 400, `{"message":"The 'To' number is not a valid phone number."}`, true},
		{"rate limited", 429, `{"message":"Too many requests"}`, false},
		{"server error", 503, `{"message":"Service unavailable"}`, false},
		{"bad credentials", 401, `{"message":"Authenticate"}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &mockHTTPClient{response: &HTTPResponse{StatusCode: tt.status, Body: []byte(tt.body)}}
			_, err := newTwilio(client).Send(context.Background(), &Message{To: "+1555", Body: "x"})
			if err == nil {
				t.Fatal("expected error")
			}
			if IsPermanent(err) != tt.wantPermanent {
				t.Fatalf("IsPermanent = %v, want %v", IsPermanent(err), tt.wantPermanent)
			}
		})
	}
}

func TestTwilioSendTransportError(t *testing.T) {
	client := &mockHTTPClient{err: errors.New("connection refused")}
	_, err := newTwilio(client).Send(context.Background(), &Message{To: "+1555", Body: "x"})
	if err == nil {
		t.Fatal("expected error")
	}
	// Transport errors carry no classification and default to transient.
	if !IsTransient(err) {
		t.Fatal("expected transport error to be transient")
	}
}

func TestTwilioGetStatus(t *testing.T) {
	tests := []struct {
		apiStatus string
		want      DeliveryStatus
	}{
		{"delivered", StatusDelivered},
		{"read", StatusDelivered},
		{"failed", StatusFailed},
		{"canceled", StatusFailed},
		{"undelivered", StatusUndelivered},
		{"sent", StatusInTransit},
		{"some-future-status", StatusInTransit},
	}
	for _, tt := range tests {
		t.Run(tt.apiStatus, func(t *testing.T) {
			client := &mockHTTPClient{response: &HTTPResponse{
				StatusCode: 200,
				Body:       []byte(`{"sid":"SM123","status":"` + tt.apiStatus + `"}`),
			}}
			got, err := newTwilio(client).GetStatus(context.Background(), "SM123")
			if err != nil {
				t.Fatalf("GetStatus: %v", err)
			}
			if got != tt.want {
				t.Fatalf("GetStatus = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestTwilioHealthCheck(t *testing.T) {
	client := &mockHTTPClient{response: &HTTPResponse{StatusCode: 200, Body: []byte(`{}`)}}
	if err := newTwilio(client).HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}

	client = &mockHTTPClient{response: &HTTPResponse{StatusCode: 401}}
	if err := newTwilio(client).HealthCheck(context.Background()); err == nil {
		t.Fatal("expected error for non-2xx health check")
	}
}
