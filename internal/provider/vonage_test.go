package provider

import (
	"context"
	"net/url"
	"strings"
	"testing"
)

func newVonage(client *mockHTTPClient) *Vonage {
	return NewVonage(Config{
		APIKey:    "key",
		APISecret: "secret",
		From:      "Sequencer",
		Endpoint:  "https://vonage.test",
	}, client)
}

func TestVonageSend(t *testing.T) {
	client := &mockHTTPClient{response: &HTTPResponse{
		StatusCode: 200,
		Body:       []byte(`{"messages":[{"status":"0","message-id":"0A0000001"}]}`),
	}}

	result, err := newVonage(client).Send(context.Background(), &Message{To: "15559998888", Body: "hello"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if result.ProviderMessageID != "0A0000001" {
		t.Fatalf("expected 0A0000001, got %q", result.ProviderMessageID)
	}

	req := client.requests[0]
	if req.Method != "POST" || req.URL != "https://vonage.test/sms/json" {
		t.Fatalf("unexpected request: %s %s", req.Method, req.URL)
	}
	form, err := url.ParseQuery(string(req.Body))
	if err != nil {
		t.Fatalf("parse form: %v", err)
	}
	if form.Get("api_key") != "key" || form.Get("to") != "15559998888" || form.Get("text") != "hello" {
		t.Fatalf("unexpected form: %v", form)
	}
}

func TestVonageSendAppendsMediaToText(t *testing.T) {
	client := &mockHTTPClient{response: &HTTPResponse{
		StatusCode: 200,
		Body:       []byte(`{"messages":[{"status":"0","message-id":"0A1"}]}`),
	}}

	_, err := newVonage(client).Send(context.Background(), &Message{
		To:        "1555",
		Body:      "see this",
		MediaURLs: []string{"https://cdn.test/a.jpg"},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	form, _ := url.ParseQuery(string(client.requests[0].Body))
	if form.Get("text") != "see this\nhttps://cdn.test/a.jpg" {
		t.Fatalf("unexpected text: %q", form.Get("text"))
	}
}

func TestVonageSendPartStatusErrors(t *testing.T) {
	tests := []struct {
		name          string
		status        string
		wantPermanent bool
	}{
		{"throttled", "1", false},
		{"invalid message", "6", true},
		{"number barred", "7", true},
		{"invalid sender", "15", true},
		{"non-whitelisted destination", "29", true},
		{"internal error", "5", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &mockHTTPClient{response: &HTTPResponse{
				StatusCode: 200,
				Body:       []byte(`{"messages":[{"status":"` + tt.status + `","error-text":"err"}]}`),
			}}
			_, err := newVonage(client).Send(context.Background(), &Message{To: "1555", Body: "x"})
			if err == nil {
				t.Fatal("expected error")
			}
			if IsPermanent(err) != tt.wantPermanent {
				t.Fatalf("IsPermanent = %v, want %v", IsPermanent(err), tt.wantPermanent)
			}
			if !strings.Contains(err.Error(), "status "+tt.status) {
				t.Fatalf("error should carry the status code: %v", err)
			}
		})
	}
}

func TestVonageSendEmptyMessages(t *testing.T) {
	client := &mockHTTPClient{response: &HTTPResponse{
		StatusCode: 200,
		Body:       []byte(`{"messages":[]}`),
	}}
	if _, err := newVonage(client).Send(context.Background(), &Message{To: "1555", Body: "x"}); err == nil {
		t.Fatal("expected error for empty messages array")
	}
}

func TestVonageGetStatus(t *testing.T) {
	tests := []struct {
		name string
		body string
		want DeliveryStatus
	}{
		{"delivered", `{"status":"delivered"}`, StatusDelivered},
		{"failed", `{"status":"failed"}`, StatusFailed},
		{"rejected", `{"status":"rejected"}`, StatusFailed},
		{"expired", `{"status":"expired"}`, StatusUndelivered},
		{"buffered", `{"status":"buffered"}`, StatusInTransit},
		{"final state wins", `{"status":"buffered","final-status":"DELIVRD"}`, StatusInTransit},
		{"final delivered", `{"status":"buffered","final-status":"delivered"}`, StatusDelivered},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &mockHTTPClient{response: &HTTPResponse{StatusCode: 200, Body: []byte(tt.body)}}
			v := newVonage(client)

			got, err := v.GetStatus(context.Background(), "0A1")
			if err != nil {
				t.Fatalf("GetStatus: %v", err)
			}
			if got != tt.want {
				t.Fatalf("GetStatus = %s, want %s", got, tt.want)
			}

			req := client.requests[0]
			if !strings.HasPrefix(req.URL, "https://vonage.test/search/message?") {
				t.Fatalf("unexpected URL: %s", req.URL)
			}
		})
	}
}

func TestVonageHealthCheck(t *testing.T) {
	client := &mockHTTPClient{response: &HTTPResponse{StatusCode: 200, Body: []byte(`{"value":10.5}`)}}
	v := newVonage(client)
	if err := v.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
	if !strings.HasPrefix(client.requests[0].URL, "https://vonage.test/account/get-balance?") {
		t.Fatalf("unexpected URL: %s", client.requests[0].URL)
	}

	client = &mockHTTPClient{response: &HTTPResponse{StatusCode: 500}}
	if err := newVonage(client).HealthCheck(context.Background()); err == nil {
		t.Fatal("expected error for non-2xx health check")
	}
}
