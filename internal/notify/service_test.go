package notify_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nhle/onebox/internal/model"
	"github.com/nhle/onebox/internal/notify"
)

func interestedDoc() model.EmailDocument {
	return model.EmailDocument{
		ID:      "abc123",
		Account: "user@example.com",
		Folder:  "INBOX",
		Subject: "Re: demo call",
		Labels:  model.EmailLabels{AI: model.LabelInterested},
	}
}

func TestNewServiceReturnsNoopWhenUnconfigured(t *testing.T) {
	svc := notify.NewService(model.NotifyConfig{})
	if err := svc.NotifyInterested(context.Background(), interestedDoc()); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNotifyInterestedDeliversBothSinks(t *testing.T) {
	var slackBody, webhookBody []byte

	slack := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("slack: unexpected method %s", r.Method)
		}
		slackBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer slack.Close()

	webhook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("webhook: content type = %q", ct)
		}
		webhookBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer webhook.Close()

	svc := notify.NewService(model.NotifyConfig{
		SlackWebhookURL: slack.URL,
		WebhookURL:      webhook.URL,
	})

	if err := svc.NotifyInterested(context.Background(), interestedDoc()); err != nil {
		t.Fatalf("NotifyInterested returned error: %v", err)
	}

	var slackMsg struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(slackBody, &slackMsg); err != nil {
		t.Fatalf("decoding slack body: %v", err)
	}
	if slackMsg.Text == "" {
		t.Error("slack message text is empty")
	}

	var payload struct {
		ID      string `json:"id"`
		Subject string `json:"subject"`
		Label   string `json:"label"`
	}
	if err := json.Unmarshal(webhookBody, &payload); err != nil {
		t.Fatalf("decoding webhook body: %v", err)
	}
	if payload.ID != "abc123" || payload.Subject != "Re: demo call" || payload.Label != "Interested" {
		t.Errorf("webhook payload = %+v", payload)
	}
}

func TestNotifyInterestedSinksAreIndependent(t *testing.T) {
	// The chat sink fails; the webhook must still receive its call.
	slack := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such channel", http.StatusNotFound)
	}))
	defer slack.Close()

	webhookCalls := 0
	webhook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		webhookCalls++
		w.WriteHeader(http.StatusOK)
	}))
	defer webhook.Close()

	svc := notify.NewService(model.NotifyConfig{
		SlackWebhookURL: slack.URL,
		WebhookURL:      webhook.URL,
	})

	err := svc.NotifyInterested(context.Background(), interestedDoc())
	if err == nil {
		t.Error("expected an error reporting the failed chat delivery")
	}
	if webhookCalls != 1 {
		t.Errorf("webhook calls = %d, want 1 despite chat failure", webhookCalls)
	}
}

func TestNotifyInterestedSkipsUnconfiguredSink(t *testing.T) {
	webhookCalls := 0
	webhook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		webhookCalls++
		w.WriteHeader(http.StatusOK)
	}))
	defer webhook.Close()

	svc := notify.NewService(model.NotifyConfig{WebhookURL: webhook.URL})

	if err := svc.NotifyInterested(context.Background(), interestedDoc()); err != nil {
		t.Fatalf("NotifyInterested returned error: %v", err)
	}
	if webhookCalls != 1 {
		t.Errorf("webhook calls = %d, want 1", webhookCalls)
	}
}
