// Package notify delivers best-effort alerts for interested emails to the
// configured chat and webhook sinks.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nhle/onebox/internal/model"
)

const userAgent = "onebox/0.1.0"

// Service is the notification surface exposed to the pipeline.
type Service interface {
	// NotifyInterested fires the chat and webhook deliveries for an
	// interested email. The two calls are independent: failure of one
	// does not block or retract the other, and neither is retried.
	NotifyInterested(ctx context.Context, doc model.EmailDocument) error
}

// NewService builds a notification service from the notify configuration.
// Sinks without a configured URL are skipped; with neither configured a
// noop implementation is returned.
func NewService(cfg model.NotifyConfig) Service {
	slackURL := strings.TrimSpace(cfg.SlackWebhookURL)
	webhookURL := strings.TrimSpace(cfg.WebhookURL)
	if slackURL == "" && webhookURL == "" {
		return noopService{}
	}

	return &webhookService{
		slackURL:   slackURL,
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

type webhookService struct {
	slackURL   string
	webhookURL string
	client     *http.Client
}

// interestedPayload is the body delivered to the generic webhook sink.
type interestedPayload struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	Label   string `json:"label"`
}

// slackMessage is the body delivered to the Slack incoming webhook.
type slackMessage struct {
	Text string `json:"text"`
}

func (s *webhookService) NotifyInterested(ctx context.Context, doc model.EmailDocument) error {
	var errs []error

	if s.slackURL != "" {
		msg := slackMessage{
			Text: fmt.Sprintf("📬 Interested lead: %s", doc.Subject),
		}
		if err := s.post(ctx, s.slackURL, msg); err != nil {
			errs = append(errs, fmt.Errorf("chat notification: %w", err))
		}
	}

	if s.webhookURL != "" {
		payload := interestedPayload{
			ID:      doc.ID,
			Subject: doc.Subject,
			Label:   string(doc.Labels.AI),
		}
		if err := s.post(ctx, s.webhookURL, payload); err != nil {
			errs = append(errs, fmt.Errorf("webhook notification: %w", err))
		}
	}

	return errors.Join(errs...)
}

func (s *webhookService) post(ctx context.Context, url string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("sink returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyInterested(context.Context, model.EmailDocument) error { return nil }
