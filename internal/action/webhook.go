package action

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/imroc/req/v3"
	"github.com/openmined/bridgemon/internal/version"
)

const DefaultWebhookTimeout = 10 * time.Second

var ErrNoWebhookURL = errors.New("action: webhook url missing")

// WebhookPayload is the JSON body posted to the webhook.
type WebhookPayload struct {
	Event
	Host    string `json:"host"`
	Text    string `json:"text"`
	Version string `json:"version"`
}

// Webhook posts the event as JSON, e.g. to a chat or incident endpoint.
type Webhook struct {
	client *req.Client
	url    string
}

func NewWebhook(url string, timeout time.Duration) (*Webhook, error) {
	if url == "" {
		return nil, ErrNoWebhookURL
	}
	if timeout <= 0 {
		timeout = DefaultWebhookTimeout
	}

	client := req.C().
		SetTimeout(timeout).
		SetUserAgent(version.UserAgent()).
		SetJsonMarshal(json.Marshal)

	return &Webhook{client: client, url: url}, nil
}

func (w *Webhook) Name() string {
	return "webhook"
}

func (w *Webhook) Run(ctx context.Context, ev Event) error {
	host, _ := os.Hostname()
	payload := WebhookPayload{
		Event:   ev,
		Host:    host,
		Text:    Summary(ev),
		Version: version.Version,
	}

	resp, err := w.client.R().
		SetContext(ctx).
		SetBodyJsonMarshal(payload).
		Post(w.url)
	if err != nil {
		return fmt.Errorf("action webhook: %w", err)
	}
	if resp.IsErrorState() {
		return fmt.Errorf("action webhook: unexpected status %s", resp.Status)
	}

	return nil
}

// Summary is the one-line human description used by webhook and email alerts.
func Summary(ev Event) string {
	return fmt.Sprintf("bridge %s: %s (%d consecutive failures) at %s",
		ev.Kind, ev.Reason, ev.Failures, ev.URL)
}
