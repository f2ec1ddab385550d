package action

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

var (
	ErrKeyMissing           = errors.New("action: sendgrid api key is not set")
	ErrInvalidMailSender    = errors.New("action: invalid mail sender")
	ErrInvalidMailRecipient = errors.New("action: invalid mail recipient")
)

// EmailConfig configures the SendGrid alert.
type EmailConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	SendgridAPIKey string `mapstructure:"sendgrid_api_key"`
	From           string `mapstructure:"from"`
	To             string `mapstructure:"to"`
}

func (c EmailConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.SendgridAPIKey == "" {
		return ErrKeyMissing
	}
	if c.From == "" {
		return ErrInvalidMailSender
	}
	if c.To == "" {
		return ErrInvalidMailRecipient
	}
	return nil
}

// Email sends the event through SendGrid.
type Email struct {
	cfg     EmailConfig
	baseURL string // overrides the SendGrid endpoint, tests only
}

func NewEmail(cfg EmailConfig) (*Email, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Email{cfg: cfg}, nil
}

func (e *Email) Name() string {
	return "email"
}

func (e *Email) Run(ctx context.Context, ev Event) error {
	from := mail.NewEmail("bridgemon", e.cfg.From)
	to := mail.NewEmail(e.cfg.To, e.cfg.To)
	subject := "[bridgemon] " + Summary(ev)

	body := fmt.Sprintf(
		"<p>The bridge health check at <code>%s</code> failed <b>%d</b> consecutive times.</p>"+
			"<p>Last reason: <b>%s</b></p><p>Run: %s</p>",
		html.EscapeString(ev.URL), ev.Failures, html.EscapeString(ev.Reason), html.EscapeString(ev.RunID),
	)

	message := mail.NewSingleEmail(from, subject, to, Summary(ev), body)
	client := sendgrid.NewSendClient(e.cfg.SendgridAPIKey)
	if e.baseURL != "" {
		client.BaseURL = e.baseURL
	}

	resp, err := client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("action email: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("action email: sendgrid status %d: %s", resp.StatusCode, resp.Body)
	}

	slog.Debug("alert email sent", "to", e.cfg.To, "status", resp.StatusCode, "messageId", resp.Headers["X-Message-Id"])
	return nil
}
