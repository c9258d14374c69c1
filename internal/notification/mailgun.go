package notification

import (
	"context"
	"errors"
	"fmt"

	"github.com/mailgun/mailgun-go/v4"
	"github.com/rs/zerolog/log"
)

// MailgunNotifier sends plain text emails from a fixed sender identity
type MailgunNotifier struct {
	mg     mailgun.Mailgun
	sender string
}

// NewMailgunNotifier creates a notifier for the given sending domain
func NewMailgunNotifier(domain, apiKey, sender string) (*MailgunNotifier, error) {
	if domain == "" || apiKey == "" {
		return nil, errors.New("mailgun domain and api key are required")
	}
	if sender == "" {
		return nil, errors.New("sender is empty")
	}

	return &MailgunNotifier{
		mg:     mailgun.NewMailgun(domain, apiKey),
		sender: sender,
	}, nil
}

// SetAPIBase points the client to another API endpoint, e.g. the EU region
func (n *MailgunNotifier) SetAPIBase(url string) {
	n.mg.SetAPIBase(url)
}

// Send delivers one email
func (n *MailgunNotifier) Send(ctx context.Context, recipient, subject, body string) error {
	message := n.mg.NewMessage(n.sender, subject, body, recipient)

	_, id, err := n.mg.Send(ctx, message)
	if err != nil {
		return fmt.Errorf("failed to send email to %s: %w", recipient, err)
	}

	log.Debug().Str("recipient", recipient).Str("id", id).Str("subject", subject).Msg("Email sent successfully")
	return nil
}
