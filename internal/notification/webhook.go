package notification

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/blankon/submission-relay/pkg/httputil"
)

// WebhookPayload represents the notification payload sent to webhook
type WebhookPayload struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// BatchSummary contains the counters reported to operators after a batch
type BatchSummary struct {
	Records   int
	Succeeded int
	Failed    []string // one "email: state" line per failed record
}

var webhookClient = &http.Client{
	Timeout: 10 * time.Second,
}

// SendWebhook sends a notification to the configured webhook URL
func SendWebhook(ctx context.Context, webhookURL, title, message string) error {
	if webhookURL == "" {
		log.Debug().Msg("Notification webhook URL not configured, skipping notification")
		return nil
	}

	err := httputil.PostJSON(ctx, webhookClient, webhookURL, WebhookPayload{
		Title:   title,
		Message: message,
	})
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}

	log.Debug().Str("title", title).Msg("Notification sent successfully")
	return nil
}

// FormatBatchSummary renders the webhook title and message for a batch
func FormatBatchSummary(summary BatchSummary) (title, message string) {
	status := "SUCCESS"
	emoji := "✅"
	if len(summary.Failed) > 0 {
		status = "PARTIAL"
		emoji = "⚠️"
		if summary.Succeeded == 0 {
			status = "FAILED"
			emoji = "❌"
		}
	}

	title = fmt.Sprintf("Submission relay batch %s", status)
	message = fmt.Sprintf("📦 %d/%d submissions relayed %s", summary.Succeeded, summary.Records, emoji)
	if len(summary.Failed) > 0 {
		message += "\n" + strings.Join(summary.Failed, "\n")
	}
	return
}

// SendBatchSummary reports a processed batch to operators. Errors are only
// logged, the batch outcome never depends on the webhook.
func SendBatchSummary(ctx context.Context, webhookURL string, summary BatchSummary) {
	if summary.Records == 0 {
		return
	}

	title, message := FormatBatchSummary(summary)
	log.Info().Str("title", title).Msg(message)

	if err := SendWebhook(ctx, webhookURL, title, message); err != nil {
		log.Error().Err(err).Msg("Failed to send batch notification")
	}
}
