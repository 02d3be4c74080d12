package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	aerrors "github.com/botsarefuture/hetzner-firewall/app/errors"
)

// Webhook posts notifications as JSON to a configured HTTP endpoint.
type Webhook struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

var _ Notifier = (*Webhook)(nil)

// NewWebhook returns a new Webhook notifier posting to the given URL.
func NewWebhook(url string, timeout time.Duration, logger *slog.Logger) *Webhook {
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger.With("component", "webhook-notifier"),
	}
}

type webhookPayload struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// Notify implements the Notifier interface.
func (w *Webhook) Notify(ctx context.Context, subject, body string) error {
	errFields := []any{"url", w.url, "method", http.MethodPost}

	payload, err := json.Marshal(webhookPayload{Title: subject, Message: body})
	if err != nil {
		return aerrors.Wrap(aerrors.KindNetwork, "failed marshalling webhook payload", err, errFields...)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return aerrors.Wrap(aerrors.KindNetwork, "failed creating webhook request", err, errFields...)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return aerrors.Wrap(aerrors.KindNetwork, "failed sending webhook", err, errFields...)
	}
	defer resp.Body.Close() //nolint:errcheck // Response body is ignored.

	if resp.StatusCode >= 400 {
		return aerrors.New(aerrors.KindNetwork, "webhook request failed",
			append(errFields, "status_code", resp.StatusCode)...)
	}

	w.logger.Debug("sent webhook notification", "subject", subject)

	return nil
}
