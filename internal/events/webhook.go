package events

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WebhookHandler POSTs each outbox entry's payload to a URL.
type WebhookHandler struct {
	url        string
	httpClient *http.Client
}

func NewWebhookHandler(url string, timeout time.Duration) *WebhookHandler {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookHandler{url: url, httpClient: &http.Client{Timeout: timeout}}
}

func (h *WebhookHandler) Handle(ctx context.Context, entry OutboxEntry) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(entry.Payload))
	if err != nil {
		return fmt.Errorf("events: build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", entry.Type)
	req.Header.Set("X-Event-ID", entry.ID.String())

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("events: webhook post: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("events: webhook returned %d", resp.StatusCode)
	}
	return nil
}
