package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/notifyhub/pantry-pipeline/internal/domain"
)

// WebhookProvider pushes notifications by POSTing them as JSON to a fixed URL.
// The URL is injected from config so tests can point to a local server.
type WebhookProvider struct {
	url        string
	httpClient *http.Client
}

func NewWebhookProvider(url string, timeout time.Duration) *WebhookProvider {
	return &WebhookProvider{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Push posts n and accepts any 2xx response.
func (p *WebhookProvider) Push(ctx context.Context, n *domain.Notification) error {
	body, err := json.Marshal(newPushRequest(n))
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Notification-ID", n.ID)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected webhook status: %d", resp.StatusCode)
	}
	return nil
}

func newPushRequest(n *domain.Notification) PushRequest {
	r := PushRequest{
		NotificationID: n.ID,
		UserID:         n.OwnerID,
		Kind:           string(n.Kind),
		Title:          n.Title,
		Message:        n.Message,
		CreatedAt:      n.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if n.ItemID != nil {
		r.ItemID = *n.ItemID
	}
	if n.ReminderID != nil {
		r.ReminderID = *n.ReminderID
	}
	if n.ReminderDate != nil {
		r.ReminderDate = n.ReminderDate.UTC().Format(time.RFC3339Nano)
	}
	return r
}

// compile-time check that WebhookProvider implements Notifier
var _ Notifier = (*WebhookProvider)(nil)
