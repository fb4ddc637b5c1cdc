package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Webhook posts messages as JSON to an HTTP endpoint.
type Webhook struct {
	url   string
	token string
	http  *http.Client
}

func NewWebhook(url, token string, client *http.Client) *Webhook {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &Webhook{
		url:   strings.TrimSpace(url),
		token: strings.TrimSpace(token),
		http:  client,
	}
}

func (w *Webhook) ProviderID() string { return "webhook" }

func (w *Webhook) Send(ctx context.Context, msg Message) error {
	if w.url == "" {
		return errors.New("notify webhook url not configured")
	}
	raw, err := json.Marshal(map[string]string{
		"to":      msg.To,
		"subject": msg.Subject,
		"body":    msg.Body,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if w.token != "" {
		req.Header.Set("Authorization", "Bearer "+w.token)
	}
	resp, err := w.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notify webhook returned %d", resp.StatusCode)
	}
	return nil
}
