package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const webhookTimeout = 10 * time.Second

// Webhook POSTs the run payload as JSON to a configured URL. An
// optional topic is carried in a header for fan-out services.
type Webhook struct {
	URL    string
	Topic  string
	Client *http.Client
}

func NewWebhook(url, topic string) *Webhook {
	return &Webhook{
		URL:    url,
		Topic:  topic,
		Client: &http.Client{Timeout: webhookTimeout},
	}
}

func (w *Webhook) Name() string { return "webhook" }

func (w *Webhook) Notify(ctx context.Context, p Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if w.Topic != "" {
		req.Header.Set("X-Inkbridge-Topic", w.Topic)
	}

	resp, err := w.Client.Do(req)
	if err != nil {
		return fmt.Errorf("posting notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return nil
}
