package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Healthcheck pings a dead-man's-switch monitor (healthchecks.io
// style): /start when a run begins, the base URL on success, /fail on
// error. Ping failures are logged and swallowed: monitoring must never
// break a run.
type Healthcheck struct {
	URL    string
	Client *http.Client
}

func NewHealthcheck(url string) *Healthcheck {
	return &Healthcheck{
		URL:    url,
		Client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (h *Healthcheck) enabled() bool { return h != nil && h.URL != "" }

func (h *Healthcheck) Start(ctx context.Context) {
	if h.enabled() {
		h.ping(ctx, h.URL+"/start")
	}
}

func (h *Healthcheck) Success(ctx context.Context) {
	if h.enabled() {
		h.ping(ctx, h.URL)
	}
}

func (h *Healthcheck) Fail(ctx context.Context) {
	if h.enabled() {
		h.ping(ctx, h.URL+"/fail")
	}
}

func (h *Healthcheck) ping(ctx context.Context, url string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		slog.Warn("healthcheck ping failed", "url", url, "error", err)
		return
	}
	resp, err := h.Client.Do(req)
	if err != nil {
		slog.Warn("healthcheck ping failed", "url", url, "error", err)
		return
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		slog.Warn("healthcheck ping rejected", "url", url, "error", fmt.Sprintf("status %d", resp.StatusCode))
	}
}
