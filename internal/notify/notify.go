// Package notify reports bridge run outcomes to external channels.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/tkoster/inkbridge/internal/registry"
)

// Notification policies. The policy decides which run outcomes are
// delivered; providers decide where they go.
const (
	PolicyErrors = "errors"
	PolicyAll    = "all"
	PolicyNone   = "none"
)

// Payload is the wire shape of a run notification.
type Payload struct {
	Bridge           string `json:"bridge"`
	Timestamp        string `json:"timestamp"`
	NotesFound       int    `json:"notes_found"`
	Converted        int    `json:"converted"`
	Skipped          int    `json:"skipped"`
	NoText           int    `json:"no_text"`
	ToolMissing      int    `json:"tool_missing"`
	ToolFailed       int    `json:"tool_failed"`
	SupernoteMissing bool   `json:"supernote_missing"`
	VaultMissing     bool   `json:"vault_missing"`

	// Display fields for push-style consumers.
	Title   string `json:"title"`
	Message string `json:"message"`
}

// Provider delivers one payload to one channel.
type Provider interface {
	Name() string
	Notify(ctx context.Context, p Payload) error
}

// FromSummary flattens a stored run summary into the notification shape.
func FromSummary(sum registry.RunSummary) Payload {
	title := fmt.Sprintf("Inkbridge: %s synced", sum.Bridge)
	if sum.HasErrors() {
		title = fmt.Sprintf("Inkbridge: %s sync had errors", sum.Bridge)
	}
	return Payload{
		Bridge:           sum.Bridge,
		Timestamp:        sum.FinishedAt.Format(time.RFC3339),
		NotesFound:       sum.NotesFound,
		Converted:        sum.Converted,
		Skipped:          sum.Skipped,
		NoText:           sum.NoText,
		ToolMissing:      sum.ToolMissing,
		ToolFailed:       sum.ToolFailed,
		SupernoteMissing: sum.SourceMissing,
		VaultMissing:     sum.VaultMissing,
		Title:            title,
		Message: fmt.Sprintf("%d notes, %d converted, %d skipped",
			sum.NotesFound, sum.Converted, sum.Skipped),
	}
}

// ShouldNotify applies the configured policy to a run outcome. Unknown
// policies behave like "errors", the default.
func ShouldNotify(policy string, sum registry.RunSummary) bool {
	switch policy {
	case PolicyNone:
		return false
	case PolicyAll:
		return true
	default:
		return sum.HasErrors()
	}
}
