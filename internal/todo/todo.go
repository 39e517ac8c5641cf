// Package todo pushes extracted tasks to external task trackers.
package todo

import (
	"context"
	"log/slog"

	"github.com/tkoster/inkbridge/internal/registry"
	"github.com/tkoster/inkbridge/internal/task"
)

// TodoContext carries per-bridge information providers embed into the
// created task (deep links, vault identity).
type TodoContext struct {
	Bridge    string
	VaultName string
	VaultPath string
	// NoteURL resolves a note path (without extension) to a deep link.
	NoteURL func(relPathNoExt string) string
}

// Provider submits open tasks to one external tracker. SyncTasks never
// returns an error: each task's outcome is reported individually so a
// single failed submission does not abort the rest of the batch.
type Provider interface {
	Name() string
	SyncTasks(ctx context.Context, tasks []task.Task, tc TodoContext) []registry.SyncResult
}

// Noop accepts every task and records it as skipped. It is the default
// provider and the fallback for unknown configuration values.
type Noop struct{}

func (Noop) Name() string { return "noop" }

func (Noop) SyncTasks(_ context.Context, tasks []task.Task, _ TodoContext) []registry.SyncResult {
	results := make([]registry.SyncResult, 0, len(tasks))
	for _, t := range tasks {
		results = append(results, registry.SyncResult{
			LocalID:  t.LocalID,
			Provider: "noop",
			Status:   registry.StatusSkipped,
		})
	}
	return results
}

// Options configures provider construction from loaded configuration.
type Options struct {
	Kind string

	TodoistToken   string
	TodoistProject string

	NotionToken    string
	NotionDatabase string
}

// FromConfig builds the configured provider. Missing credentials or an
// unknown kind degrade to Noop rather than failing the run.
func FromConfig(opts Options) Provider {
	switch opts.Kind {
	case "todoist":
		if opts.TodoistToken == "" {
			slog.Warn("todoist provider configured without a token, using noop")
			return Noop{}
		}
		return NewTodoist(opts.TodoistToken, opts.TodoistProject)
	case "notion":
		if opts.NotionToken == "" || opts.NotionDatabase == "" {
			slog.Warn("notion provider configured without token or database, using noop")
			return Noop{}
		}
		return NewNotion(opts.NotionToken, opts.NotionDatabase)
	case "", "noop":
		return Noop{}
	default:
		slog.Warn("unknown todo provider, using noop", "kind", opts.Kind)
		return Noop{}
	}
}
