package bridge

import (
	"path/filepath"

	"github.com/tkoster/inkbridge/internal/config"
	"github.com/tkoster/inkbridge/internal/extract"
	"github.com/tkoster/inkbridge/internal/notify"
	"github.com/tkoster/inkbridge/internal/todo"
	"github.com/tkoster/inkbridge/internal/vault"
)

// New assembles a Runner from loaded configuration: one Bridge per
// config entry with its vault writer, task provider, notifiers, and
// recognition-tool extractor.
func New(cfg config.Config, store Store, dryRun bool) *Runner {
	tool := &extract.ToolExtractor{Tool: cfg.Tool, Timeout: cfg.ToolTimeoutDuration()}

	bridges := make([]Bridge, 0, len(cfg.Bridges))
	for _, bc := range cfg.Bridges {
		if !bc.IsEnabled() {
			continue
		}
		b := Bridge{
			Name:         bc.Name,
			SourcePath:   bc.ResolvedSource(cfg.SourceRoot),
			VaultPath:    bc.VaultPath,
			VaultName:    filepath.Base(bc.VaultPath),
			Tags:         bc.Tags,
			Aggressive:   bc.Aggressive,
			ExportImages: bc.ExportImages,
			NotifyPolicy: bc.NotifyPolicy,

			Vault: vault.ForKind(bc.VaultKind, bc.Name, bc.VaultPath),
			Todo: todo.FromConfig(todo.Options{
				Kind:           bc.TodoProvider,
				TodoistToken:   bc.TodoistToken,
				TodoistProject: bc.TodoistProject,
				NotionToken:    bc.NotionToken,
				NotionDatabase: bc.NotionDatabase,
			}),
			Extractor: func(srcPath string) extract.Extractor {
				return extract.ForNote(tool, srcPath)
			},
			Images: tool,
		}

		b.Notifiers = append(b.Notifiers, notify.NewStatusFile(cfg.DataDir))
		if bc.WebhookURL != "" {
			b.Notifiers = append(b.Notifiers, notify.NewWebhook(bc.WebhookURL, bc.WebhookTopic))
		}
		if bc.HealthcheckURL != "" {
			b.Health = notify.NewHealthcheck(bc.HealthcheckURL)
		}

		bridges = append(bridges, b)
	}

	return &Runner{
		Store:     store,
		Bridges:   bridges,
		BridgePar: cfg.Parallelism,
		NotePar:   cfg.NotesPer,
		DryRun:    dryRun,
	}
}
