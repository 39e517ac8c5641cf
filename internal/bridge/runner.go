// Package bridge orchestrates sync runs: listing source notes,
// converting stale ones, writing vault output, and pushing tasks.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tkoster/inkbridge/internal/extract"
	"github.com/tkoster/inkbridge/internal/notify"
	"github.com/tkoster/inkbridge/internal/registry"
	"github.com/tkoster/inkbridge/internal/source"
	"github.com/tkoster/inkbridge/internal/task"
	"github.com/tkoster/inkbridge/internal/todo"
	"github.com/tkoster/inkbridge/internal/transform"
	"github.com/tkoster/inkbridge/internal/vault"
)

// Store is the slice of the task registry a run needs.
type Store interface {
	UpsertTasks(tasks []task.Task) error
	PendingForProvider(provider string) ([]task.Task, error)
	RecordResult(res registry.SyncResult) error
	MarkSkippedLocal(localIDs []string, provider string) error
	SaveRunSummary(sum registry.RunSummary) error
	TaskCountsFor(bridge string) (registry.TaskCounts, error)
}

// ImageExporter renders a note's pages as images into a directory.
type ImageExporter interface {
	ExportImages(ctx context.Context, srcPath, destDir string) ([]string, error)
}

// Bridge bundles everything one source-to-vault mapping needs.
type Bridge struct {
	Name         string
	SourcePath   string
	VaultPath    string
	VaultName    string
	Tags         []string
	Aggressive   bool
	ExportImages bool
	NotifyPolicy string

	Vault     vault.Provider
	Todo      todo.Provider
	Extractor func(srcPath string) extract.Extractor
	Images    ImageExporter
	Notifiers []notify.Provider
	Health    *notify.Healthcheck
}

// Runner executes sync runs across a set of bridges.
type Runner struct {
	Store     Store
	Bridges   []Bridge
	BridgePar int // concurrent bridges
	NotePar   int // concurrent notes within one bridge
	DryRun    bool
}

// Run syncs every bridge (or just the named one when only != ""). Each
// bridge produces a summary even when it aborts partway; the returned
// error aggregates per-bridge failures.
func (r *Runner) Run(ctx context.Context, only string) ([]registry.RunSummary, error) {
	bridges := r.Bridges
	if only != "" {
		bridges = nil
		for _, b := range r.Bridges {
			if b.Name == only {
				bridges = append(bridges, b)
			}
		}
		if len(bridges) == 0 {
			return nil, fmt.Errorf("unknown bridge %q", only)
		}
	}

	summaries := make([]registry.RunSummary, len(bridges))

	par := r.BridgePar
	if par < 1 {
		par = 1
	}
	// Failures are collected per bridge instead of flowing through the
	// group, so one bridge's bad source or vault never cancels the
	// others mid-run.
	g := new(errgroup.Group)
	g.SetLimit(par)
	errs := make([]error, len(bridges))
	for i, b := range bridges {
		g.Go(func() error {
			sum, err := r.runBridge(ctx, b)
			summaries[i] = sum
			if err != nil {
				errs[i] = fmt.Errorf("bridge %s: %w", b.Name, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return summaries, errors.Join(errs...)
}

// noteCounts accumulates per-note outcomes under one lock.
type noteCounts struct {
	mu          sync.Mutex
	converted   int
	skipped     int
	noText      int
	toolMissing int
	toolFailed  int
	tasks       []task.Task
}

func (r *Runner) runBridge(ctx context.Context, b Bridge) (registry.RunSummary, error) {
	start := time.Now()
	log := slog.With("bridge", b.Name)
	b.Health.Start(ctx)

	sum := registry.RunSummary{Bridge: b.Name, FinishedAt: start}

	notes, err := source.ListNotes(b.Name, b.SourcePath)
	if errors.Is(err, fs.ErrNotExist) {
		log.Error("source path missing", "path", b.SourcePath)
		sum.SourceMissing = true
		return sum, r.finish(ctx, b, sum, fmt.Errorf("source path %s does not exist", b.SourcePath))
	}
	if err != nil {
		return sum, r.finish(ctx, b, sum, fmt.Errorf("listing notes: %w", err))
	}
	sum.NotesFound = len(notes)

	if info, err := os.Stat(b.VaultPath); err != nil || !info.IsDir() {
		log.Error("vault path missing", "path", b.VaultPath)
		sum.VaultMissing = true
		return sum, r.finish(ctx, b, sum, fmt.Errorf("vault path %s does not exist", b.VaultPath))
	}

	reps, err := b.Vault.LoadReplacements()
	if err != nil {
		log.Warn("loading replacements failed, continuing without", "error", err)
		reps = nil
	}

	var counts noteCounts
	notePar := r.NotePar
	if notePar < 1 {
		notePar = 1
	}
	ng, nctx := errgroup.WithContext(ctx)
	ng.SetLimit(notePar)
	for _, n := range notes {
		ng.Go(func() error {
			r.processNote(nctx, b, n, reps, &counts)
			return nctx.Err()
		})
	}
	runErr := ng.Wait()

	sum.Converted = counts.converted
	sum.Skipped = counts.skipped
	sum.NoText = counts.noText
	sum.ToolMissing = counts.toolMissing
	sum.ToolFailed = counts.toolFailed

	if !r.DryRun {
		if err := r.syncTasks(ctx, b, counts.tasks); err != nil {
			log.Error("task sync failed", "error", err)
			if runErr == nil {
				runErr = err
			}
		}
		if tc, err := r.Store.TaskCountsFor(b.Name); err == nil {
			sum.TasksTotal = tc.Total
			sum.TasksOpen = tc.Open
			sum.TasksCompleted = tc.Completed
		}
	}

	sum.FinishedAt = time.Now()
	log.Info("bridge run finished",
		"notes", sum.NotesFound, "converted", sum.Converted,
		"skipped", sum.Skipped, "no_text", sum.NoText,
		"duration", time.Since(start))
	return sum, r.finish(ctx, b, sum, runErr)
}

// finish persists the summary and fires status artifacts and
// notifications. It runs on every exit path, aborted runs included, so
// observers always see the last outcome.
func (r *Runner) finish(ctx context.Context, b Bridge, sum registry.RunSummary, runErr error) error {
	if sum.FinishedAt.IsZero() {
		sum.FinishedAt = time.Now()
	}
	log := slog.With("bridge", b.Name)

	if !r.DryRun {
		if err := r.Store.SaveRunSummary(sum); err != nil {
			log.Error("saving run summary failed", "error", err)
		}
		if !sum.VaultMissing {
			if err := b.Vault.WriteStatusNote(sum); err != nil {
				log.Warn("writing status note failed", "error", err)
			}
		}
		if notify.ShouldNotify(b.NotifyPolicy, sum) {
			payload := notify.FromSummary(sum)
			for _, n := range b.Notifiers {
				if err := n.Notify(ctx, payload); err != nil {
					log.Warn("notification failed", "provider", n.Name(), "error", err)
				}
			}
		}
	}

	if runErr != nil || sum.HasErrors() {
		b.Health.Fail(ctx)
	} else {
		b.Health.Success(ctx)
	}
	return runErr
}

func (r *Runner) processNote(ctx context.Context, b Bridge, n source.Note, reps []transform.Replacement, counts *noteCounts) {
	log := slog.With("bridge", b.Name, "note", n.RelPath)

	mdRel := source.MarkdownRelPath(n.RelPath)
	destPath := filepath.Join(b.VaultPath, filepath.FromSlash(mdRel))
	if !source.Stale(n, destPath) {
		counts.mu.Lock()
		counts.skipped++
		counts.mu.Unlock()
		return
	}

	raw, err := b.Extractor(n.Path).Extract(ctx, n.Path)
	if err != nil {
		counts.mu.Lock()
		switch {
		case errors.Is(err, extract.ErrToolMissing):
			counts.toolMissing++
		case errors.Is(err, extract.ErrNoText):
			counts.noText++
		case errors.Is(err, extract.ErrToolFailed):
			counts.toolFailed++
		}
		counts.mu.Unlock()
		if !errors.Is(err, context.Canceled) {
			log.Warn("extraction failed", "error", err)
		}
		return
	}

	md := transform.ToMarkdown(raw, transform.Options{AggressiveCleanup: b.Aggressive})
	md = transform.ApplyReplacements(md, reps)

	if b.ExportImages && b.Images != nil && !r.DryRun {
		if section := r.exportImages(ctx, b, n, mdRel); section != "" {
			md += section
		}
	}

	tasks := task.Extract(md, b.Name, b.VaultName, mdRel)

	if r.DryRun {
		log.Info("would convert note", "dest", mdRel, "tasks", len(tasks))
		counts.mu.Lock()
		counts.converted++
		counts.tasks = append(counts.tasks, tasks...)
		counts.mu.Unlock()
		return
	}

	// Title comes from the first content line; the file name stem is
	// the fallback when the note yields nothing usable.
	title := vault.DeriveTitle(md)
	if title == "Untitled" {
		title = vault.SanitizeTitle(strings.TrimSuffix(filepath.Base(n.RelPath), filepath.Ext(n.RelPath)))
	}

	meta := vault.Metadata{
		Title:      title,
		Tags:       append([]string{"inkbridge"}, b.Tags...),
		SourceFile: n.RelPath,
		CreatedAt:  time.Now(),
	}
	if _, err := b.Vault.WriteNote(md, meta, mdRel); err != nil {
		log.Error("writing note failed", "error", err)
		counts.mu.Lock()
		counts.toolFailed++
		counts.mu.Unlock()
		return
	}

	log.Info("converted note", "dest", mdRel, "tasks", len(tasks))
	counts.mu.Lock()
	counts.converted++
	counts.tasks = append(counts.tasks, tasks...)
	counts.mu.Unlock()
}

// exportImages renders page images next to the note and returns a
// markdown section linking them, or "" when nothing was exported.
func (r *Runner) exportImages(ctx context.Context, b Bridge, n source.Note, mdRel string) string {
	base := strings.TrimSuffix(filepath.Base(mdRel), ".md")
	imgRel := filepath.Join(filepath.Dir(filepath.FromSlash(mdRel)), base+"-img")
	destDir := filepath.Join(b.VaultPath, imgRel)

	files, err := b.Images.ExportImages(ctx, n.Path, destDir)
	if err != nil {
		slog.Warn("image export failed", "bridge", b.Name, "note", n.RelPath, "error", err)
		return ""
	}
	if len(files) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("\n## Sketches\n\n")
	for _, f := range files {
		rel := filepath.ToSlash(filepath.Join(imgRel, filepath.Base(f)))
		fmt.Fprintf(&sb, "![](%s)\n", rel)
	}
	return sb.String()
}

// syncTasks records this run's tasks and pushes eligible ones to the
// bridge's provider. Completed tasks are settled locally so they never
// reach the tracker; each submission outcome is recorded immediately,
// which is what keeps delivery at-most-once across interrupted runs.
func (r *Runner) syncTasks(ctx context.Context, b Bridge, tasks []task.Task) error {
	if err := r.Store.UpsertTasks(tasks); err != nil {
		return fmt.Errorf("registering tasks: %w", err)
	}

	provider := b.Todo
	if provider == nil {
		provider = todo.Noop{}
	}

	var completed []string
	for _, t := range tasks {
		if t.Completed {
			completed = append(completed, t.LocalID)
		}
	}
	if len(completed) > 0 {
		if err := r.Store.MarkSkippedLocal(completed, provider.Name()); err != nil {
			return fmt.Errorf("settling completed tasks: %w", err)
		}
	}

	pending, err := r.Store.PendingForProvider(provider.Name())
	if err != nil {
		return fmt.Errorf("listing pending tasks: %w", err)
	}
	var mine []task.Task
	for _, t := range pending {
		if t.Bridge == b.Name {
			mine = append(mine, t)
		}
	}
	if len(mine) == 0 {
		return nil
	}

	tc := todo.TodoContext{
		Bridge:    b.Name,
		VaultName: b.VaultName,
		VaultPath: b.VaultPath,
		NoteURL:   b.Vault.NoteURL,
	}
	results := provider.SyncTasks(ctx, mine, tc)
	for _, res := range results {
		if err := r.Store.RecordResult(res); err != nil {
			return fmt.Errorf("recording sync result: %w", err)
		}
	}
	slog.Info("task sync finished", "bridge", b.Name,
		"provider", provider.Name(), "submitted", len(results))
	return nil
}
