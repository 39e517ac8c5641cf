package vault

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tkoster/inkbridge/internal/registry"
	"github.com/tkoster/inkbridge/internal/transform"
)

// Obsidian writes notes with YAML frontmatter and obsidian:// deep
// links. Status and replacement notes live under <vault>/Inkbridge/.
type Obsidian struct {
	Bridge    string
	VaultPath string
	VaultName string
}

// NewObsidian builds a provider for one bridge's vault. The vault name
// (used in deep links) is the vault directory's base name.
func NewObsidian(bridge, vaultPath string) *Obsidian {
	return &Obsidian{
		Bridge:    bridge,
		VaultPath: vaultPath,
		VaultName: filepath.Base(vaultPath),
	}
}

func (o *Obsidian) Name() string { return "obsidian" }

func (o *Obsidian) WriteNote(content string, meta Metadata, relPath string) (string, error) {
	dest := filepath.Join(o.VaultPath, filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("creating note directory: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("---\n")
	fmt.Fprintf(&sb, "title: %q\n", meta.Title)
	fmt.Fprintf(&sb, "date: %q\n", meta.CreatedAt.Format("2006-01-02T15:04:05"))
	fmt.Fprintf(&sb, "source_note: %q\n", meta.SourceFile)
	if len(meta.Tags) > 0 {
		fmt.Fprintf(&sb, "tags: [%s]\n", strings.Join(meta.Tags, ", "))
	}
	sb.WriteString("---\n\n")
	sb.WriteString(content)

	if err := os.WriteFile(dest, []byte(sb.String()), 0o644); err != nil {
		return "", fmt.Errorf("writing note: %w", err)
	}
	return dest, nil
}

func (o *Obsidian) WriteStatusNote(sum registry.RunSummary) error {
	dir := filepath.Join(o.VaultPath, ReservedDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating reserved directory: %w", err)
	}
	o.ensureReplacementsTemplate()

	lines := []string{
		fmt.Sprintf("# Inkbridge Status - %s", o.Bridge),
		"",
		fmt.Sprintf("- Last run: %s", sum.FinishedAt.Format("2006-01-02T15:04:05")),
		fmt.Sprintf("- Vault path: `%s`", o.VaultPath),
		"",
		"## Summary",
		fmt.Sprintf("- Notes found: %d", sum.NotesFound),
		fmt.Sprintf("- Converted this run: %d", sum.Converted),
		fmt.Sprintf("- Skipped (up-to-date): %d", sum.Skipped),
		fmt.Sprintf("- No text extracted: %d", sum.NoText),
		fmt.Sprintf("- Tasks: %d total, %d open, %d completed", sum.TasksTotal, sum.TasksOpen, sum.TasksCompleted),
	}

	var errs []string
	if sum.SourceMissing {
		errs = append(errs, "Source path did not exist at last run.")
	}
	if sum.ToolMissing > 0 {
		errs = append(errs, fmt.Sprintf("Recognition tool missing for %d note(s).", sum.ToolMissing))
	}
	if sum.ToolFailed > 0 {
		errs = append(errs, fmt.Sprintf("Recognition tool failed for %d note(s).", sum.ToolFailed))
	}
	if sum.NoText > 0 && sum.ToolMissing == 0 && sum.ToolFailed == 0 {
		errs = append(errs, fmt.Sprintf("No text extracted for %d note(s).", sum.NoText))
	}
	if len(errs) > 0 {
		lines = append(lines, "", "## Errors")
		for _, e := range errs {
			lines = append(lines, "- "+e)
		}
	}

	path := filepath.Join(dir, fmt.Sprintf("Status - %s.md", o.Bridge))
	return os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644)
}

func (o *Obsidian) NoteURL(relPathNoExt string) string {
	return fmt.Sprintf("obsidian://open?vault=%s&file=%s",
		url.PathEscape(o.VaultName), url.PathEscape(relPathNoExt))
}

func (o *Obsidian) replacementsPath() string {
	return filepath.Join(o.VaultPath, ReservedDir, fmt.Sprintf("Replacements - %s.md", o.Bridge))
}

func (o *Obsidian) LoadReplacements() ([]transform.Replacement, error) {
	data, err := os.ReadFile(o.replacementsPath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return transform.ParseReplacements(string(data)), nil
}

func (o *Obsidian) ModifiedTime(relPath string) (time.Time, bool) {
	info, err := os.Stat(filepath.Join(o.VaultPath, filepath.FromSlash(relPath)))
	if err != nil {
		return time.Time{}, false
	}
	return info.ModTime(), true
}

func (o *Obsidian) ensureReplacementsTemplate() {
	path := o.replacementsPath()
	if _, err := os.Stat(path); err == nil {
		return
	}

	lines := []string{
		fmt.Sprintf("# Inkbridge Replacements - %s", o.Bridge),
		"",
		"# Define whole-word replacements for this vault/bridge.",
		"# Each non-empty line should look like:",
		"#   wrong -> right",
		"# You can optionally prefix with '-', '*', or numbers if you prefer list syntax.",
		"# Lines starting with '#' are treated as comments and ignored.",
		"# Example:",
		"# - Gaurdrail -> Guardrail",
		"# teh -> the",
		"",
	}
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		slog.Warn("failed to create replacements template", "bridge", o.Bridge, "path", path, "error", err)
		return
	}
	slog.Info("created replacements template", "bridge", o.Bridge, "path", path)
}
