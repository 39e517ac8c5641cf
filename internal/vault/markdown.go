package vault

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tkoster/inkbridge/internal/registry"
	"github.com/tkoster/inkbridge/internal/transform"
)

// replacementsFile is the dotfile a plain-markdown vault uses for
// whole-word corrections, since it has no app-managed notes folder.
const replacementsFile = ".inkbridge-replacements"

// PlainMarkdown writes bare Markdown files into a directory tree. It
// carries metadata in an HTML comment instead of frontmatter and links
// with file:// URLs.
type PlainMarkdown struct {
	Bridge    string
	VaultPath string
}

func NewPlainMarkdown(bridge, vaultPath string) *PlainMarkdown {
	return &PlainMarkdown{Bridge: bridge, VaultPath: vaultPath}
}

func (m *PlainMarkdown) Name() string { return "markdown" }

func (m *PlainMarkdown) WriteNote(content string, meta Metadata, relPath string) (string, error) {
	dest := filepath.Join(m.VaultPath, filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("creating note directory: %w", err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "<!-- source: %s | converted: %s -->\n\n",
		meta.SourceFile, meta.CreatedAt.Format("2006-01-02T15:04:05"))
	sb.WriteString(content)

	if err := os.WriteFile(dest, []byte(sb.String()), 0o644); err != nil {
		return "", fmt.Errorf("writing note: %w", err)
	}
	return dest, nil
}

func (m *PlainMarkdown) WriteStatusNote(sum registry.RunSummary) error {
	dir := filepath.Join(m.VaultPath, ReservedDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating reserved directory: %w", err)
	}

	body := fmt.Sprintf(
		"# Inkbridge Status - %s\n\n- Last run: %s\n- Notes found: %d\n- Converted: %d\n- Skipped: %d\n- No text: %d\n- Tasks: %d total, %d open, %d completed\n",
		m.Bridge, sum.FinishedAt.Format("2006-01-02T15:04:05"),
		sum.NotesFound, sum.Converted, sum.Skipped, sum.NoText,
		sum.TasksTotal, sum.TasksOpen, sum.TasksCompleted)

	path := filepath.Join(dir, fmt.Sprintf("Status - %s.md", m.Bridge))
	return os.WriteFile(path, []byte(body), 0o644)
}

func (m *PlainMarkdown) NoteURL(relPathNoExt string) string {
	abs := filepath.Join(m.VaultPath, filepath.FromSlash(relPathNoExt)+".md")
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return u.String()
}

func (m *PlainMarkdown) LoadReplacements() ([]transform.Replacement, error) {
	data, err := os.ReadFile(filepath.Join(m.VaultPath, replacementsFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return transform.ParseReplacements(string(data)), nil
}

func (m *PlainMarkdown) ModifiedTime(relPath string) (time.Time, bool) {
	info, err := os.Stat(filepath.Join(m.VaultPath, filepath.FromSlash(relPath)))
	if err != nil {
		return time.Time{}, false
	}
	return info.ModTime(), true
}

// ForKind selects a provider by configuration value. Unknown kinds fall
// back to the Obsidian provider, the most common vault application.
func ForKind(kind, bridge, vaultPath string) Provider {
	if strings.EqualFold(kind, "markdown") {
		return NewPlainMarkdown(bridge, vaultPath)
	}
	return NewObsidian(bridge, vaultPath)
}
