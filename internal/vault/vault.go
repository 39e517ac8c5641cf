// Package vault writes converted notes and run artifacts into the
// destination knowledge vault.
package vault

import (
	"time"

	"github.com/tkoster/inkbridge/internal/registry"
	"github.com/tkoster/inkbridge/internal/transform"
)

// ReservedDir is the per-vault subfolder for status and replacement
// artifacts, kept apart from user note content.
const ReservedDir = "Inkbridge"

// Metadata is the frontmatter-ish information attached to a written note.
type Metadata struct {
	Title      string
	Tags       []string
	SourceFile string // original note path, relative to the source root
	CreatedAt  time.Time
}

// Provider abstracts the destination note application. Implementations
// write notes, run-status artifacts, and resolve deep-link URLs.
type Provider interface {
	Name() string
	// WriteNote writes content at relPath (relative to the vault root)
	// and returns the absolute location written.
	WriteNote(content string, meta Metadata, relPath string) (string, error)
	// WriteStatusNote renders a human-readable run summary into the
	// vault's reserved subfolder.
	WriteStatusNote(sum registry.RunSummary) error
	// NoteURL builds a deep link that opens the note (path given
	// without the .md extension).
	NoteURL(relPathNoExt string) string
	// LoadReplacements reads the user-maintained correction list. A
	// missing list is not an error: it returns an empty slice.
	LoadReplacements() ([]transform.Replacement, error)
	// ModifiedTime reports the destination artifact's mtime, if it exists.
	ModifiedTime(relPath string) (time.Time, bool)
}
