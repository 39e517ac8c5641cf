// Package source discovers recognized note files under a bridge's
// source root and decides which ones need reprocessing.
package source

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Note is an immutable per-run snapshot of one source note file.
type Note struct {
	Bridge  string
	Path    string // absolute
	RelPath string // relative to the bridge's source root, forward slashes
	ModTime time.Time
	Size    int64
}

// Extensions the extraction layer knows how to handle.
var noteExtensions = map[string]bool{
	".note": true,
	".pdf":  true,
}

// ListNotes walks root recursively and returns every note file, sorted
// by path for deterministic processing order. Unreadable entries are
// skipped rather than failing the scan; a missing root returns
// fs.ErrNotExist so callers can record a structural error.
func ListNotes(bridge, root string) ([]Note, error) {
	if _, err := os.Stat(root); err != nil {
		return nil, err
	}

	var notes []Note
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable subtrees
		}
		if d.IsDir() || !noteExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil // file disappeared mid-walk
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		notes = append(notes, Note{
			Bridge:  bridge,
			Path:    path,
			RelPath: filepath.ToSlash(rel),
			ModTime: info.ModTime(),
			Size:    info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(notes, func(i, j int) bool { return notes[i].Path < notes[j].Path })
	return notes, nil
}

// MarkdownRelPath maps a source note's relative path to its converted
// artifact's relative path (extension remapped to .md).
func MarkdownRelPath(relPath string) string {
	ext := filepath.Ext(relPath)
	return strings.TrimSuffix(relPath, ext) + ".md"
}

// Stale reports whether the note needs reprocessing: the destination
// artifact is missing (including manually deleted) or strictly older
// than the source. Equal timestamps count as up to date. Modification
// time is the sole staleness signal; content is never hashed.
func Stale(n Note, destPath string) bool {
	info, err := os.Stat(destPath)
	if err != nil {
		return true
	}
	return info.ModTime().Before(n.ModTime)
}
