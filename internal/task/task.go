// Package task extracts checkbox items from transformed Markdown and
// assigns them stable local identifiers.
package task

import (
	"fmt"
	"regexp"
	"strings"
)

// Task is one checkbox line found in a converted note. It is
// provider-agnostic: external systems attach their own ids through the
// registry's sync records.
type Task struct {
	// LocalID is "bridge:note-path:line". It is deterministic for
	// unchanged content, but line-position based: inserting or removing
	// lines above a task gives the shifted line a new identity. That
	// drift is a documented limitation, not something to merge away.
	LocalID   string
	Bridge    string
	Vault     string
	NotePath  string // relative to the vault root, forward slashes
	Line      int    // 1-based line number in the transformed Markdown
	Title     string
	Completed bool
}

var taskLineRx = regexp.MustCompile(`^(\s*)-\s\[( |x|X)\]\s+(.*)$`)

// LocalID builds the stable identifier for a task at the given
// position. Exposed so the registry and tests agree on the format.
func LocalID(bridge, notePath string, line int) string {
	return fmt.Sprintf("%s:%s:%d", bridge, notePath, line)
}

// Extract scans transformed Markdown for task list items. Line numbers
// are 1-based positions in md. Items with empty titles are ignored.
// Re-running on byte-identical input yields identical tasks.
func Extract(md, bridge, vault, notePath string) []Task {
	var tasks []Task
	for i, line := range strings.Split(md, "\n") {
		m := taskLineRx.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		title := strings.TrimSpace(m[3])
		if title == "" {
			continue
		}
		lineNo := i + 1
		tasks = append(tasks, Task{
			LocalID:   LocalID(bridge, notePath, lineNo),
			Bridge:    bridge,
			Vault:     vault,
			NotePath:  notePath,
			Line:      lineNo,
			Title:     title,
			Completed: strings.EqualFold(m[2], "x"),
		})
	}
	return tasks
}
