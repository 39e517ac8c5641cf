// Package extract turns source note files into raw recognized text.
//
// Two extractors exist: an adapter around the external recognition
// tool for device note files, and an in-process reader for PDF
// exports. Failure modes are distinct sentinels so the orchestrator
// can count them separately.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrToolMissing means the recognition tool executable was not
	// found. Structural for the whole bridge, not just one note.
	ErrToolMissing = errors.New("recognition tool not found")
	// ErrToolFailed means the tool ran but exited non-zero or timed
	// out. Scoped to a single note.
	ErrToolFailed = errors.New("recognition tool failed")
	// ErrNoText means extraction succeeded but produced no usable
	// text. Distinct from a failure.
	ErrNoText = errors.New("no extractable text")
)

// Extractor produces raw recognized text for one source file.
type Extractor interface {
	Extract(ctx context.Context, srcPath string) (string, error)
}

// ToolExtractor invokes the external recognition tool. The tool writes
// plain text to a file target, so extraction goes through a temp file.
type ToolExtractor struct {
	// Tool is the executable name or path, e.g. "supernote-tool".
	Tool string
	// Timeout bounds one invocation. Zero means DefaultTimeout.
	Timeout time.Duration
}

// DefaultTimeout bounds a single tool invocation.
const DefaultTimeout = 2 * time.Minute

const (
	transientRetries = 2
	transientDelay   = 500 * time.Millisecond
)

// transientErr reports whether stderr indicates a temporary
// cloud-storage filesystem deadlock worth retrying in-place.
func transientErr(stderr string) bool {
	return strings.Contains(stderr, "Resource deadlock avoided") ||
		strings.Contains(stderr, "[Errno 11]")
}

// Extract runs `<tool> convert -t txt -a <src> <tmp>` and returns the
// produced text. Returns ErrToolMissing, ErrToolFailed, or ErrNoText.
func (e *ToolExtractor) Extract(ctx context.Context, srcPath string) (string, error) {
	tmp, err := os.CreateTemp("", "inkbridge-*.txt")
	if err != nil {
		return "", fmt.Errorf("creating temp output: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if err := e.run(ctx, "convert", "-t", "txt", "-a", srcPath, tmpPath); err != nil {
		return "", err
	}

	data, err := os.ReadFile(tmpPath)
	if err != nil {
		return "", fmt.Errorf("reading tool output: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", ErrNoText
	}
	return text, nil
}

// ExportImages renders every page of a source note to PNG files under
// destDir and returns their paths sorted by name. Failures are
// reported to the caller but are never structural: image export is
// best effort and must not block text conversion.
func (e *ToolExtractor) ExportImages(ctx context.Context, srcPath, destDir string) ([]string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating image directory: %w", err)
	}

	stem := strings.TrimSuffix(filepath.Base(srcPath), filepath.Ext(srcPath))
	target := filepath.Join(destDir, stem+".png")

	if err := e.run(ctx, "convert", "-t", "png", "-a", srcPath, target); err != nil {
		return nil, err
	}

	pngs, err := filepath.Glob(filepath.Join(destDir, "*.png"))
	if err != nil {
		return nil, err
	}
	return pngs, nil
}

func (e *ToolExtractor) run(ctx context.Context, args ...string) error {
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	var lastStderr string
	for attempt := 0; attempt <= transientRetries; attempt++ {
		runCtx, cancel := context.WithTimeout(ctx, timeout)
		cmd := exec.CommandContext(runCtx, e.Tool, args...)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		err := cmd.Run()
		cancel()

		if err == nil {
			return nil
		}
		if errors.Is(err, exec.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrToolMissing, e.Tool)
		}
		if runCtx.Err() != nil && ctx.Err() == nil {
			return fmt.Errorf("%w: timed out after %s", ErrToolFailed, timeout)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		lastStderr = strings.TrimSpace(stderr.String())
		if transientErr(lastStderr) && attempt < transientRetries {
			slog.Warn("recognition tool transient error, retrying",
				"attempt", attempt+1, "stderr", lastStderr)
			select {
			case <-time.After(transientDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		break
	}

	if lastStderr != "" {
		return fmt.Errorf("%w: %s", ErrToolFailed, lastStderr)
	}
	return ErrToolFailed
}
