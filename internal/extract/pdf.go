package extract

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFExtractor reads text from PDF exports in-process, so bridges that
// receive PDFs work even without the external recognition tool.
type PDFExtractor struct{}

func (PDFExtractor) Extract(ctx context.Context, srcPath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	f, r, err := pdf.Open(srcPath)
	if err != nil {
		return "", fmt.Errorf("%w: opening pdf: %v", ErrToolFailed, err)
	}
	defer f.Close()

	reader, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("%w: reading pdf text: %v", ErrToolFailed, err)
	}

	var sb strings.Builder
	if _, err := io.Copy(&sb, reader); err != nil {
		return "", fmt.Errorf("%w: reading pdf text: %v", ErrToolFailed, err)
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", ErrNoText
	}
	return text, nil
}

// ForNote picks the extractor for a source file by extension.
func ForNote(tool *ToolExtractor, srcPath string) Extractor {
	if strings.EqualFold(filepath.Ext(srcPath), ".pdf") {
		return PDFExtractor{}
	}
	return tool
}
