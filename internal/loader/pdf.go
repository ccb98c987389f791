package loader

import (
	"context"
	"fmt"
	"strings"

	"github.com/MohamedBiize/DocAI/internal/chunk"
)

// PDFLoader extracts text with pdftotext. Pages are separated by form feeds
// in its output.
type PDFLoader struct {
	bin    string
	runner CommandRunner
}

func NewPDFLoader(bin string, runner CommandRunner) *PDFLoader {
	if bin == "" {
		bin = "pdftotext"
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &PDFLoader{bin: bin, runner: runner}
}

func (l *PDFLoader) Load(ctx context.Context, path string) ([]Page, error) {
	out, err := l.runner.Run(ctx, l.bin, "-layout", "-enc", "UTF-8", path, "-")
	if err != nil {
		return nil, fmt.Errorf("pdftotext: %w", err)
	}

	raw := strings.Split(string(out), "\f")
	// pdftotext terminates the last page with a form feed too
	if len(raw) > 0 && strings.TrimSpace(raw[len(raw)-1]) == "" {
		raw = raw[:len(raw)-1]
	}

	pages := make([]Page, 0, len(raw))
	for i, text := range raw {
		if strings.TrimSpace(text) == "" {
			continue
		}
		pages = append(pages, Page{
			Text: text,
			Metadata: chunk.Metadata{
				chunk.KeyPage:       i,
				chunk.KeyTotalPages: len(raw),
			},
		})
	}
	return pages, nil
}
