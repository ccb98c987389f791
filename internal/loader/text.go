package loader

import (
	"context"
	"fmt"
	"os"
	"unicode/utf8"

	"github.com/MohamedBiize/DocAI/internal/chunk"
)

// TextLoader reads plain text and markdown as a single page.
type TextLoader struct{}

func NewTextLoader() *TextLoader {
	return &TextLoader{}
}

func (l *TextLoader) Load(_ context.Context, path string) ([]Page, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- uploaded file path
	if err != nil {
		return nil, fmt.Errorf("read text: %w", err)
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("read text %s: not valid UTF-8", path)
	}
	if len(data) == 0 {
		return nil, nil
	}
	return []Page{{Text: string(data), Metadata: chunk.Metadata{}}}, nil
}
