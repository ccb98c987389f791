package loader

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/MohamedBiize/DocAI/internal/chunk"
)

var ErrUnsupportedFormat = errors.New("unsupported document format")

// Page is one positional unit of a document. Metadata carries format fields
// such as the page number.
type Page struct {
	Text     string
	Metadata chunk.Metadata
}

// Loader extracts the text of a document file.
type Loader interface {
	Load(ctx context.Context, path string) ([]Page, error)
}

// Registry selects a Loader by file extension.
type Registry struct {
	loaders map[string]Loader
}

// NewRegistry returns the default registry: plain text and markdown, PDF via
// pdftotext, and DOCX.
func NewRegistry(pdftotextPath string, runner CommandRunner) *Registry {
	r := &Registry{loaders: make(map[string]Loader)}
	text := NewTextLoader()
	r.Register(text, ".txt", ".md", ".markdown")
	r.Register(NewPDFLoader(pdftotextPath, runner), ".pdf")
	r.Register(NewDocxLoader(), ".docx")
	return r
}

func (r *Registry) Register(l Loader, exts ...string) {
	for _, ext := range exts {
		r.loaders[strings.ToLower(ext)] = l
	}
}

func (r *Registry) Supports(path string) bool {
	_, ok := r.loaders[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Load dispatches to the loader registered for the file extension.
func (r *Registry) Load(ctx context.Context, path string) ([]Page, error) {
	l, ok := r.loaders[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
	return l.Load(ctx, path)
}

// CommandRunner executes external programs.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) // #nosec G204 -- fixed program names from config
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}
