package code

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/MohamedBiize/DocAI/internal/chunk"
)

var (
	ErrUnsupportedLanguage = errors.New("unsupported source language")
	ErrInvalidEncoding     = errors.New("source is not valid UTF-8")
)

// Extractor turns source files into code-entity chunks.
type Extractor struct {
	parsers map[string]Parser
}

// NewExtractor registers the Python and Go frontends.
func NewExtractor() *Extractor {
	return NewExtractorWith(map[string]Parser{
		".py": NewPythonParser(),
		".go": NewGoParser(),
	})
}

func NewExtractorWith(parsers map[string]Parser) *Extractor {
	return &Extractor{parsers: parsers}
}

// Supports reports whether the file extension maps to a known language.
func (e *Extractor) Supports(path string) bool {
	_, ok := e.parsers[strings.ToLower(filepath.Ext(path))]
	return ok
}

func (e *Extractor) ExtractFile(ctx context.Context, path, relPath string) ([]chunk.Chunk, error) {
	src, err := os.ReadFile(path) // #nosec G304 -- path comes from the repository walk
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", relPath, err)
	}
	return e.Extract(ctx, path, relPath, src)
}

// Extract parses src and renders one chunk per function, class and method.
// A syntax error never fails the call: the whole file becomes a single
// file_fallback chunk carrying the parse error.
func (e *Extractor) Extract(ctx context.Context, path, relPath string, src []byte) ([]chunk.Chunk, error) {
	p, ok := e.parsers[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, relPath)
	}
	if !utf8.Valid(src) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidEncoding, relPath)
	}
	if len(strings.TrimSpace(string(src))) == 0 {
		return nil, nil
	}

	f := &sourceFile{relPath: filepath.ToSlash(relPath), lang: p.Language(), lines: splitLines(string(src))}

	mod, err := p.Parse(ctx, src)
	if err != nil {
		var synErr *SyntaxError
		if !errors.As(err, &synErr) {
			return nil, fmt.Errorf("parse %s: %w", relPath, err)
		}
		slog.WarnContext(ctx, "syntax error, indexing whole file", "path", relPath, "error", synErr)
		return []chunk.Chunk{f.fallback(string(src), synErr)}, nil
	}

	var chunks []chunk.Chunk
	for _, n := range mod.Nodes {
		switch n := n.(type) {
		case *FunctionNode:
			chunks = append(chunks, f.function(n))
		case *ClassNode:
			chunks = append(chunks, f.class(n))
			for _, m := range n.Methods {
				chunks = append(chunks, f.method(m))
			}
		case *MethodNode:
			chunks = append(chunks, f.method(n))
		default:
			panic(fmt.Sprintf("code: unexpected node %T", n))
		}
	}
	slog.DebugContext(ctx, "extracted code entities", "path", relPath, "count", len(chunks))
	return chunks, nil
}

type sourceFile struct {
	relPath string
	lang    Language
	lines   []string
}

func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}

// slice returns lines start..end (1-based, inclusive) clamped to the file.
func (f *sourceFile) slice(sp Span) string {
	start, end := sp.Start, sp.End
	if start < 1 {
		start = 1
	}
	if end > len(f.lines) {
		end = len(f.lines)
	}
	if start > end {
		return ""
	}
	return strings.Join(f.lines[start-1:end], "\n")
}

func (f *sourceFile) base(ct chunk.CodeType, sp Span, doc string) chunk.Metadata {
	return chunk.Metadata{
		chunk.KeySource:       f.relPath,
		chunk.KeyRelativePath: f.relPath,
		chunk.KeySourceType:   string(chunk.SourceTypeCode),
		chunk.KeyLanguage:     string(f.lang),
		chunk.KeyCodeType:     string(ct),
		chunk.KeyStartLine:    sp.Start,
		chunk.KeyEndLine:      sp.End,
		chunk.KeyHasDocstring: doc != "",
		chunk.KeyGithubLink:   GithubLink(f.relPath, sp),
	}
}

func (f *sourceFile) signature(name string, params []string) string {
	kw := "def"
	if f.lang == LanguageGo {
		kw = "func"
	}
	return fmt.Sprintf("%s %s(%s)", kw, name, strings.Join(params, ", "))
}

func (f *sourceFile) function(n *FunctionNode) chunk.Chunk {
	var b strings.Builder
	fmt.Fprintf(&b, "Function: %s\n\n", n.Name)
	fmt.Fprintf(&b, "Signature: %s\n\n", f.signature(n.Name, n.Params))
	writeDocstring(&b, n.Docstring)
	fmt.Fprintf(&b, "Source Code:\n%s", f.slice(n.Span))

	md := f.base(chunk.CodeTypeFunction, n.Span, n.Docstring)
	md[chunk.KeyFunctionName] = n.Name
	return chunk.New(b.String(), md)
}

func (f *sourceFile) class(n *ClassNode) chunk.Chunk {
	methods := n.MethodNames()

	var b strings.Builder
	fmt.Fprintf(&b, "Class: %s\n\n", n.Name)
	if len(n.Bases) > 0 {
		fmt.Fprintf(&b, "Inherits from: %s\n\n", strings.Join(n.Bases, ", "))
	}
	writeDocstring(&b, n.Docstring)
	if len(n.Attributes) > 0 {
		fmt.Fprintf(&b, "Class attributes: %s\n\n", strings.Join(n.Attributes, ", "))
	}
	if len(methods) > 0 {
		fmt.Fprintf(&b, "Methods: %s\n\n", strings.Join(methods, ", "))
	}
	fmt.Fprintf(&b, "Source Code:\n%s", f.slice(n.Span))

	md := f.base(chunk.CodeTypeClass, n.Span, n.Docstring)
	md[chunk.KeyClassName] = n.Name
	md[chunk.KeyMethods] = methods
	md[chunk.KeyClassAttrs] = nonNil(n.Attributes)
	md[chunk.KeyBases] = nonNil(n.Bases)
	return chunk.New(b.String(), md)
}

func (f *sourceFile) method(n *MethodNode) chunk.Chunk {
	var b strings.Builder
	fmt.Fprintf(&b, "Method: %s.%s\n\n", n.ClassName, n.Name)
	fmt.Fprintf(&b, "Type: %s\n\n", n.Kind)
	fmt.Fprintf(&b, "Signature: %s\n\n", f.signature(n.Name, n.Params))
	writeDocstring(&b, n.Docstring)
	fmt.Fprintf(&b, "Source Code:\n%s", f.slice(n.Span))

	md := f.base(chunk.CodeTypeMethod, n.Span, n.Docstring)
	md[chunk.KeyMethodName] = n.Name
	md[chunk.KeyClassName] = n.ClassName
	md[chunk.KeyMethodType] = string(n.Kind)
	return chunk.New(b.String(), md)
}

func (f *sourceFile) fallback(content string, synErr *SyntaxError) chunk.Chunk {
	sp := Span{Start: 1, End: len(f.lines)}
	md := f.base(chunk.CodeTypeFileFallback, sp, "")
	md[chunk.KeyParsingError] = synErr.Error()
	return chunk.New(content, md)
}

func writeDocstring(b *strings.Builder, doc string) {
	if doc != "" {
		fmt.Fprintf(b, "Docstring:\n%s\n\n", doc)
	}
}

// GithubLink is the provider-independent locator of a line range.
func GithubLink(relPath string, sp Span) string {
	return fmt.Sprintf("%s#L%d-L%d", relPath, sp.Start, sp.End)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
