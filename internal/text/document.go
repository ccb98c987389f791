package text

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/MohamedBiize/DocAI/internal/chunk"
	"github.com/MohamedBiize/DocAI/internal/loader"
)

// PageLoader is the loader capability the chunker depends on.
type PageLoader interface {
	Supports(path string) bool
	Load(ctx context.Context, path string) ([]loader.Page, error)
}

// DocumentChunker loads a document and splits every page into chunks.
type DocumentChunker struct {
	loader   PageLoader
	splitter *RecursiveSplitter
}

func NewDocumentChunker(l PageLoader, splitter *RecursiveSplitter) *DocumentChunker {
	return &DocumentChunker{loader: l, splitter: splitter}
}

func (c *DocumentChunker) Supports(path string) bool {
	return c.loader.Supports(path)
}

// Chunk returns the document chunks with chunk_index numbered across all
// pages. Page metadata and the split offset are layered over base, so base
// never overwrites them. Unsupported formats yield no chunks.
func (c *DocumentChunker) Chunk(ctx context.Context, path string, base chunk.Metadata) ([]chunk.Chunk, error) {
	if !c.loader.Supports(path) {
		slog.WarnContext(ctx, "unsupported document format", "path", path, "ext", filepath.Ext(path))
		return nil, nil
	}

	pages, err := c.loader.Load(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", filepath.Base(path), err)
	}
	if len(pages) == 0 {
		slog.WarnContext(ctx, "document has no extractable text", "path", path)
		return nil, nil
	}

	var chunks []chunk.Chunk
	for _, page := range pages {
		for _, piece := range c.splitter.Split(page.Text) {
			md := base.Clone().Merge(page.Metadata)
			md[chunk.KeyStartIndex] = piece.Start
			md[chunk.KeyChunkIndex] = len(chunks)
			chunks = append(chunks, chunk.New(piece.Text, md))
		}
	}
	if len(chunks) == 0 {
		slog.WarnContext(ctx, "document produced no chunks", "path", path, "pages", len(pages))
	}
	return chunks, nil
}
