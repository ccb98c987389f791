package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MohamedBiize/DocAI/internal/chunk"
	"github.com/MohamedBiize/DocAI/internal/vector"
)

const DefaultConcurrency = 4

// DocumentChunker turns one document file into chunks.
type DocumentChunker interface {
	Supports(path string) bool
	Chunk(ctx context.Context, path string, base chunk.Metadata) ([]chunk.Chunk, error)
}

// CodeExtractor turns one source file into code-entity chunks.
type CodeExtractor interface {
	Supports(path string) bool
	ExtractFile(ctx context.Context, path, relPath string) ([]chunk.Chunk, error)
}

// ChunkWriter is the write side of a vector collection.
type ChunkWriter interface {
	Upsert(ctx context.Context, chunks []chunk.Chunk) error
	Delete(ctx context.Context, filter vector.Filter) (int, error)
}

type Config struct {
	// Concurrency bounds parallel file extraction inside one repository.
	Concurrency int
	// StableIDs derives chunk ids from the source identity instead of
	// generating random ones.
	StableIDs bool
}

// DocumentSource describes one document to ingest.
type DocumentSource struct {
	DocumentID   string
	FilePath     string
	DocumentType string
	Metadata     chunk.Metadata
	Replace      bool
}

// RepositorySource describes a repository already materialized on disk.
type RepositorySource struct {
	ProjectID string
	RepoURL   string
	Branch    string
	Root      string
	Replace   bool
}

var skipDirs = map[string]bool{
	".git":         true,
	"vendor":       true,
	"node_modules": true,
	"__pycache__":  true,
	".venv":        true,
}

type Orchestrator struct {
	cfg   Config
	docs  DocumentChunker
	code  CodeExtractor
	index ChunkWriter
}

func New(cfg Config, docs DocumentChunker, code CodeExtractor, index ChunkWriter) *Orchestrator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	return &Orchestrator{cfg: cfg, docs: docs, code: code, index: index}
}

// IngestDocument chunks and indexes a single document. Unsupported formats
// and unreadable files are logged and produce zero chunks; only index
// failures are returned.
func (o *Orchestrator) IngestDocument(ctx context.Context, src DocumentSource) (int, error) {
	start := time.Now()
	log := slog.With("document_id", src.DocumentID, "path", src.FilePath)

	if !o.docs.Supports(src.FilePath) {
		log.WarnContext(ctx, "skipping unsupported document", "ext", filepath.Ext(src.FilePath))
		return 0, nil
	}

	base := src.Metadata.Clone()
	base[chunk.KeyDocumentID] = src.DocumentID
	base[chunk.KeySource] = filepath.Base(src.FilePath)
	base[chunk.KeySourceType] = string(chunk.SourceTypeDocument)
	if src.DocumentType != "" {
		base[chunk.KeyDocumentType] = src.DocumentType
	}

	chunks, err := o.docs.Chunk(ctx, src.FilePath, base)
	if err != nil {
		log.ErrorContext(ctx, "document could not be loaded", "error", err)
		return 0, nil
	}
	if o.cfg.StableIDs {
		for i := range chunks {
			chunks[i].ID = chunk.StableID(src.DocumentID, strconv.Itoa(i))
		}
	}

	// Previous chunks are only removed once there is something to replace
	// them with.
	if len(chunks) == 0 {
		log.WarnContext(ctx, "document produced no chunks")
		return 0, nil
	}

	if src.Replace {
		n, err := o.index.Delete(ctx, vector.Filter{chunk.KeyDocumentID: src.DocumentID})
		if err != nil {
			log.ErrorContext(ctx, "failed to remove previous chunks", "error", err)
			return 0, fmt.Errorf("replace document %s: %w", src.DocumentID, err)
		}
		log.InfoContext(ctx, "removed previous chunks", "count", n)
	}
	if err := o.index.Upsert(ctx, chunks); err != nil {
		log.ErrorContext(ctx, "failed to index document", "error", err)
		return 0, fmt.Errorf("index document %s: %w", src.DocumentID, err)
	}

	log.InfoContext(ctx, "document ingested", "chunks", len(chunks), "duration_ms", time.Since(start).Milliseconds())
	return len(chunks), nil
}

// IngestRepository extracts every supported source file under src.Root and
// indexes the chunks in one upsert. Files are extracted in parallel but the
// result keeps walk order.
func (o *Orchestrator) IngestRepository(ctx context.Context, src RepositorySource) (int, error) {
	start := time.Now()
	log := slog.With("project_id", src.ProjectID, "repo_url", src.RepoURL)

	files, err := o.discoverFiles(ctx, src.Root)
	if err != nil {
		return 0, fmt.Errorf("walk %s: %w", src.Root, err)
	}
	log.InfoContext(ctx, "discovered source files", "count", len(files))

	perFile := make([][]chunk.Chunk, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Concurrency)
	for i, rel := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			chunks, err := o.code.ExtractFile(gctx, filepath.Join(src.Root, filepath.FromSlash(rel)), rel)
			if err != nil {
				log.WarnContext(gctx, "skipping file", "path", rel, "error", err)
				return nil
			}
			perFile[i] = chunks
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	repoName := RepoName(src.RepoURL)
	var all []chunk.Chunk
	for _, chunks := range perFile {
		for _, c := range chunks {
			c.Metadata[chunk.KeyProjectID] = src.ProjectID
			c.Metadata[chunk.KeyRepoURL] = src.RepoURL
			c.Metadata[chunk.KeyBranch] = src.Branch
			c.Metadata[chunk.KeyRepoName] = repoName
			if o.cfg.StableIDs {
				c.ID = codeChunkID(src.ProjectID, c.Metadata)
			}
			all = append(all, c)
		}
	}

	if src.Replace {
		n, err := o.index.Delete(ctx, vector.Filter{chunk.KeyProjectID: src.ProjectID})
		if err != nil {
			log.ErrorContext(ctx, "failed to remove previous chunks", "error", err)
			return 0, fmt.Errorf("replace project %s: %w", src.ProjectID, err)
		}
		log.InfoContext(ctx, "removed previous chunks", "count", n)
	}

	if len(all) == 0 {
		log.WarnContext(ctx, "repository produced no chunks")
		return 0, nil
	}
	if err := o.index.Upsert(ctx, all); err != nil {
		log.ErrorContext(ctx, "failed to index repository", "error", err)
		return 0, fmt.Errorf("index project %s: %w", src.ProjectID, err)
	}

	log.InfoContext(ctx, "repository ingested",
		"files", len(files), "chunks", len(all), "duration_ms", time.Since(start).Milliseconds())
	return len(all), nil
}

// discoverFiles returns the slash-separated paths, relative to root, of the
// files the extractor supports.
func (o *Orchestrator) discoverFiles(ctx context.Context, root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			slog.WarnContext(ctx, "cannot read path", "path", path, "error", err)
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if path != root && (skipDirs[d.Name()] || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !o.code.Supports(path) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func codeChunkID(projectID string, md chunk.Metadata) string {
	name := md.String(chunk.KeyFunctionName)
	if n := md.String(chunk.KeyMethodName); n != "" {
		name = md.String(chunk.KeyClassName) + "." + n
	} else if name == "" {
		name = md.String(chunk.KeyClassName)
	}
	start, _ := md.Int(chunk.KeyStartLine)
	return chunk.StableID(projectID, md.String(chunk.KeyRelativePath), md.String(chunk.KeyCodeType), name, strconv.Itoa(start))
}

// RepoName returns the last path segment of a repository URL without a
// trailing .git.
func RepoName(repoURL string) string {
	s := strings.TrimSpace(repoURL)
	if u, err := url.Parse(s); err == nil && u.Path != "" {
		s = u.Path
	}
	s = strings.TrimRight(s, "/")
	if i := strings.LastIndexAny(s, "/:"); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSuffix(s, ".git")
}

