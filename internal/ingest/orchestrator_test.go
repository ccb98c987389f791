package ingest_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MohamedBiize/DocAI/internal/adapter/memory"
	"github.com/MohamedBiize/DocAI/internal/chunk"
	"github.com/MohamedBiize/DocAI/internal/code"
	"github.com/MohamedBiize/DocAI/internal/ingest"
	"github.com/MohamedBiize/DocAI/internal/loader"
	"github.com/MohamedBiize/DocAI/internal/text"
	"github.com/MohamedBiize/DocAI/internal/vector"
)

type lengthEmbedder struct{}

func (lengthEmbedder) Embed(_ context.Context, s string) ([]float32, error) {
	return []float32{float32(len(s)), 1}, nil
}

type recordingWriter struct {
	upserts   [][]chunk.Chunk
	deletes   []vector.Filter
	upsertErr error
	deleteErr error
}

func (w *recordingWriter) Upsert(_ context.Context, chunks []chunk.Chunk) error {
	w.upserts = append(w.upserts, chunks)
	return w.upsertErr
}

func (w *recordingWriter) Delete(_ context.Context, filter vector.Filter) (int, error) {
	w.deletes = append(w.deletes, filter)
	return 0, w.deleteErr
}

func newDocumentChunker(t *testing.T) *text.DocumentChunker {
	t.Helper()
	splitter, err := text.NewRecursiveSplitter(1000, 200)
	require.NoError(t, err)
	return text.NewDocumentChunker(loader.NewRegistry("", nil), splitter)
}

func newCollection(t *testing.T) *vector.Collection {
	t.Helper()
	coll, err := vector.NewIndex(memory.NewStore(), lengthEmbedder{}, vector.Config{}).
		EnsureCollection(context.Background(), "Chunks")
	require.NoError(t, err)
	return coll
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestIngestDocument(t *testing.T) {
	dir := t.TempDir()
	notes := filepath.Join(dir, "notes.txt")
	writeFile(t, notes, "The deploy runbook lives in the ops wiki.")
	broken := filepath.Join(dir, "broken.docx")
	writeFile(t, broken, "not a zip archive")
	empty := filepath.Join(dir, "empty.md")
	writeFile(t, empty, "")

	tests := []struct {
		name      string
		src       ingest.DocumentSource
		writer    *recordingWriter
		wantCount int
		wantErr   bool
		check     func(t *testing.T, w *recordingWriter)
	}{
		{
			name: "text document",
			src: ingest.DocumentSource{
				DocumentID: "doc-1", FilePath: notes, DocumentType: "runbook",
				Metadata: chunk.Metadata{"uploaded_by": "ops", "source": "ignored"},
			},
			writer:    &recordingWriter{},
			wantCount: 1,
			check: func(t *testing.T, w *recordingWriter) {
				require.Len(t, w.upserts, 1)
				md := w.upserts[0][0].Metadata
				assert.Equal(t, "doc-1", md.String("document_id"))
				assert.Equal(t, "notes.txt", md.String("source"))
				assert.Equal(t, "document", md.String("source_type"))
				assert.Equal(t, "runbook", md.String("document_type"))
				assert.Equal(t, "ops", md.String("uploaded_by"))
				idx, ok := md.Int("chunk_index")
				assert.True(t, ok)
				assert.Equal(t, 0, idx)
				assert.Empty(t, w.deletes)
			},
		},
		{
			name:   "unsupported format",
			src:    ingest.DocumentSource{DocumentID: "doc-2", FilePath: filepath.Join(dir, "sheet.xlsx")},
			writer: &recordingWriter{},
			check: func(t *testing.T, w *recordingWriter) {
				assert.Empty(t, w.upserts)
			},
		},
		{
			name:   "loader failure is absorbed",
			src:    ingest.DocumentSource{DocumentID: "doc-3", FilePath: broken, Replace: true},
			writer: &recordingWriter{},
			check: func(t *testing.T, w *recordingWriter) {
				assert.Empty(t, w.upserts)
				assert.Empty(t, w.deletes, "existing chunks survive a failed load")
			},
		},
		{
			name:   "empty document keeps previous chunks",
			src:    ingest.DocumentSource{DocumentID: "doc-4", FilePath: empty, Replace: true},
			writer: &recordingWriter{},
			check: func(t *testing.T, w *recordingWriter) {
				assert.Empty(t, w.upserts)
				assert.Empty(t, w.deletes)
			},
		},
		{
			name:   "unsupported format keeps previous chunks",
			src:    ingest.DocumentSource{DocumentID: "doc-5", FilePath: filepath.Join(dir, "deck.pptx"), Replace: true},
			writer: &recordingWriter{},
			check: func(t *testing.T, w *recordingWriter) {
				assert.Empty(t, w.deletes)
			},
		},
		{
			name:      "replace deletes by document id first",
			src:       ingest.DocumentSource{DocumentID: "doc-1", FilePath: notes, Replace: true},
			writer:    &recordingWriter{},
			wantCount: 1,
			check: func(t *testing.T, w *recordingWriter) {
				require.Len(t, w.deletes, 1)
				assert.Equal(t, vector.Filter{"document_id": "doc-1"}, w.deletes[0])
			},
		},
		{
			name:    "index failure is returned",
			src:     ingest.DocumentSource{DocumentID: "doc-1", FilePath: notes},
			writer:  &recordingWriter{upsertErr: errors.New("weaviate unavailable")},
			wantErr: true,
		},
		{
			name:    "replace failure is returned",
			src:     ingest.DocumentSource{DocumentID: "doc-1", FilePath: notes, Replace: true},
			writer:  &recordingWriter{deleteErr: errors.New("weaviate unavailable")},
			wantErr: true,
			check: func(t *testing.T, w *recordingWriter) {
				assert.Empty(t, w.upserts)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := ingest.New(ingest.Config{}, newDocumentChunker(t), code.NewExtractor(), tt.writer)
			n, err := o.IngestDocument(context.Background(), tt.src)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Zero(t, n)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantCount, n)
			}
			if tt.check != nil {
				tt.check(t, tt.writer)
			}
		})
	}
}

func TestIngestDocument_Reingestion(t *testing.T) {
	dir := t.TempDir()
	notes := filepath.Join(dir, "notes.md")
	writeFile(t, notes, "# Title\n\nSome body text.")
	ctx := context.Background()

	count := func(coll *vector.Collection) int {
		n, err := coll.Count(ctx, vector.Filter{"document_id": "doc-1"})
		require.NoError(t, err)
		return n
	}

	t.Run("default adds", func(t *testing.T) {
		coll := newCollection(t)
		o := ingest.New(ingest.Config{}, newDocumentChunker(t), code.NewExtractor(), coll)
		for range 2 {
			_, err := o.IngestDocument(ctx, ingest.DocumentSource{DocumentID: "doc-1", FilePath: notes})
			require.NoError(t, err)
		}
		assert.Equal(t, 2, count(coll))
	})

	t.Run("replace", func(t *testing.T) {
		coll := newCollection(t)
		o := ingest.New(ingest.Config{}, newDocumentChunker(t), code.NewExtractor(), coll)
		for range 2 {
			_, err := o.IngestDocument(ctx, ingest.DocumentSource{DocumentID: "doc-1", FilePath: notes, Replace: true})
			require.NoError(t, err)
		}
		assert.Equal(t, 1, count(coll))
	})

	t.Run("stable ids overwrite", func(t *testing.T) {
		coll := newCollection(t)
		o := ingest.New(ingest.Config{StableIDs: true}, newDocumentChunker(t), code.NewExtractor(), coll)
		for range 2 {
			_, err := o.IngestDocument(ctx, ingest.DocumentSource{DocumentID: "doc-1", FilePath: notes})
			require.NoError(t, err)
		}
		assert.Equal(t, 1, count(coll))
	})
}

func newRepo(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.py"), "def f(x):\n    return x\n")
	writeFile(t, filepath.Join(root, "pkg", "b.go"), "package pkg\n\nfunc G() {}\n")
	writeFile(t, filepath.Join(root, "README.md"), "# Repo\n")
	writeFile(t, filepath.Join(root, ".git", "hooks", "h.py"), "def hook():\n    pass\n")
	writeFile(t, filepath.Join(root, "node_modules", "m", "m.py"), "def m():\n    pass\n")
	writeFile(t, filepath.Join(root, "vendor", "v.go"), "package v\n\nfunc V() {}\n")
	writeFile(t, filepath.Join(root, ".tox", "t.py"), "def t():\n    pass\n")
	writeFile(t, filepath.Join(root, "latin1.py"), "x = '\xe9'\n")
	return root
}

func TestIngestRepository(t *testing.T) {
	root := newRepo(t)
	w := &recordingWriter{}
	o := ingest.New(ingest.Config{Concurrency: 2}, newDocumentChunker(t), code.NewExtractor(), w)

	n, err := o.IngestRepository(context.Background(), ingest.RepositorySource{
		ProjectID: "proj-1",
		RepoURL:   "https://github.com/acme/widgets.git",
		Branch:    "dev",
		Root:      root,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, w.upserts, 1, "one upsert per repository")
	assert.Empty(t, w.deletes)

	chunks := w.upserts[0]
	require.Len(t, chunks, 2)
	assert.Equal(t, "a.py", chunks[0].Metadata.String("relative_path"))
	assert.Equal(t, "pkg/b.go", chunks[1].Metadata.String("relative_path"))
	for _, c := range chunks {
		assert.Equal(t, "proj-1", c.Metadata.String("project_id"))
		assert.Equal(t, "https://github.com/acme/widgets.git", c.Metadata.String("repo_url"))
		assert.Equal(t, "dev", c.Metadata.String("branch"))
		assert.Equal(t, "widgets", c.Metadata.String("repo_name"))
		assert.Equal(t, "code", c.Metadata.String("source_type"))
	}
}

func TestIngestRepository_Replace(t *testing.T) {
	root := newRepo(t)
	w := &recordingWriter{}
	o := ingest.New(ingest.Config{}, newDocumentChunker(t), code.NewExtractor(), w)

	_, err := o.IngestRepository(context.Background(), ingest.RepositorySource{
		ProjectID: "proj-1", RepoURL: "https://github.com/acme/widgets", Branch: "main", Root: root, Replace: true,
	})
	require.NoError(t, err)
	require.Len(t, w.deletes, 1)
	assert.Equal(t, vector.Filter{"project_id": "proj-1"}, w.deletes[0])
}

func TestIngestRepository_StableIDs(t *testing.T) {
	root := newRepo(t)
	coll := newCollection(t)
	o := ingest.New(ingest.Config{StableIDs: true}, newDocumentChunker(t), code.NewExtractor(), coll)
	src := ingest.RepositorySource{ProjectID: "proj-1", RepoURL: "https://github.com/acme/widgets", Root: root}

	for range 2 {
		_, err := o.IngestRepository(context.Background(), src)
		require.NoError(t, err)
	}
	n, err := coll.Count(context.Background(), vector.Filter{"project_id": "proj-1"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestIngestRepository_EmptyAndMissing(t *testing.T) {
	w := &recordingWriter{}
	o := ingest.New(ingest.Config{}, newDocumentChunker(t), code.NewExtractor(), w)

	n, err := o.IngestRepository(context.Background(), ingest.RepositorySource{ProjectID: "p", Root: t.TempDir()})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, w.upserts)

	_, err = o.IngestRepository(context.Background(), ingest.RepositorySource{
		ProjectID: "p", Root: filepath.Join(t.TempDir(), "missing"),
	})
	assert.Error(t, err)
}

func TestIngestRepository_IndexFailure(t *testing.T) {
	w := &recordingWriter{upsertErr: errors.New("batch rejected")}
	o := ingest.New(ingest.Config{}, newDocumentChunker(t), code.NewExtractor(), w)

	_, err := o.IngestRepository(context.Background(), ingest.RepositorySource{ProjectID: "p", Root: newRepo(t)})
	assert.ErrorContains(t, err, "batch rejected")
}

func TestRepoName(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://github.com/acme/widgets", "widgets"},
		{"https://github.com/acme/widgets.git", "widgets"},
		{"https://gitlab.com/group/sub/tool/", "tool"},
		{"git@github.com:acme/widgets.git", "widgets"},
		{"widgets", "widgets"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, ingest.RepoName(tt.url))
		})
	}
}
