package document

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/MohamedBiize/DocAI/internal/chunk"
	"github.com/MohamedBiize/DocAI/internal/config"
	"github.com/MohamedBiize/DocAI/internal/middleware"
	"github.com/MohamedBiize/DocAI/internal/vector"
	"github.com/MohamedBiize/DocAI/internal/worker"
)

type Document struct {
	ID           string         `json:"id"`
	Filename     string         `json:"filename"`
	FilePath     string         `json:"-"`
	DocumentType string         `json:"document_type,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Processed    bool           `json:"processed"`
	NumChunks    int            `json:"num_chunks"`
	Error        string         `json:"error,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

type Repository interface {
	Save(ctx context.Context, doc *Document) error
	Get(ctx context.Context, id string) (*Document, error)
	List(ctx context.Context) ([]Document, error)
	Delete(ctx context.Context, id string) error
	Reset(ctx context.Context, id string) error
	MarkProcessed(ctx context.Context, id string, numChunks int) error
	MarkFailed(ctx context.Context, id, reason string) error
	Count(ctx context.Context) (int, error)
}

// ChunkStore is the slice of the vector collection a document needs.
type ChunkStore interface {
	Delete(ctx context.Context, filter vector.Filter) (int, error)
	Count(ctx context.Context, filter vector.Filter) (int, error)
}

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

type Service struct {
	repo   Repository
	pub    EventPublisher
	chunks ChunkStore
}

func NewService(repo Repository, pub EventPublisher, chunks ChunkStore) *Service {
	return &Service{repo: repo, pub: pub, chunks: chunks}
}

// Upload records an already stored file and queues it for ingestion.
func (s *Service) Upload(ctx context.Context, doc *Document, replace bool) error {
	if err := s.repo.Save(ctx, doc); err != nil {
		return err
	}
	return s.publish(ctx, doc, replace)
}

// Reingest queues a known document again, replacing its existing chunks.
func (s *Service) Reingest(ctx context.Context, id string) (*Document, error) {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Reset(ctx, id); err != nil {
		return nil, err
	}
	doc.Processed = false
	doc.Error = ""
	if err := s.publish(ctx, doc, true); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *Service) publish(ctx context.Context, doc *Document, replace bool) error {
	payload, err := json.Marshal(worker.DocumentPayload{
		DocumentID:    doc.ID,
		FilePath:      doc.FilePath,
		DocumentType:  doc.DocumentType,
		Metadata:      doc.Metadata,
		Replace:       replace,
		CorrelationID: middleware.GetCorrelationID(ctx),
	})
	if err != nil {
		return err
	}
	if err := s.pub.Publish(config.TopicIngestDocument, payload); err != nil {
		slog.ErrorContext(ctx, "failed to publish ingest.document event", "error", err, "id", doc.ID)
		if markErr := s.repo.MarkFailed(ctx, doc.ID, err.Error()); markErr != nil {
			slog.WarnContext(ctx, "failed to mark document failed", "error", markErr, "id", doc.ID)
		}
		return fmt.Errorf("queue document %s: %w", doc.ID, err)
	}
	slog.InfoContext(ctx, "published ingest.document event", "id", doc.ID, "filename", doc.Filename, "replace", replace)
	return nil
}

type Detail struct {
	Document
	IndexedChunks int `json:"indexed_chunks"`
}

func (s *Service) Get(ctx context.Context, id string) (*Detail, error) {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	n, err := s.chunks.Count(ctx, vector.Filter{chunk.KeyDocumentID: id})
	if err != nil {
		slog.WarnContext(ctx, "failed to count chunks", "error", err, "document_id", id)
		n = 0
	}
	return &Detail{Document: *doc, IndexedChunks: n}, nil
}

func (s *Service) List(ctx context.Context) ([]Document, error) {
	return s.repo.List(ctx)
}

// Delete removes the document's chunks, its row and the stored upload.
func (s *Service) Delete(ctx context.Context, id string) error {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	n, err := s.chunks.Delete(ctx, vector.Filter{chunk.KeyDocumentID: id})
	if err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	slog.InfoContext(ctx, "deleted document chunks", "document_id", id, "count", n)

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if doc.FilePath != "" {
		if err := os.Remove(doc.FilePath); err != nil && !os.IsNotExist(err) {
			slog.WarnContext(ctx, "failed to remove uploaded file", "error", err, "document_id", id)
		}
	}
	return nil
}

func (s *Service) MarkProcessed(ctx context.Context, id string, numChunks int) error {
	return s.repo.MarkProcessed(ctx, id, numChunks)
}

func (s *Service) MarkFailed(ctx context.Context, id, reason string) error {
	return s.repo.MarkFailed(ctx, id, reason)
}
