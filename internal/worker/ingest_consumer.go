package worker

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nsqio/go-nsq"

	"github.com/MohamedBiize/DocAI/features/job"
	"github.com/MohamedBiize/DocAI/internal/config"
	"github.com/MohamedBiize/DocAI/internal/ingest"
	"github.com/MohamedBiize/DocAI/internal/middleware"
)

// IngestConsumer runs the orchestrator for messages from both ingestion
// topics. Every message is acknowledged: malformed ones are dropped and
// failed ingestions are stored as failed jobs for a manual retry.
type IngestConsumer struct {
	ingester Ingester
	cloner   Cloner
	docs     StatusUpdater
	projects StatusUpdater
	jobs     FailedJobStore
}

func NewIngestConsumer(i Ingester, c Cloner, docs, projects StatusUpdater, jobs FailedJobStore) *IngestConsumer {
	return &IngestConsumer{ingester: i, cloner: c, docs: docs, projects: projects, jobs: jobs}
}

func (c *IngestConsumer) DocumentHandler() nsq.Handler {
	return nsq.HandlerFunc(c.HandleDocument)
}

func (c *IngestConsumer) RepositoryHandler() nsq.Handler {
	return nsq.HandlerFunc(c.HandleRepository)
}

func (c *IngestConsumer) HandleDocument(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var p DocumentPayload
	if err := json.Unmarshal(m.Body, &p); err != nil {
		slog.Error("poison pill: invalid json", "topic", config.TopicIngestDocument, "error", err)
		return nil
	}
	ctx := messageContext(p.CorrelationID)
	if p.DocumentID == "" || p.FilePath == "" {
		slog.ErrorContext(ctx, "missing required fields, dropping", "document_id", p.DocumentID, "file_path", p.FilePath)
		return nil
	}

	slog.InfoContext(ctx, "ingesting document", "document_id", p.DocumentID, "path", p.FilePath)
	n, err := c.ingester.IngestDocument(ctx, ingest.DocumentSource{
		DocumentID:   p.DocumentID,
		FilePath:     p.FilePath,
		DocumentType: p.DocumentType,
		Metadata:     p.Metadata,
		Replace:      p.Replace,
	})
	if err != nil {
		c.fail(ctx, c.docs, config.TopicIngestDocument, p.DocumentID, m.Body, err)
		return nil
	}

	if err := c.docs.MarkProcessed(ctx, p.DocumentID, n); err != nil {
		slog.WarnContext(ctx, "failed to mark document processed", "document_id", p.DocumentID, "error", err)
	}
	return nil
}

func (c *IngestConsumer) HandleRepository(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var p RepositoryPayload
	if err := json.Unmarshal(m.Body, &p); err != nil {
		slog.Error("poison pill: invalid json", "topic", config.TopicIngestRepository, "error", err)
		return nil
	}
	ctx := messageContext(p.CorrelationID)
	if p.ProjectID == "" || (p.RepoURL == "" && p.Root == "") {
		slog.ErrorContext(ctx, "missing required fields, dropping", "project_id", p.ProjectID, "repo_url", p.RepoURL)
		return nil
	}

	root := p.Root
	if root == "" {
		dir, cleanup, err := c.cloner.Clone(ctx, p.RepoURL, p.Branch)
		if err != nil {
			c.fail(ctx, c.projects, config.TopicIngestRepository, p.ProjectID, m.Body, err)
			return nil
		}
		defer cleanup()
		root = dir
	}

	slog.InfoContext(ctx, "ingesting repository", "project_id", p.ProjectID, "repo_url", p.RepoURL, "branch", p.Branch)
	n, err := c.ingester.IngestRepository(ctx, ingest.RepositorySource{
		ProjectID: p.ProjectID,
		RepoURL:   p.RepoURL,
		Branch:    p.Branch,
		Root:      root,
		Replace:   p.Replace,
	})
	if err != nil {
		c.fail(ctx, c.projects, config.TopicIngestRepository, p.ProjectID, m.Body, err)
		return nil
	}

	if err := c.projects.MarkProcessed(ctx, p.ProjectID, n); err != nil {
		slog.WarnContext(ctx, "failed to mark project processed", "project_id", p.ProjectID, "error", err)
	}
	return nil
}

func (c *IngestConsumer) fail(ctx context.Context, status StatusUpdater, topic, id string, body []byte, cause error) {
	slog.ErrorContext(ctx, "ingestion failed", "topic", topic, "id", id, "error", cause)

	if err := status.MarkFailed(ctx, id, cause.Error()); err != nil {
		slog.WarnContext(ctx, "failed to record ingestion failure", "id", id, "error", err)
	}

	failed := &job.Job{
		ResourceID: id,
		Topic:      topic,
		Payload:    json.RawMessage(body),
		Error:      cause.Error(),
	}
	if err := c.jobs.Save(ctx, failed); err != nil {
		slog.ErrorContext(ctx, "failed to save failed job", "error", err)
		return
	}
	slog.InfoContext(ctx, "saved failed job for retry", "job_id", failed.ID)
}

func messageContext(correlationID string) context.Context {
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	return middleware.WithCorrelationID(context.Background(), correlationID)
}

