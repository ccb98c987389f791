package worker

import (
	"context"

	"github.com/MohamedBiize/DocAI/features/job"
	"github.com/MohamedBiize/DocAI/internal/ingest"
)

type Ingester interface {
	IngestDocument(ctx context.Context, src ingest.DocumentSource) (int, error)
	IngestRepository(ctx context.Context, src ingest.RepositorySource) (int, error)
}

type Cloner interface {
	Clone(ctx context.Context, repoURL, branch string) (string, func(), error)
}

// StatusUpdater records the outcome of one ingestion on its tracking row.
type StatusUpdater interface {
	MarkProcessed(ctx context.Context, id string, numChunks int) error
	MarkFailed(ctx context.Context, id, reason string) error
}

type FailedJobStore interface {
	Save(ctx context.Context, j *job.Job) error
}
