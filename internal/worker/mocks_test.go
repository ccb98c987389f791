package worker_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/MohamedBiize/DocAI/features/job"
	"github.com/MohamedBiize/DocAI/internal/ingest"
)

type MockIngester struct{ mock.Mock }

func (m *MockIngester) IngestDocument(ctx context.Context, src ingest.DocumentSource) (int, error) {
	args := m.Called(ctx, src)
	return args.Int(0), args.Error(1)
}

func (m *MockIngester) IngestRepository(ctx context.Context, src ingest.RepositorySource) (int, error) {
	args := m.Called(ctx, src)
	return args.Int(0), args.Error(1)
}

type MockCloner struct {
	mock.Mock
	cleaned bool
}

func (m *MockCloner) Clone(ctx context.Context, repoURL, branch string) (string, func(), error) {
	args := m.Called(ctx, repoURL, branch)
	if args.Error(1) != nil {
		return "", nil, args.Error(1)
	}
	return args.String(0), func() { m.cleaned = true }, nil
}

type MockUpdater struct{ mock.Mock }

func (m *MockUpdater) MarkProcessed(ctx context.Context, id string, numChunks int) error {
	args := m.Called(ctx, id, numChunks)
	return args.Error(0)
}

func (m *MockUpdater) MarkFailed(ctx context.Context, id, reason string) error {
	args := m.Called(ctx, id, reason)
	return args.Error(0)
}

type MockJobRepo struct{ mock.Mock }

func (m *MockJobRepo) Save(ctx context.Context, j *job.Job) error {
	args := m.Called(ctx, j)
	return args.Error(0)
}
