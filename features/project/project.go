package project

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MohamedBiize/DocAI/internal/chunk"
	"github.com/MohamedBiize/DocAI/internal/config"
	"github.com/MohamedBiize/DocAI/internal/ingest"
	"github.com/MohamedBiize/DocAI/internal/middleware"
	gitrepo "github.com/MohamedBiize/DocAI/internal/repo"
	"github.com/MohamedBiize/DocAI/internal/vector"
	"github.com/MohamedBiize/DocAI/internal/worker"
)

const DefaultBranch = "main"

// Project is a code repository registered for ingestion.
type Project struct {
	ID        string    `json:"id"`
	RepoURL   string    `json:"repo_url"`
	Branch    string    `json:"branch"`
	RepoName  string    `json:"repo_name"`
	Processed bool      `json:"processed"`
	NumChunks int       `json:"num_chunks"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Repository interface {
	Save(ctx context.Context, p *Project) error
	Get(ctx context.Context, id string) (*Project, error)
	List(ctx context.Context) ([]Project, error)
	Delete(ctx context.Context, id string) error
	Reset(ctx context.Context, id string) error
	MarkProcessed(ctx context.Context, id string, numChunks int) error
	MarkFailed(ctx context.Context, id, reason string) error
	Count(ctx context.Context) (int, error)
}

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

// Create validates the repository URL, records the project and queues it
// for cloning and extraction.
func (s *Service) Create(ctx context.Context, p *Project, replace bool) error {
	p.RepoURL = strings.TrimSpace(p.RepoURL)
	if err := gitrepo.ValidateURL(p.RepoURL); err != nil {
		return err
	}
	if p.Branch == "" {
		p.Branch = DefaultBranch
	}
	p.RepoName = ingest.RepoName(p.RepoURL)

	if err := s.repo.Save(ctx, p); err != nil {
		return err
	}
	return s.publish(ctx, p, replace)
}

// Reingest queues a known project again, replacing its existing chunks.
func (s *Service) Reingest(ctx context.Context, id string) (*Project, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Reset(ctx, id); err != nil {
		return nil, err
	}
	p.Processed = false
	p.Error = ""
	if err := s.publish(ctx, p, true); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) publish(ctx context.Context, p *Project, replace bool) error {
	payload, err := json.Marshal(worker.RepositoryPayload{
		ProjectID:     p.ID,
		RepoURL:       p.RepoURL,
		Branch:        p.Branch,
		Replace:       replace,
		CorrelationID: middleware.GetCorrelationID(ctx),
	})
	if err != nil {
		return err
	}
	if err := s.pub.Publish(config.TopicIngestRepository, payload); err != nil {
		slog.ErrorContext(ctx, "failed to publish ingest.repository event", "error", err, "id", p.ID)
		if markErr := s.repo.MarkFailed(ctx, p.ID, err.Error()); markErr != nil {
			slog.WarnContext(ctx, "failed to mark project failed", "error", markErr, "id", p.ID)
		}
		return fmt.Errorf("queue project %s: %w", p.ID, err)
	}
	slog.InfoContext(ctx, "published ingest.repository event", "id", p.ID, "repo_url", p.RepoURL, "branch", p.Branch)
	return nil
}

type Detail struct {
	Project
	IndexedChunks int `json:"indexed_chunks"`
}

func (s *Service) Get(ctx context.Context, id string) (*Detail, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	n, err := s.chunks.Count(ctx, vector.Filter{chunk.KeyProjectID: id})
	if err != nil {
		slog.WarnContext(ctx, "failed to count chunks", "error", err, "project_id", id)
		n = 0
	}
	return &Detail{Project: *p, IndexedChunks: n}, nil
}

func (s *Service) List(ctx context.Context) ([]Project, error) {
	return s.repo.List(ctx)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}
	n, err := s.chunks.Delete(ctx, vector.Filter{chunk.KeyProjectID: id})
	if err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	slog.InfoContext(ctx, "deleted project chunks", "project_id", id, "count", n)
	return s.repo.Delete(ctx, id)
}

func (s *Service) MarkProcessed(ctx context.Context, id string, numChunks int) error {
	return s.repo.MarkProcessed(ctx, id, numChunks)
}

func (s *Service) MarkFailed(ctx context.Context, id, reason string) error {
	return s.repo.MarkFailed(ctx, id, reason)
}
