package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/MohamedBiize/DocAI/internal/chunk"
	"github.com/MohamedBiize/DocAI/internal/retrieval"
	"github.com/MohamedBiize/DocAI/internal/vector"
)

var (
	ErrInvalidRating = errors.New("rating must be between 1 and 5")
	ErrUnknownQuery  = errors.New("query not found")
)

// Exchange is one answered question as stored in chat_history.
type Exchange struct {
	ID        string                      `json:"id"`
	Question  string                      `json:"question"`
	Answer    string                      `json:"answer"`
	Filter    vector.Filter               `json:"filter,omitempty"`
	Sources   []retrieval.SourceReference `json:"sources"`
	CreatedAt time.Time                   `json:"created_at"`
}

type Feedback struct {
	ID        string    `json:"id"`
	QueryID   string    `json:"query_id"`
	Rating    int       `json:"rating"`
	Comments  string    `json:"comments,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Answerer interface {
	Answer(ctx context.Context, question string, filter vector.Filter) retrieval.Result
}

type Repository interface {
	SaveExchange(ctx context.Context, e *Exchange) error
	SaveFeedback(ctx context.Context, f *Feedback) error
}

type Service struct {
	answerer Answerer
	repo     Repository
}

func NewService(a Answerer, repo Repository) *Service {
	return &Service{answerer: a, repo: repo}
}

type Reply struct {
	retrieval.Result
	QueryID string `json:"query_id,omitempty"`
}

// Ask answers question and records the exchange. History is best-effort: a
// failed insert is logged and the reply carries no query id.
func (s *Service) Ask(ctx context.Context, question string, filter vector.Filter) Reply {
	res := s.answerer.Answer(ctx, question, filter)
	reply := Reply{Result: res}
	if strings.TrimSpace(question) == "" {
		return reply
	}

	e := &Exchange{Question: question, Answer: res.Answer, Filter: filter, Sources: res.Sources}
	if err := s.repo.SaveExchange(ctx, e); err != nil {
		slog.WarnContext(ctx, "failed to store chat history", "error", err)
		return reply
	}
	reply.QueryID = e.ID
	return reply
}

// CodeQuery restricts the question to code chunks, optionally of one
// repository or project.
func (s *Service) CodeQuery(ctx context.Context, question, repoURL, projectID string) Reply {
	return s.Ask(ctx, question, CodeFilter(repoURL, projectID))
}

func CodeFilter(repoURL, projectID string) vector.Filter {
	f := vector.Filter{chunk.KeySourceType: string(chunk.SourceTypeCode)}
	if repoURL != "" {
		f[chunk.KeyRepoURL] = repoURL
	}
	if projectID != "" {
		f[chunk.KeyProjectID] = projectID
	}
	return f
}

func (s *Service) Feedback(ctx context.Context, f *Feedback) error {
	if f.Rating < 1 || f.Rating > 5 {
		return ErrInvalidRating
	}
	return s.repo.SaveFeedback(ctx, f)
}
