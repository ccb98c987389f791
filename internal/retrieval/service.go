package retrieval

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/MohamedBiize/DocAI/internal/chunk"
	"github.com/MohamedBiize/DocAI/internal/middleware"
	"github.com/MohamedBiize/DocAI/internal/vector"
)

const (
	NoQuestionAnswer = "Please provide a question."
	FallbackAnswer   = "Sorry, an error occurred while generating the answer."

	contextSeparator = "\n\n---\n\n"
)

type SourceReference struct {
	Text     string         `json:"text"`
	Metadata chunk.Metadata `json:"metadata"`
	Link     string         `json:"link,omitempty"`
	Score    float64        `json:"score"`
}

type Result struct {
	Answer  string            `json:"answer"`
	Sources []SourceReference `json:"sources"`
}

type Searcher interface {
	Search(ctx context.Context, query string, k int, filter vector.Filter) ([]vector.Hit, error)
}

type Generator interface {
	Generate(ctx context.Context, question, retrieved string) (string, error)
}

type Config struct {
	TopK int
}

type Service struct {
	cfg      Config
	searcher Searcher
	gen      Generator
	logger   *QueryLogger
}

func NewService(cfg Config, s Searcher, g Generator, l *QueryLogger) *Service {
	if cfg.TopK <= 0 {
		cfg.TopK = vector.DefaultTopK
	}
	return &Service{cfg: cfg, searcher: s, gen: g, logger: l}
}

// Answer retrieves the top chunks for question and asks the generator to
// answer from them. It never returns an error: a blank question and any
// retrieval or generation failure produce a fixed answer with no sources.
func (s *Service) Answer(ctx context.Context, question string, filter vector.Filter) Result {
	if strings.TrimSpace(question) == "" {
		return Result{Answer: NoQuestionAnswer, Sources: []SourceReference{}}
	}

	start := time.Now()
	res, err := s.answer(ctx, question, filter)
	if err != nil {
		slog.ErrorContext(ctx, "answer failed", "error", err)
		res = Result{Answer: FallbackAnswer, Sources: []SourceReference{}}
	}

	if s.logger != nil {
		s.logger.Log(QueryLogEntry{
			Query:         question,
			Filter:        filter,
			NumSources:    len(res.Sources),
			Fallback:      err != nil,
			Duration:      time.Since(start),
			CorrelationID: middleware.GetCorrelationID(ctx),
		})
	}
	return res
}

func (s *Service) answer(ctx context.Context, question string, filter vector.Filter) (Result, error) {
	hits, err := s.searcher.Search(ctx, question, s.cfg.TopK, filter)
	if err != nil {
		return Result{}, err
	}

	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.Chunk.Text
	}
	answer, err := s.gen.Generate(ctx, question, strings.Join(texts, contextSeparator))
	if err != nil {
		return Result{}, err
	}

	slog.InfoContext(ctx, "answered question", "sources", len(hits))
	return Result{Answer: answer, Sources: references(hits)}, nil
}

// Search returns the k most similar chunks without generating an answer.
// A k of zero or less uses the configured default.
func (s *Service) Search(ctx context.Context, query string, k int, filter vector.Filter) ([]SourceReference, error) {
	if k <= 0 {
		k = s.cfg.TopK
	}
	hits, err := s.searcher.Search(ctx, query, k, filter)
	if err != nil {
		return nil, err
	}
	return references(hits), nil
}

func references(hits []vector.Hit) []SourceReference {
	refs := make([]SourceReference, len(hits))
	for i, h := range hits {
		link, _ := BuildLink(h.Chunk.Metadata)
		refs[i] = SourceReference{
			Text:     h.Chunk.Text,
			Metadata: h.Chunk.Metadata,
			Link:     link,
			Score:    h.Score,
		}
	}
	return refs
}
