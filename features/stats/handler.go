package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/MohamedBiize/DocAI/internal/chunk"
	"github.com/MohamedBiize/DocAI/internal/middleware"
	"github.com/MohamedBiize/DocAI/internal/vector"
)

// Counter is satisfied by every feature repository.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

type ChunkCounter interface {
	Count(ctx context.Context, filter vector.Filter) (int, error)
}

type Handler struct {
	documents  Counter
	projects   Counter
	failedJobs Counter
	chunks     ChunkCounter
}

func NewHandler(documents, projects, failedJobs Counter, chunks ChunkCounter) *Handler {
	return &Handler{documents: documents, projects: projects, failedJobs: failedJobs, chunks: chunks}
}

type StatsResponse struct {
	Documents      int `json:"documents"`
	Projects       int `json:"projects"`
	Chunks         int `json:"chunks"`
	DocumentChunks int `json:"document_chunks"`
	CodeChunks     int `json:"code_chunks"`
	FailedJobs     int `json:"failed_jobs"`
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	slog.InfoContext(ctx, "getting stats")

	var resp StatsResponse
	counts := []struct {
		what  string
		count func() (int, error)
		dst   *int
	}{
		{"documents", func() (int, error) { return h.documents.Count(ctx) }, &resp.Documents},
		{"projects", func() (int, error) { return h.projects.Count(ctx) }, &resp.Projects},
		{"failed jobs", func() (int, error) { return h.failedJobs.Count(ctx) }, &resp.FailedJobs},
		{"chunks", func() (int, error) { return h.chunks.Count(ctx, nil) }, &resp.Chunks},
		{"document chunks", func() (int, error) {
			return h.chunks.Count(ctx, vector.Filter{chunk.KeySourceType: string(chunk.SourceTypeDocument)})
		}, &resp.DocumentChunks},
		{"code chunks", func() (int, error) {
			return h.chunks.Count(ctx, vector.Filter{chunk.KeySourceType: string(chunk.SourceTypeCode)})
		}, &resp.CodeChunks},
	}
	for _, c := range counts {
		n, err := c.count()
		if err != nil {
			slog.ErrorContext(ctx, "failed to count "+c.what, "error", err)
			h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count "+c.what, http.StatusInternalServerError)
			return
		}
		*c.dst = n
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
