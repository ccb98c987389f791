package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/MohamedBiize/DocAI/internal/middleware"
	"github.com/MohamedBiize/DocAI/internal/vector"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req struct {
		Question string        `json:"question"`
		Filter   vector.Filter `json:"filter"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	h.writeJSON(ctx, w, http.StatusOK, map[string]interface{}{"data": h.service.Ask(ctx, req.Question, req.Filter)})
}

func (h *Handler) CodeQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req struct {
		Question  string `json:"question"`
		RepoURL   string `json:"repo_url"`
		ProjectID string `json:"project_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	h.writeJSON(ctx, w, http.StatusOK, map[string]interface{}{"data": h.service.CodeQuery(ctx, req.Question, req.RepoURL, req.ProjectID)})
}

func (h *Handler) Feedback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var f Feedback
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}
	if f.QueryID == "" {
		h.writeError(ctx, w, "VALIDATION_ERROR", "query_id is required", http.StatusBadRequest)
		return
	}

	if err := h.service.Feedback(ctx, &f); err != nil {
		switch {
		case errors.Is(err, ErrInvalidRating):
			h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		case errors.Is(err, ErrUnknownQuery):
			h.writeError(ctx, w, "NOT_FOUND", err.Error(), http.StatusNotFound)
		default:
			slog.ErrorContext(ctx, "failed to store feedback", "error", err, "query_id", f.QueryID)
			h.writeError(ctx, w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		}
		return
	}

	h.writeJSON(ctx, w, http.StatusCreated, map[string]interface{}{"data": f})
}

func (h *Handler) writeJSON(ctx context.Context, w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
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
