package document

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/MohamedBiize/DocAI/internal/middleware"
)

// FormatChecker reports whether a file can be loaded for ingestion.
type FormatChecker interface {
	Supports(path string) bool
}

type HandlerConfig struct {
	UploadDir      string
	MaxUploadBytes int64
}

type Handler struct {
	service *Service
	formats FormatChecker
	cfg     HandlerConfig
}

func NewHandler(service *Service, formats FormatChecker, cfg HandlerConfig) *Handler {
	if cfg.UploadDir == "" {
		cfg.UploadDir = "./uploads"
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 50 << 20
	}
	return &Handler{service: service, formats: formats, cfg: cfg}
}

func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)

	if err := r.ParseMultipartForm(h.cfg.MaxUploadBytes); err != nil {
		h.writeError(ctx, w, "BAD_REQUEST", "File too large or malformed form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(ctx, w, "BAD_REQUEST", "Unable to retrieve file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if !h.formats.Supports(name) {
		h.writeError(ctx, w, "BAD_REQUEST", fmt.Sprintf("Unsupported file type %q", strings.ToLower(filepath.Ext(name))), http.StatusBadRequest)
		return
	}

	replace := false
	if v := r.FormValue("replace"); v != "" {
		if replace, err = strconv.ParseBool(v); err != nil {
			h.writeError(ctx, w, "VALIDATION_ERROR", "replace must be a boolean", http.StatusBadRequest)
			return
		}
	}

	var metadata map[string]any
	if v := r.FormValue("metadata"); v != "" {
		if err := json.Unmarshal([]byte(v), &metadata); err != nil {
			h.writeError(ctx, w, "VALIDATION_ERROR", "metadata must be a JSON object", http.StatusBadRequest)
			return
		}
	}

	if err := os.MkdirAll(h.cfg.UploadDir, 0o750); err != nil {
		slog.ErrorContext(ctx, "failed to create upload directory", "error", err, "path", filepath.Clean(h.cfg.UploadDir))
		h.writeError(ctx, w, "INTERNAL_ERROR", "Failed to create upload directory", http.StatusInternalServerError)
		return
	}

	path := filepath.Clean(filepath.Join(h.cfg.UploadDir, fmt.Sprintf("%s_%s", uuid.New().String(), name)))
	if err := saveFile(path, file); err != nil {
		slog.ErrorContext(ctx, "failed to save upload", "error", err, "path", path)
		h.writeError(ctx, w, "INTERNAL_ERROR", "Failed to save file", http.StatusInternalServerError)
		return
	}

	doc := &Document{
		Filename:     name,
		FilePath:     path,
		DocumentType: r.FormValue("document_type"),
		Metadata:     metadata,
	}
	if err := h.service.Upload(ctx, doc, replace); err != nil {
		if doc.ID == "" {
			if removeErr := os.Remove(path); removeErr != nil {
				slog.WarnContext(ctx, "failed to clean up uploaded file", "error", removeErr, "path", path)
			}
		}
		slog.ErrorContext(ctx, "upload failed", "error", err, "filename", name)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(ctx, w, http.StatusAccepted, map[string]interface{}{"data": doc})
}

func saveFile(path string, src io.Reader) error {
	dst, err := os.Create(path) // #nosec G304 -- path is UUID prefixed basename under the upload dir
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return err
	}
	return dst.Close()
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	docs, err := h.service.List(r.Context())
	if err != nil {
		h.writeError(r.Context(), w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	if docs == nil {
		docs = []Document{}
	}
	h.writeJSON(r.Context(), w, http.StatusOK, map[string]interface{}{
		"data": docs,
		"meta": map[string]int{"count": len(docs)},
	})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	detail, err := h.service.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeLookupError(r.Context(), w, err)
		return
	}
	h.writeJSON(r.Context(), w, http.StatusOK, map[string]interface{}{"data": detail})
}

func (h *Handler) Reingest(w http.ResponseWriter, r *http.Request) {
	doc, err := h.service.Reingest(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeLookupError(r.Context(), w, err)
		return
	}
	h.writeJSON(r.Context(), w, http.StatusAccepted, map[string]interface{}{"data": doc})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), r.PathValue("id")); err != nil {
		h.writeLookupError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) writeLookupError(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, sql.ErrNoRows) {
		h.writeError(ctx, w, "NOT_FOUND", "Document not found", http.StatusNotFound)
		return
	}
	slog.ErrorContext(ctx, "document operation failed", "error", err)
	h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
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
