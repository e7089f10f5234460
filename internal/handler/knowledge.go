package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/ai-engine/internal/knowledge"
	"github.com/capitalize-ai/ai-engine/internal/middleware"
	"github.com/capitalize-ai/ai-engine/pkg/logger"
)

const (
	defaultSearchTopK = 3
	maxSearchTopK     = 20
)

// KnowledgeBase is the retriever surface used by the API.
type KnowledgeBase interface {
	Search(ctx context.Context, tenantID, query string, topK int) []knowledge.Snippet
	Index(ctx context.Context, tenantID, content string, metadata map[string]string) (uint64, error)
	Delete(ctx context.Context, tenantID string, id uint64) error
	Clear(ctx context.Context, tenantID string) error
}

// KnowledgeHandler manages tenant documents.
type KnowledgeHandler struct {
	kb     KnowledgeBase
	logger *logger.Logger
}

// NewKnowledgeHandler creates a new knowledge handler.
func NewKnowledgeHandler(kb KnowledgeBase, log *logger.Logger) *KnowledgeHandler {
	return &KnowledgeHandler{
		kb:     kb,
		logger: log.Named("handler.knowledge"),
	}
}

type indexRequest struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type searchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

// Index handles POST /api/v1/knowledge
func (h *KnowledgeHandler) Index(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)

	var req indexRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateDocument(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := h.kb.Index(ctx, tenantID, req.Content, req.Metadata)
	if err != nil {
		h.logger.Error("failed to index document", zap.String("tenant_id", tenantID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to index document")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"document_id": strconv.FormatUint(id, 10),
	})
}

// Search handles POST /api/v1/knowledge/search
func (h *KnowledgeHandler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req searchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	if req.TopK <= 0 {
		req.TopK = defaultSearchTopK
	}
	if req.TopK > maxSearchTopK {
		req.TopK = maxSearchTopK
	}

	snippets := h.kb.Search(ctx, middleware.GetTenantID(ctx), req.Query, req.TopK)
	if snippets == nil {
		snippets = []knowledge.Snippet{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"results": snippets,
	})
}

// Delete handles DELETE /api/v1/knowledge/{id}
func (h *KnowledgeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)

	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid document ID")
		return
	}

	if err := h.kb.Delete(ctx, tenantID, id); err != nil {
		h.logger.Error("failed to delete document", zap.String("tenant_id", tenantID), zap.Uint64("document_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to delete document")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Clear handles DELETE /api/v1/knowledge
func (h *KnowledgeHandler) Clear(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)

	if err := h.kb.Clear(ctx, tenantID); err != nil {
		h.logger.Error("failed to clear knowledge", zap.String("tenant_id", tenantID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to clear knowledge")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
