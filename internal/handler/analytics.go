package handler

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/capitalize-ai/ai-engine/internal/analytics"
	"github.com/capitalize-ai/ai-engine/internal/middleware"
	"github.com/capitalize-ai/ai-engine/internal/model"
	"github.com/capitalize-ai/ai-engine/pkg/logger"
)

// Reports is the analytics surface used by the API.
type Reports interface {
	SaveFeedback(ctx context.Context, tenantID string, fb model.Feedback) (*model.Feedback, error)
	ConversationMetrics(ctx context.Context, tenantID string, days int) (model.ConversationMetrics, error)
	LeadFunnel(ctx context.Context, tenantID string) (model.LeadFunnel, error)
	LowRatedResponses(ctx context.Context, tenantID string, limit int) ([]model.LowRatedResponse, error)
	EscalationPatterns(ctx context.Context, tenantID string) (model.EscalationReport, error)
}

// AnalyticsHandler serves feedback and tenant reports.
type AnalyticsHandler struct {
	reports Reports
	logger  *logger.Logger
}

// NewAnalyticsHandler creates a new analytics handler.
func NewAnalyticsHandler(reports Reports, log *logger.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{
		reports: reports,
		logger:  log.Named("handler.analytics"),
	}
}

type feedbackRequest struct {
	MessageID         string             `json:"message_id"`
	Rating            int                `json:"rating"`
	Type              model.FeedbackType `json:"feedback_type,omitempty"`
	Comment           string             `json:"comment,omitempty"`
	CorrectedResponse string             `json:"corrected_response,omitempty"`
}

// Feedback handles POST /api/v1/feedback
func (h *AnalyticsHandler) Feedback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)

	var req feedbackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateMessageID(req.MessageID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	fb, err := h.reports.SaveFeedback(ctx, tenantID, model.Feedback{
		MessageID:         req.MessageID,
		Rating:            req.Rating,
		Type:              req.Type,
		Comment:           req.Comment,
		CorrectedResponse: req.CorrectedResponse,
	})
	switch {
	case errors.Is(err, analytics.ErrInvalidRating), errors.Is(err, analytics.ErrInvalidFeedbackType):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, "message not found")
		return
	case err != nil:
		h.fail(w, tenantID, "failed to save feedback", err)
		return
	}

	writeJSON(w, http.StatusCreated, fb)
}

// Conversations handles GET /api/v1/analytics/conversations
func (h *AnalyticsHandler) Conversations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)

	days, err := queryInt(r, "days", 7)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	m, err := h.reports.ConversationMetrics(ctx, tenantID, days)
	if err != nil {
		h.fail(w, tenantID, "failed to compute conversation metrics", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// Funnel handles GET /api/v1/analytics/funnel
func (h *AnalyticsHandler) Funnel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)

	f, err := h.reports.LeadFunnel(ctx, tenantID)
	if err != nil {
		h.fail(w, tenantID, "failed to compute lead funnel", err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// Escalations handles GET /api/v1/analytics/escalations
func (h *AnalyticsHandler) Escalations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)

	rep, err := h.reports.EscalationPatterns(ctx, tenantID)
	if err != nil {
		h.fail(w, tenantID, "failed to compute escalation patterns", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// LowRated handles GET /api/v1/analytics/low-rated
func (h *AnalyticsHandler) LowRated(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)

	limit, err := queryInt(r, "limit", 5)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, err := h.reports.LowRatedResponses(ctx, tenantID, limit)
	if err != nil {
		h.fail(w, tenantID, "failed to list low rated responses", err)
		return
	}
	if items == nil {
		items = []model.LowRatedResponse{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"responses": items,
	})
}

func (h *AnalyticsHandler) fail(w http.ResponseWriter, tenantID, msg string, err error) {
	h.logger.Error(msg, zap.String("tenant_id", tenantID), zap.Error(err))
	writeError(w, http.StatusInternalServerError, msg)
}
