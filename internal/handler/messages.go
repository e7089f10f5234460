package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/ai-engine/internal/dispatch"
	"github.com/capitalize-ai/ai-engine/internal/middleware"
	"github.com/capitalize-ai/ai-engine/internal/model"
	"github.com/capitalize-ai/ai-engine/pkg/logger"
)

// InboundRequest is the body accepted by the message endpoints.
type InboundRequest struct {
	UserID    string            `json:"user_id"`
	Channel   string            `json:"channel"`
	Message   string            `json:"message"`
	Timestamp *time.Time        `json:"timestamp,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// MessageHandler handles inbound message endpoints.
type MessageHandler struct {
	processor  dispatch.Processor
	dispatcher dispatch.Dispatcher
	logger     *logger.Logger
	now        func() time.Time
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(processor dispatch.Processor, dispatcher dispatch.Dispatcher, log *logger.Logger) *MessageHandler {
	return &MessageHandler{
		processor:  processor,
		dispatcher: dispatcher,
		logger:     log.Named("handler.messages"),
		now:        time.Now,
	}
}

// normalize validates the body and builds the envelope for the caller's tenant.
func (h *MessageHandler) normalize(w http.ResponseWriter, r *http.Request) (model.NormalizedMessage, bool) {
	var req InboundRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return model.NormalizedMessage{}, false
	}

	if strings.TrimSpace(req.UserID) == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return model.NormalizedMessage{}, false
	}
	if err := middleware.ValidateChannel(req.Channel); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return model.NormalizedMessage{}, false
	}
	if err := middleware.ValidateMessageText(req.Message); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return model.NormalizedMessage{}, false
	}

	channel, _ := model.ParseChannel(req.Channel)
	ts := h.now().UTC()
	if req.Timestamp != nil && !req.Timestamp.IsZero() {
		ts = req.Timestamp.UTC()
	}

	tenantID := middleware.GetTenantID(r.Context())
	return model.NewNormalizedMessage(tenantID, channel, req.UserID, req.Message, ts, req.Metadata), true
}

// Process handles POST /api/v1/messages and answers with the agent reply.
func (h *MessageHandler) Process(w http.ResponseWriter, r *http.Request) {
	msg, ok := h.normalize(w, r)
	if !ok {
		return
	}

	if msg.IsEmpty() {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	// A disconnecting client must not cut the pipeline short.
	resp := h.processor.Process(context.WithoutCancel(r.Context()), msg)
	writeJSON(w, http.StatusOK, resp)
}

// Inbound handles POST /api/v1/inbound. The reply is delivered through the
// configured replier, never on this response.
func (h *MessageHandler) Inbound(w http.ResponseWriter, r *http.Request) {
	msg, ok := h.normalize(w, r)
	if !ok {
		return
	}

	if msg.IsEmpty() {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	err := h.dispatcher.Dispatch(r.Context(), msg)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	case errors.Is(err, dispatch.ErrQueueFull), errors.Is(err, dispatch.ErrClosed):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "dispatcher unavailable")
	default:
		h.logger.Error("failed to dispatch message",
			zap.String("tenant_id", msg.TenantID),
			zap.String("channel", string(msg.Channel)),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "failed to dispatch message")
	}
}
