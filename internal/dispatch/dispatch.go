// Package dispatch runs the pipeline off the request path and hands replies
// to channel adapters.
package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/ai-engine/internal/model"
	"github.com/capitalize-ai/ai-engine/pkg/logger"
	"github.com/capitalize-ai/ai-engine/pkg/metrics"
)

var (
	// ErrQueueFull is returned when the dispatcher cannot take more work.
	ErrQueueFull = errors.New("dispatch queue is full")
	// ErrClosed is returned after shutdown.
	ErrClosed = errors.New("dispatcher is closed")
)

// Dispatcher schedules a message for processing without waiting for it.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg model.NormalizedMessage) error
}

// Processor runs the pipeline for one message.
type Processor interface {
	Process(ctx context.Context, msg model.NormalizedMessage) model.AgentResponse
}

// Replier delivers a reply to the channel the message came from.
type Replier interface {
	Reply(ctx context.Context, ev model.ReplyEvent) error
}

// deliver processes msg and hands the reply to replier. Nothing is returned to
// a caller, so every failure is logged and counted here.
func deliver(ctx context.Context, proc Processor, replier Replier, log *logger.Logger, backend string, msg model.NormalizedMessage) {
	resp := proc.Process(ctx, msg)
	if resp.Message == "" {
		metrics.DispatchTasksTotal.WithLabelValues(backend, "ignored").Inc()
		return
	}

	ev := model.ReplyEvent{
		ID:             uuid.Must(uuid.NewV7()).String(),
		TenantID:       msg.TenantID,
		Channel:        msg.Channel,
		ExternalUserID: msg.ExternalUserID,
		Message:        resp.Message,
		Action:         resp.Action,
		LeadStatus:     resp.LeadStatus,
		Confidence:     resp.Confidence,
		ReceivedAt:     msg.Timestamp,
		CreatedAt:      time.Now().UTC(),
		Metadata:       msg.Metadata,
	}

	if err := replier.Reply(ctx, ev); err != nil {
		metrics.DispatchTasksTotal.WithLabelValues(backend, "reply_failed").Inc()
		log.ForSender(msg.TenantID, string(msg.Channel), msg.ExternalUserID).Error("reply delivery failed",
			zap.String("reply_id", ev.ID),
			zap.Error(err),
		)
		return
	}
	metrics.DispatchTasksTotal.WithLabelValues(backend, "delivered").Inc()
}
