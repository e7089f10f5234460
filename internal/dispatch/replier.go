package dispatch

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/capitalize-ai/ai-engine/internal/model"
	"github.com/capitalize-ai/ai-engine/pkg/logger"
)

// LogReplier logs replies instead of delivering them.
type LogReplier struct {
	logger *logger.Logger
}

// NewLogReplier creates a replier for local development.
func NewLogReplier(log *logger.Logger) *LogReplier {
	return &LogReplier{logger: log.Named("reply")}
}

// Reply logs ev.
func (r *LogReplier) Reply(ctx context.Context, ev model.ReplyEvent) error {
	r.logger.Info("reply",
		zap.String("tenant_id", ev.TenantID),
		zap.String("channel", string(ev.Channel)),
		zap.String("user_id", ev.ExternalUserID),
		zap.String("action", string(ev.Action)),
		zap.String("lead_status", string(ev.LeadStatus)),
		zap.String("message", model.Truncate(ev.Message, 80)),
	)
	return nil
}

// ReplyPublisher publishes replies on a stream.
type ReplyPublisher interface {
	PublishReply(ctx context.Context, ev model.ReplyEvent) (uint64, error)
}

// JetStreamReplier publishes replies for channel adapters to consume.
type JetStreamReplier struct {
	publisher ReplyPublisher
}

// NewJetStreamReplier creates a replier over publisher.
func NewJetStreamReplier(publisher ReplyPublisher) *JetStreamReplier {
	return &JetStreamReplier{publisher: publisher}
}

// Reply publishes ev.
func (r *JetStreamReplier) Reply(ctx context.Context, ev model.ReplyEvent) error {
	if _, err := r.publisher.PublishReply(ctx, ev); err != nil {
		return fmt.Errorf("failed to publish reply: %w", err)
	}
	return nil
}
