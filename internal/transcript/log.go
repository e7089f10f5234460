// Package transcript keeps the append-only message record of each conversation.
package transcript

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/capitalize-ai/ai-engine/internal/model"
	"github.com/capitalize-ai/ai-engine/pkg/logger"
	"github.com/capitalize-ai/ai-engine/pkg/metrics"
)

// Repository is the durable storage behind the log.
type Repository interface {
	// AppendMessage stores m and moves its conversation's last activity to m.CreatedAt.
	AppendMessage(ctx context.Context, m *model.Message) error
	// RecentMessages returns the newest limit messages in ascending creation order.
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]model.Message, error)
}

// Log appends and replays transcript entries.
type Log struct {
	repo   Repository
	logger *logger.Logger
	now    func() time.Time
}

// NewLog creates a transcript log using the wall clock.
func NewLog(repo Repository, log *logger.Logger) *Log {
	return NewLogWithClock(repo, log, time.Now)
}

// NewLogWithClock creates a transcript log with a custom clock.
func NewLogWithClock(repo Repository, log *logger.Logger, now func() time.Time) *Log {
	return &Log{repo: repo, logger: log, now: now}
}

// Append writes one entry to conv. On success conv.LastActivityAt reflects the new entry.
func (l *Log) Append(ctx context.Context, conv *model.Conversation, role model.Role, content string, m *model.MessageMetrics) (*model.Message, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("invalid role %q", role)
	}

	msg := &model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conv.ID,
		TenantID:       conv.TenantID,
		Role:           role,
		Content:        content,
		CreatedAt:      l.now().UTC(),
		Metrics:        m,
	}

	if err := l.repo.AppendMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to append message: %w", err)
	}

	conv.LastActivityAt = msg.CreatedAt
	metrics.MessagesTotal.WithLabelValues(string(conv.Channel), string(role)).Inc()

	return msg, nil
}

// History returns the last limit entries of a conversation, oldest first.
func (l *Log) History(ctx context.Context, conversationID string, limit int) ([]model.HistoryEntry, error) {
	if limit <= 0 {
		return nil, nil
	}

	msgs, err := l.repo.RecentMessages(ctx, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history: %w", err)
	}

	history := make([]model.HistoryEntry, 0, len(msgs))
	for _, m := range msgs {
		history = append(history, model.HistoryEntry{Role: m.Role, Content: m.Content})
	}
	return history, nil
}
