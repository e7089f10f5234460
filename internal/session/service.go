// Package session resolves inbound identities to users and time-bounded conversations.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/ai-engine/internal/model"
	"github.com/capitalize-ai/ai-engine/pkg/logger"
	"github.com/capitalize-ai/ai-engine/pkg/metrics"
)

// DefaultInactivityWindow is how long a conversation stays open without activity.
const DefaultInactivityWindow = 30 * time.Minute

// Repository is the durable storage behind the session store.
type Repository interface {
	// FindUserByChannel returns model.ErrNotFound when no user has the identity.
	FindUserByChannel(ctx context.Context, tenantID string, channel model.Channel, externalID string) (*model.User, error)
	// CreateUser inserts u unless a user with the same identity exists, and
	// returns whichever user owns the identity afterwards.
	CreateUser(ctx context.Context, u *model.User) (*model.User, error)
	TouchUser(ctx context.Context, userID string, at time.Time) error
	// LatestActiveConversation returns model.ErrNotFound when none exists.
	LatestActiveConversation(ctx context.Context, userID string, channel model.Channel) (*model.Conversation, error)
	CreateConversation(ctx context.Context, c *model.Conversation) error
	SetLeadStatus(ctx context.Context, userID string, status model.LeadStatus, at time.Time) error
}

// Service implements user and conversation resolution.
type Service struct {
	repo   Repository
	logger *logger.Logger
	now    func() time.Time
}

// NewService creates a session service using the wall clock.
func NewService(repo Repository, log *logger.Logger) *Service {
	return NewServiceWithClock(repo, log, time.Now)
}

// NewServiceWithClock creates a session service with a custom clock.
func NewServiceWithClock(repo Repository, log *logger.Logger, now func() time.Time) *Service {
	return &Service{repo: repo, logger: log, now: now}
}

// ResolveUser returns the user owning (tenant, channel, externalID), creating it on first contact.
func (s *Service) ResolveUser(ctx context.Context, tenantID string, channel model.Channel, externalID string) (*model.User, error) {
	now := s.now().UTC()

	existing, err := s.repo.FindUserByChannel(ctx, tenantID, channel, externalID)
	switch {
	case err == nil:
		if err := s.repo.TouchUser(ctx, existing.ID, now); err != nil {
			return nil, fmt.Errorf("failed to touch user: %w", err)
		}
		existing.LastInteraction = now
		return existing, nil
	case !errors.Is(err, model.ErrNotFound):
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	candidate := &model.User{
		ID:              uuid.Must(uuid.NewV7()).String(),
		TenantID:        tenantID,
		LeadStatus:      model.LeadNew,
		CreatedAt:       now,
		UpdatedAt:       now,
		LastInteraction: now,
	}
	candidate.SetChannelID(channel, externalID)

	user, err := s.repo.CreateUser(ctx, candidate)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	if user.ID != candidate.ID {
		// Lost a creation race; the winner still needs its interaction stamp.
		if err := s.repo.TouchUser(ctx, user.ID, now); err != nil {
			return nil, fmt.Errorf("failed to touch user: %w", err)
		}
		user.LastInteraction = now
		return user, nil
	}

	metrics.UsersCreated.WithLabelValues(string(channel)).Inc()
	s.logger.Info("user created",
		zap.String("tenant_id", tenantID),
		zap.String("user_id", user.ID),
		zap.String("channel", string(channel)),
	)

	return user, nil
}

// ResolveConversation returns the user's active conversation on channel if it
// saw activity within window, otherwise starts a new one.
func (s *Service) ResolveConversation(ctx context.Context, user *model.User, channel model.Channel, window time.Duration) (*model.Conversation, error) {
	if window <= 0 {
		window = DefaultInactivityWindow
	}
	now := s.now().UTC()

	conv, err := s.repo.LatestActiveConversation(ctx, user.ID, channel)
	switch {
	case err == nil:
		if conv.Fresh(now, window) {
			return conv, nil
		}
	case !errors.Is(err, model.ErrNotFound):
		return nil, fmt.Errorf("failed to find conversation: %w", err)
	}

	conv = &model.Conversation{
		ID:             uuid.Must(uuid.NewV7()).String(),
		TenantID:       user.TenantID,
		UserID:         user.ID,
		Channel:        channel,
		Status:         model.ConversationActive,
		StartedAt:      now,
		LastActivityAt: now,
	}

	if err := s.repo.CreateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	metrics.ConversationsTotal.WithLabelValues(string(channel)).Inc()
	s.logger.Debug("conversation started",
		zap.String("tenant_id", user.TenantID),
		zap.String("conversation_id", conv.ID),
		zap.String("user_id", user.ID),
	)

	return conv, nil
}

// UpdateLeadStatus overwrites the user's lead status.
func (s *Service) UpdateLeadStatus(ctx context.Context, user *model.User, status model.LeadStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid lead status %q", status)
	}
	now := s.now().UTC()

	if err := s.repo.SetLeadStatus(ctx, user.ID, status, now); err != nil {
		return fmt.Errorf("failed to update lead status: %w", err)
	}

	metrics.LeadUpdatesTotal.WithLabelValues(string(user.LeadStatus), string(status)).Inc()
	user.LeadStatus = status
	user.UpdatedAt = now
	return nil
}
