// Package analytics records feedback and answers read-only reporting queries
// over the transcript and session data.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/ai-engine/internal/model"
	"github.com/capitalize-ai/ai-engine/internal/tenant"
	"github.com/capitalize-ai/ai-engine/pkg/logger"
)

var (
	// ErrInvalidRating is returned for ratings outside 1..5.
	ErrInvalidRating = errors.New("rating must be between 1 and 5")
	// ErrInvalidFeedbackType is returned for unknown feedback types.
	ErrInvalidFeedbackType = errors.New("feedback type must be user or supervisor")
)

const (
	defaultDays     = 7
	defaultLowLimit = 5
	lowRatingMax    = 2
	previewLength   = 200

	// Escalation rates at or above this percentage need attention.
	escalationThreshold = 10.0
)

// Store is the reporting side of the storage backends.
type Store interface {
	SaveFeedback(ctx context.Context, tenantID string, fb *model.Feedback) error
	ConversationStats(ctx context.Context, tenantID string, since time.Time) (model.ConversationStats, error)
	LeadCounts(ctx context.Context, tenantID string) (map[model.LeadStatus]int, error)
	LowRated(ctx context.Context, tenantID string, maxRating, limit int) ([]model.LowRatedResponse, error)
	CountUserMessages(ctx context.Context, tenantID string, keywords []string) (total, hits int, err error)
}

// Profiles supplies tenant escalation keywords.
type Profiles interface {
	Get(ctx context.Context, tenantID string) (tenant.Profile, error)
}

// Service implements feedback and reporting.
type Service struct {
	store    Store
	profiles Profiles
	logger   *logger.Logger
	now      func() time.Time
}

// NewService creates a service. A nil profiles uses the default keywords.
func NewService(store Store, profiles Profiles, log *logger.Logger) *Service {
	return NewServiceWithClock(store, profiles, log, time.Now)
}

// NewServiceWithClock creates a service that reads time from now.
func NewServiceWithClock(store Store, profiles Profiles, log *logger.Logger, now func() time.Time) *Service {
	return &Service{
		store:    store,
		profiles: profiles,
		logger:   log.Named("analytics"),
		now:      now,
	}
}

// SaveFeedback validates and stores a rating. The message must belong to tenantID.
func (s *Service) SaveFeedback(ctx context.Context, tenantID string, fb model.Feedback) (*model.Feedback, error) {
	if fb.Rating < 1 || fb.Rating > 5 {
		return nil, ErrInvalidRating
	}
	if fb.Type == "" {
		fb.Type = model.FeedbackUser
	}
	if fb.Type != model.FeedbackUser && fb.Type != model.FeedbackSupervisor {
		return nil, ErrInvalidFeedbackType
	}

	fb.ID = uuid.Must(uuid.NewV7()).String()
	fb.CreatedAt = s.now().UTC()

	if err := s.store.SaveFeedback(ctx, tenantID, &fb); err != nil {
		return nil, fmt.Errorf("failed to save feedback: %w", err)
	}

	s.logger.Info("feedback saved",
		zap.String("tenant_id", tenantID),
		zap.String("message_id", fb.MessageID),
		zap.Int("rating", fb.Rating),
		zap.String("feedback_type", string(fb.Type)),
	)
	return &fb, nil
}

// ConversationMetrics aggregates the last days of activity. Non-positive days means 7.
func (s *Service) ConversationMetrics(ctx context.Context, tenantID string, days int) (model.ConversationMetrics, error) {
	if days <= 0 {
		days = defaultDays
	}
	since := s.now().UTC().AddDate(0, 0, -days)

	stats, err := s.store.ConversationStats(ctx, tenantID, since)
	if err != nil {
		return model.ConversationMetrics{}, fmt.Errorf("failed to load conversation stats: %w", err)
	}

	return model.ConversationMetrics{
		PeriodDays:              days,
		TotalConversations:      stats.Conversations,
		TotalMessages:           stats.Messages,
		AvgResponseTimeMs:       round2(stats.AvgLatencyMs),
		UniqueUsers:             stats.UniqueUsers,
		MessagesPerConversation: round2(float64(stats.Messages) / float64(max(stats.Conversations, 1))),
	}, nil
}

// LeadFunnel counts users per lead status. Every status is present.
func (s *Service) LeadFunnel(ctx context.Context, tenantID string) (model.LeadFunnel, error) {
	counts, err := s.store.LeadCounts(ctx, tenantID)
	if err != nil {
		return model.LeadFunnel{}, fmt.Errorf("failed to count leads: %w", err)
	}

	funnel := make(map[model.LeadStatus]int, len(model.LeadStatuses))
	total := 0
	for _, status := range model.LeadStatuses {
		funnel[status] = counts[status]
		total += counts[status]
	}

	return model.LeadFunnel{
		Funnel:         funnel,
		TotalLeads:     total,
		ConversionRate: round2(float64(funnel[model.LeadConverted]) / float64(max(total, 1)) * 100),
	}, nil
}

// LowRatedResponses returns replies rated 2 or lower, newest first.
func (s *Service) LowRatedResponses(ctx context.Context, tenantID string, limit int) ([]model.LowRatedResponse, error) {
	if limit <= 0 {
		limit = defaultLowLimit
	}
	rows, err := s.store.LowRated(ctx, tenantID, lowRatingMax, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load low rated responses: %w", err)
	}
	for i := range rows {
		rows[i].Content = model.Truncate(rows[i].Content, previewLength)
	}
	return rows, nil
}

// EscalationPatterns reports how many user messages ask for a human, using
// the tenant's escalation keywords.
func (s *Service) EscalationPatterns(ctx context.Context, tenantID string) (model.EscalationReport, error) {
	keywords := tenant.DefaultEscalationKeywords
	if s.profiles != nil {
		p, err := s.profiles.Get(ctx, tenantID)
		if err != nil {
			s.logger.Warn("using default escalation keywords",
				zap.String("tenant_id", tenantID),
				zap.Error(err),
			)
		} else if len(p.EscalationKeywords) > 0 {
			keywords = p.EscalationKeywords
		}
	}

	total, hits, err := s.store.CountUserMessages(ctx, tenantID, keywords)
	if err != nil {
		return model.EscalationReport{}, fmt.Errorf("failed to count user messages: %w", err)
	}

	rate := round2(float64(hits) / float64(max(total, 1)) * 100)
	status := "healthy"
	if rate >= escalationThreshold {
		status = "needs_attention"
	}
	return model.EscalationReport{
		TotalUserMessages: total,
		EscalationHits:    hits,
		EscalationRate:    rate,
		Status:            status,
	}, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
