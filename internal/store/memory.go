// Package store provides the durable backends for users, conversations,
// transcripts and feedback.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/capitalize-ai/ai-engine/internal/model"
)

// MemoryStore keeps everything in process memory. It is meant for tests and
// single-process development.
type MemoryStore struct {
	mu            sync.RWMutex
	users         map[string]*model.User
	identities    map[string]string // tenant|channel|external id -> user id
	conversations map[string]*model.Conversation
	messages      map[string][]*model.Message // conversation id -> ordered messages
	messageIndex  map[string]*model.Message
	feedback      []*model.Feedback
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[string]*model.User),
		identities:    make(map[string]string),
		conversations: make(map[string]*model.Conversation),
		messages:      make(map[string][]*model.Message),
		messageIndex:  make(map[string]*model.Message),
	}
}

func identityKey(tenantID string, channel model.Channel, externalID string) string {
	return tenantID + "|" + identityColumn(channel) + "|" + externalID
}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

// FindUserByChannel looks a user up by channel identity.
func (s *MemoryStore) FindUserByChannel(ctx context.Context, tenantID string, channel model.Channel, externalID string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.identities[identityKey(tenantID, channel, externalID)]
	if !ok {
		return nil, model.ErrNotFound
	}
	u := *s.users[id]
	return &u, nil
}

// CreateUser inserts u or returns the existing owner of its identity.
func (s *MemoryStore) CreateUser(ctx context.Context, u *model.User) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []string
	for _, ch := range []model.Channel{model.ChannelWhatsApp, model.ChannelMessenger, model.ChannelVoice, model.ChannelWeb} {
		if id := u.ChannelID(ch); id != "" {
			key := identityKey(u.TenantID, ch, id)
			if owner, ok := s.identities[key]; ok {
				existing := *s.users[owner]
				return &existing, nil
			}
			keys = append(keys, key)
		}
	}

	stored := *u
	s.users[u.ID] = &stored
	for _, key := range keys {
		s.identities[key] = u.ID
	}

	out := stored
	return &out, nil
}

// TouchUser stamps the last interaction time.
func (s *MemoryStore) TouchUser(ctx context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return model.ErrNotFound
	}
	u.LastInteraction = at
	u.UpdatedAt = at
	return nil
}

// SetLeadStatus overwrites a user's lead status.
func (s *MemoryStore) SetLeadStatus(ctx context.Context, userID string, status model.LeadStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return model.ErrNotFound
	}
	u.LeadStatus = status
	u.UpdatedAt = at
	return nil
}

// GetUser returns a user by id.
func (s *MemoryStore) GetUser(ctx context.Context, userID string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, model.ErrNotFound
	}
	out := *u
	return &out, nil
}

// LatestActiveConversation returns the most recently active open conversation.
func (s *MemoryStore) LatestActiveConversation(ctx context.Context, userID string, channel model.Channel) (*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *model.Conversation
	for _, c := range s.conversations {
		if c.UserID != userID || c.Channel != channel || c.Status != model.ConversationActive {
			continue
		}
		if latest == nil || c.LastActivityAt.After(latest.LastActivityAt) {
			latest = c
		}
	}
	if latest == nil {
		return nil, model.ErrNotFound
	}
	out := *latest
	return &out, nil
}

// CreateConversation stores a new conversation.
func (s *MemoryStore) CreateConversation(ctx context.Context, c *model.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *c
	s.conversations[c.ID] = &stored
	return nil
}

// GetConversation returns a conversation by id.
func (s *MemoryStore) GetConversation(ctx context.Context, conversationID string) (*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.conversations[conversationID]
	if !ok {
		return nil, model.ErrNotFound
	}
	out := *c
	return &out, nil
}

// AppendMessage stores m and bumps its conversation's last activity.
func (s *MemoryStore) AppendMessage(ctx context.Context, m *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[m.ConversationID]
	if !ok {
		return model.ErrNotFound
	}

	stored := *m
	s.messages[m.ConversationID] = append(s.messages[m.ConversationID], &stored)
	s.messageIndex[m.ID] = &stored
	if m.CreatedAt.After(c.LastActivityAt) {
		c.LastActivityAt = m.CreatedAt
	}
	return nil
}

// RecentMessages returns the newest limit messages, oldest first.
func (s *MemoryStore) RecentMessages(ctx context.Context, conversationID string, limit int) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.messages[conversationID]
	start := 0
	if len(all) > limit {
		start = len(all) - limit
	}

	out := make([]model.Message, 0, len(all)-start)
	for _, m := range all[start:] {
		out = append(out, *m)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// SaveFeedback stores fb if its message belongs to tenantID.
func (s *MemoryStore) SaveFeedback(ctx context.Context, tenantID string, fb *model.Feedback) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messageIndex[fb.MessageID]
	if !ok || m.TenantID != tenantID {
		return model.ErrNotFound
	}
	stored := *fb
	s.feedback = append(s.feedback, &stored)
	return nil
}

// ConversationStats counts tenant activity since the given time.
func (s *MemoryStore) ConversationStats(ctx context.Context, tenantID string, since time.Time) (model.ConversationStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats model.ConversationStats
	for _, c := range s.conversations {
		if c.TenantID == tenantID && !c.StartedAt.Before(since) {
			stats.Conversations++
		}
	}

	var latencySum float64
	var latencyCount int
	for _, m := range s.messageIndex {
		if m.TenantID != tenantID || m.CreatedAt.Before(since) {
			continue
		}
		stats.Messages++
		if m.Role == model.RoleAssistant && m.Metrics != nil {
			latencySum += float64(m.Metrics.LatencyMs)
			latencyCount++
		}
	}
	if latencyCount > 0 {
		stats.AvgLatencyMs = latencySum / float64(latencyCount)
	}

	for _, u := range s.users {
		if u.TenantID == tenantID && !u.LastInteraction.Before(since) {
			stats.UniqueUsers++
		}
	}
	return stats, nil
}

// LeadCounts groups tenant users by lead status.
func (s *MemoryStore) LeadCounts(ctx context.Context, tenantID string) (map[model.LeadStatus]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[model.LeadStatus]int)
	for _, u := range s.users {
		if u.TenantID == tenantID {
			counts[u.LeadStatus]++
		}
	}
	return counts, nil
}

// LowRated returns assistant replies rated at or below maxRating, newest first.
func (s *MemoryStore) LowRated(ctx context.Context, tenantID string, maxRating, limit int) ([]model.LowRatedResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.LowRatedResponse
	for _, fb := range s.feedback {
		m := s.messageIndex[fb.MessageID]
		if m == nil || m.TenantID != tenantID || m.Role != model.RoleAssistant || fb.Rating > maxRating {
			continue
		}
		out = append(out, model.LowRatedResponse{
			MessageID:         m.ID,
			Content:           m.Content,
			Rating:            fb.Rating,
			Comment:           fb.Comment,
			CorrectedResponse: fb.CorrectedResponse,
			CreatedAt:         fb.CreatedAt,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CountUserMessages counts tenant user messages and how many mention a keyword.
func (s *MemoryStore) CountUserMessages(ctx context.Context, tenantID string, keywords []string) (int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total, hits int
	for _, m := range s.messageIndex {
		if m.TenantID != tenantID || m.Role != model.RoleUser {
			continue
		}
		total++
		lower := strings.ToLower(m.Content)
		for _, kw := range keywords {
			if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
				hits++
				break
			}
		}
	}
	return total, hits, nil
}
