package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/capitalize-ai/ai-engine/internal/model"
)

type backend interface {
	FindUserByChannel(ctx context.Context, tenantID string, channel model.Channel, externalID string) (*model.User, error)
	CreateUser(ctx context.Context, u *model.User) (*model.User, error)
	GetUser(ctx context.Context, userID string) (*model.User, error)
	TouchUser(ctx context.Context, userID string, at time.Time) error
	SetLeadStatus(ctx context.Context, userID string, status model.LeadStatus, at time.Time) error
	LatestActiveConversation(ctx context.Context, userID string, channel model.Channel) (*model.Conversation, error)
	GetConversation(ctx context.Context, conversationID string) (*model.Conversation, error)
	CreateConversation(ctx context.Context, c *model.Conversation) error
	AppendMessage(ctx context.Context, m *model.Message) error
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]model.Message, error)
	SaveFeedback(ctx context.Context, tenantID string, fb *model.Feedback) error
	ConversationStats(ctx context.Context, tenantID string, since time.Time) (model.ConversationStats, error)
	LeadCounts(ctx context.Context, tenantID string) (map[model.LeadStatus]int, error)
	LowRated(ctx context.Context, tenantID string, maxRating, limit int) ([]model.LowRatedResponse, error)
	CountUserMessages(ctx context.Context, tenantID string, keywords []string) (int, int, error)
}

var base = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func backends(t *testing.T) map[string]backend {
	t.Helper()

	sqlite, err := Open(context.Background(), SQLite, ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })

	return map[string]backend{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func newUser(id, tenant string, ch model.Channel, ext string) *model.User {
	u := &model.User{ID: id, TenantID: tenant, LeadStatus: model.LeadNew, CreatedAt: base, UpdatedAt: base, LastInteraction: base}
	u.SetChannelID(ch, ext)
	return u
}

func newConversation(id string, u *model.User, ch model.Channel, status model.ConversationStatus, last time.Time) *model.Conversation {
	return &model.Conversation{
		ID: id, TenantID: u.TenantID, UserID: u.ID, Channel: ch, Status: status,
		StartedAt: last, LastActivityAt: last,
	}
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.FindUserByChannel(ctx, "t1", model.ChannelWhatsApp, "+521"); !errors.Is(err, model.ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}

			first, err := s.CreateUser(ctx, newUser("u1", "t1", model.ChannelWhatsApp, "+521"))
			if err != nil {
				t.Fatalf("CreateUser: %v", err)
			}
			if first.ID != "u1" {
				t.Fatalf("expected u1, got %s", first.ID)
			}

			second, err := s.CreateUser(ctx, newUser("u2", "t1", model.ChannelWhatsApp, "+521"))
			if err != nil {
				t.Fatalf("CreateUser duplicate: %v", err)
			}
			if second.ID != "u1" {
				t.Fatalf("duplicate identity should resolve to u1, got %s", second.ID)
			}

			other, err := s.CreateUser(ctx, newUser("u3", "t2", model.ChannelWhatsApp, "+521"))
			if err != nil {
				t.Fatalf("CreateUser other tenant: %v", err)
			}
			if other.ID != "u3" {
				t.Fatalf("same number in another tenant must be a new user, got %s", other.ID)
			}

			later := base.Add(time.Hour)
			if err := s.TouchUser(ctx, "u1", later); err != nil {
				t.Fatalf("TouchUser: %v", err)
			}
			if err := s.SetLeadStatus(ctx, "u1", model.LeadHot, later); err != nil {
				t.Fatalf("SetLeadStatus: %v", err)
			}
			got, err := s.GetUser(ctx, "u1")
			if err != nil {
				t.Fatalf("GetUser: %v", err)
			}
			if !got.LastInteraction.Equal(later) || got.LeadStatus != model.LeadHot {
				t.Fatalf("unexpected user state: %+v", got)
			}
			if err := s.TouchUser(ctx, "missing", later); !errors.Is(err, model.ErrNotFound) {
				t.Fatalf("expected ErrNotFound for missing user, got %v", err)
			}
		})
	}
}

func TestConcurrentCreateUser(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			var wg sync.WaitGroup
			ids := make([]string, 8)
			for i := range ids {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					u, err := s.CreateUser(ctx, newUser(fmt.Sprintf("u%d", i), "t1", model.ChannelVoice, "+5255"))
					if err != nil {
						t.Errorf("CreateUser: %v", err)
						return
					}
					ids[i] = u.ID
				}(i)
			}
			wg.Wait()

			for _, id := range ids {
				if id != ids[0] {
					t.Fatalf("concurrent creation produced different users: %v", ids)
				}
			}
		})
	}
}

func TestConversationsAndMessages(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			u, err := s.CreateUser(ctx, newUser("u1", "t1", model.ChannelWhatsApp, "+521"))
			if err != nil {
				t.Fatalf("CreateUser: %v", err)
			}

			if _, err := s.LatestActiveConversation(ctx, u.ID, model.ChannelWhatsApp); !errors.Is(err, model.ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}

			closed := newConversation("c0", u, model.ChannelWhatsApp, model.ConversationClosed, base.Add(time.Minute))
			older := newConversation("c1", u, model.ChannelWhatsApp, model.ConversationActive, base)
			voice := newConversation("c2", u, model.ChannelVoice, model.ConversationActive, base.Add(2*time.Minute))
			for _, c := range []*model.Conversation{closed, older, voice} {
				if err := s.CreateConversation(ctx, c); err != nil {
					t.Fatalf("CreateConversation: %v", err)
				}
			}

			latest, err := s.LatestActiveConversation(ctx, u.ID, model.ChannelWhatsApp)
			if err != nil {
				t.Fatalf("LatestActiveConversation: %v", err)
			}
			if latest.ID != "c1" {
				t.Fatalf("expected c1, got %s", latest.ID)
			}

			for i, content := range []string{"A", "B", "C"} {
				m := &model.Message{
					ID:             fmt.Sprintf("m%d", i),
					ConversationID: "c1",
					TenantID:       "t1",
					Role:           model.RoleUser,
					Content:        content,
					CreatedAt:      base.Add(time.Duration(i+1) * time.Second),
				}
				if i == 1 {
					m.Role = model.RoleAssistant
					m.Metrics = &model.MessageMetrics{LatencyMs: 120, TokensUsed: 42, Model: "gpt-4o-mini"}
				}
				if err := s.AppendMessage(ctx, m); err != nil {
					t.Fatalf("AppendMessage: %v", err)
				}
			}

			conv, err := s.GetConversation(ctx, "c1")
			if err != nil {
				t.Fatalf("GetConversation: %v", err)
			}
			if want := base.Add(3 * time.Second); !conv.LastActivityAt.Equal(want) {
				t.Fatalf("last activity = %v, want %v", conv.LastActivityAt, want)
			}

			msgs, err := s.RecentMessages(ctx, "c1", 2)
			if err != nil {
				t.Fatalf("RecentMessages: %v", err)
			}
			if len(msgs) != 2 || msgs[0].Content != "B" || msgs[1].Content != "C" {
				t.Fatalf("unexpected recent messages: %+v", msgs)
			}
			if msgs[0].Metrics == nil || msgs[0].Metrics.LatencyMs != 120 || msgs[0].Metrics.Model != "gpt-4o-mini" {
				t.Fatalf("metrics not preserved: %+v", msgs[0].Metrics)
			}

			err = s.AppendMessage(ctx, &model.Message{ID: "mx", ConversationID: "nope", TenantID: "t1", Role: model.RoleUser, Content: "x", CreatedAt: base})
			if !errors.Is(err, model.ErrNotFound) {
				t.Fatalf("expected ErrNotFound for missing conversation, got %v", err)
			}
		})
	}
}

func TestAnalyticsQueries(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			u1, _ := s.CreateUser(ctx, newUser("u1", "t1", model.ChannelWhatsApp, "+521"))
			u2, _ := s.CreateUser(ctx, newUser("u2", "t1", model.ChannelWeb, "w-1"))
			u3, _ := s.CreateUser(ctx, newUser("u3", "t2", model.ChannelWeb, "w-1"))
			if err := s.SetLeadStatus(ctx, u2.ID, model.LeadConverted, base); err != nil {
				t.Fatalf("SetLeadStatus: %v", err)
			}

			for _, c := range []*model.Conversation{
				newConversation("c1", u1, model.ChannelWhatsApp, model.ConversationActive, base),
				newConversation("c2", u2, model.ChannelWeb, model.ConversationActive, base),
				newConversation("c3", u3, model.ChannelWeb, model.ConversationActive, base),
			} {
				if err := s.CreateConversation(ctx, c); err != nil {
					t.Fatalf("CreateConversation: %v", err)
				}
			}

			msgs := []*model.Message{
				{ID: "m1", ConversationID: "c1", TenantID: "t1", Role: model.RoleUser, Content: "Quiero hablar con un HUMANO", CreatedAt: base.Add(time.Second)},
				{ID: "m2", ConversationID: "c1", TenantID: "t1", Role: model.RoleAssistant, Content: "Claro", CreatedAt: base.Add(2 * time.Second), Metrics: &model.MessageMetrics{LatencyMs: 100}},
				{ID: "m3", ConversationID: "c2", TenantID: "t1", Role: model.RoleUser, Content: "hola", CreatedAt: base.Add(3 * time.Second)},
				{ID: "m4", ConversationID: "c2", TenantID: "t1", Role: model.RoleAssistant, Content: "Hola!", CreatedAt: base.Add(4 * time.Second), Metrics: &model.MessageMetrics{LatencyMs: 300}},
				{ID: "m5", ConversationID: "c3", TenantID: "t2", Role: model.RoleUser, Content: "humano", CreatedAt: base.Add(5 * time.Second)},
			}
			for _, m := range msgs {
				if err := s.AppendMessage(ctx, m); err != nil {
					t.Fatalf("AppendMessage: %v", err)
				}
			}

			stats, err := s.ConversationStats(ctx, "t1", base.Add(-time.Hour))
			if err != nil {
				t.Fatalf("ConversationStats: %v", err)
			}
			want := model.ConversationStats{Conversations: 2, Messages: 4, UniqueUsers: 2, AvgLatencyMs: 200}
			if stats != want {
				t.Fatalf("stats = %+v, want %+v", stats, want)
			}

			counts, err := s.LeadCounts(ctx, "t1")
			if err != nil {
				t.Fatalf("LeadCounts: %v", err)
			}
			if counts[model.LeadNew] != 1 || counts[model.LeadConverted] != 1 {
				t.Fatalf("unexpected lead counts: %v", counts)
			}

			total, hits, err := s.CountUserMessages(ctx, "t1", []string{"humano", "queja"})
			if err != nil {
				t.Fatalf("CountUserMessages: %v", err)
			}
			if total != 2 || hits != 1 {
				t.Fatalf("total=%d hits=%d, want 2 and 1", total, hits)
			}

			if err := s.SaveFeedback(ctx, "t2", &model.Feedback{ID: "f0", MessageID: "m2", Rating: 1, Type: model.FeedbackUser, CreatedAt: base}); !errors.Is(err, model.ErrNotFound) {
				t.Fatalf("feedback across tenants must fail, got %v", err)
			}
			for i, rating := range []int{1, 2, 5} {
				msgID := "m2"
				if rating == 5 {
					msgID = "m4"
				}
				fb := &model.Feedback{ID: fmt.Sprintf("f%d", i+1), MessageID: msgID, Rating: rating, Type: model.FeedbackUser, Comment: "c", CreatedAt: base.Add(time.Duration(i) * time.Minute)}
				if err := s.SaveFeedback(ctx, "t1", fb); err != nil {
					t.Fatalf("SaveFeedback: %v", err)
				}
			}

			low, err := s.LowRated(ctx, "t1", 2, 5)
			if err != nil {
				t.Fatalf("LowRated: %v", err)
			}
			if len(low) != 2 || low[0].Rating != 2 || low[1].Rating != 1 || low[0].Content != "Claro" {
				t.Fatalf("unexpected low rated: %+v", low)
			}
		})
	}
}

func TestRebind(t *testing.T) {
	pg := &SQLStore{dialect: Postgres}
	if got := pg.rebind("a = ? AND b = ?"); got != "a = $1 AND b = $2" {
		t.Fatalf("rebind = %q", got)
	}
	lite := &SQLStore{dialect: SQLite}
	if got := lite.rebind("a = ?"); got != "a = ?" {
		t.Fatalf("rebind = %q", got)
	}
}
