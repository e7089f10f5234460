package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/capitalize-ai/ai-engine/internal/model"
	"github.com/capitalize-ai/ai-engine/internal/session"
	"github.com/capitalize-ai/ai-engine/internal/store"
	"github.com/capitalize-ai/ai-engine/pkg/logger"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newService(t *testing.T) (*session.Service, *store.MemoryStore, *clock) {
	t.Helper()
	clk := &clock{now: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
	repo := store.NewMemoryStore()
	return session.NewServiceWithClock(repo, logger.NewNop(), clk.Now), repo, clk
}

func TestResolveUserCreatesThenTouches(t *testing.T) {
	ctx := context.Background()
	svc, repo, clk := newService(t)

	first, err := svc.ResolveUser(ctx, "t1", model.ChannelWhatsApp, "+5215550001")
	if err != nil {
		t.Fatalf("ResolveUser: %v", err)
	}
	if first.LeadStatus != model.LeadNew {
		t.Fatalf("new user lead status = %q, want new", first.LeadStatus)
	}
	if first.WhatsAppID != "+5215550001" {
		t.Fatalf("whatsapp id not set: %+v", first)
	}

	clk.Advance(5 * time.Minute)
	second, err := svc.ResolveUser(ctx, "t1", model.ChannelWhatsApp, "+5215550001")
	if err != nil {
		t.Fatalf("ResolveUser: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected same user, got %s and %s", first.ID, second.ID)
	}

	stored, err := repo.GetUser(ctx, first.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if !stored.LastInteraction.Equal(clk.Now()) {
		t.Fatalf("last interaction = %v, want %v", stored.LastInteraction, clk.Now())
	}
}

func TestResolveUserIsTenantScoped(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)

	a, err := svc.ResolveUser(ctx, "t1", model.ChannelWhatsApp, "+521")
	if err != nil {
		t.Fatalf("ResolveUser: %v", err)
	}
	b, err := svc.ResolveUser(ctx, "t2", model.ChannelWhatsApp, "+521")
	if err != nil {
		t.Fatalf("ResolveUser: %v", err)
	}
	if a.ID == b.ID {
		t.Fatal("same external id in two tenants must map to two users")
	}
}

func TestResolveUserConcurrent(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)

	const n = 16
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u, err := svc.ResolveUser(ctx, "t1", model.ChannelVoice, "+5255")
			if err != nil {
				t.Errorf("ResolveUser: %v", err)
				return
			}
			ids[i] = u.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		if id != ids[0] {
			t.Fatalf("concurrent resolution created several users: %v", ids)
		}
	}
}

func TestResolveConversationAffinity(t *testing.T) {
	tests := []struct {
		name string
		gap  time.Duration
		same bool
	}{
		{"within window", 29 * time.Minute, true},
		{"after window", 31 * time.Minute, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			svc, _, clk := newService(t)

			user, err := svc.ResolveUser(ctx, "t1", model.ChannelWhatsApp, "+521")
			if err != nil {
				t.Fatalf("ResolveUser: %v", err)
			}
			first, err := svc.ResolveConversation(ctx, user, model.ChannelWhatsApp, 30*time.Minute)
			if err != nil {
				t.Fatalf("ResolveConversation: %v", err)
			}
			if first.Status != model.ConversationActive {
				t.Fatalf("status = %q, want active", first.Status)
			}

			clk.Advance(tt.gap)
			second, err := svc.ResolveConversation(ctx, user, model.ChannelWhatsApp, 30*time.Minute)
			if err != nil {
				t.Fatalf("ResolveConversation: %v", err)
			}

			if got := first.ID == second.ID; got != tt.same {
				t.Fatalf("same conversation = %v, want %v", got, tt.same)
			}
		})
	}
}

func TestResolveConversationSkipsClosed(t *testing.T) {
	ctx := context.Background()
	svc, repo, clk := newService(t)

	user, _ := svc.ResolveUser(ctx, "t1", model.ChannelWeb, "w-1")
	closed := &model.Conversation{
		ID: "closed", TenantID: "t1", UserID: user.ID, Channel: model.ChannelWeb,
		Status: model.ConversationClosed, StartedAt: clk.Now(), LastActivityAt: clk.Now(),
	}
	if err := repo.CreateConversation(ctx, closed); err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}

	conv, err := svc.ResolveConversation(ctx, user, model.ChannelWeb, 30*time.Minute)
	if err != nil {
		t.Fatalf("ResolveConversation: %v", err)
	}
	if conv.ID == "closed" {
		t.Fatal("closed conversation must not be reused")
	}
}

func TestResolveConversationIsChannelScoped(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)

	user, _ := svc.ResolveUser(ctx, "t1", model.ChannelWhatsApp, "+521")
	chat, _ := svc.ResolveConversation(ctx, user, model.ChannelWhatsApp, 0)
	voice, _ := svc.ResolveConversation(ctx, user, model.ChannelVoice, 0)
	if chat.ID == voice.ID {
		t.Fatal("channels must not share a conversation")
	}
}

func TestUpdateLeadStatus(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newService(t)

	user, _ := svc.ResolveUser(ctx, "t1", model.ChannelWhatsApp, "+521")
	if err := svc.UpdateLeadStatus(ctx, user, model.LeadHot); err != nil {
		t.Fatalf("UpdateLeadStatus: %v", err)
	}
	stored, _ := repo.GetUser(ctx, user.ID)
	if stored.LeadStatus != model.LeadHot || user.LeadStatus != model.LeadHot {
		t.Fatalf("lead status not updated: stored=%q user=%q", stored.LeadStatus, user.LeadStatus)
	}

	if err := svc.UpdateLeadStatus(ctx, user, model.LeadStatus("caliente")); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

type failingRepo struct {
	*store.MemoryStore
}

func (failingRepo) FindUserByChannel(context.Context, string, model.Channel, string) (*model.User, error) {
	return nil, errors.New("connection refused")
}

func TestResolveUserPropagatesStorageErrors(t *testing.T) {
	svc := session.NewService(failingRepo{store.NewMemoryStore()}, logger.NewNop())
	if _, err := svc.ResolveUser(context.Background(), "t1", model.ChannelWeb, "w-1"); err == nil {
		t.Fatal("expected storage error")
	}
}
