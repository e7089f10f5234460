package tenant

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/capitalize-ai/ai-engine/internal/model"
)

func TestWithDefaults(t *testing.T) {
	p := Profile{CompanyName: "Clínica Sonrisa", UseEmojis: true}.WithDefaults()
	if p.CompanyName != "Clínica Sonrisa" || !p.UseEmojis {
		t.Fatalf("explicit fields overwritten: %+v", p)
	}
	if p.Language != "es" || p.AgentName == "" || len(p.EscalationKeywords) == 0 || len(p.SchedulingKeywords) == 0 {
		t.Fatalf("defaults not applied: %+v", p)
	}
}

func TestInactivityWindow(t *testing.T) {
	if got := (Profile{}).InactivityWindow(30 * time.Minute); got != 30*time.Minute {
		t.Fatalf("fallback not used: %v", got)
	}
	if got := (Profile{ConversationTimeoutMinutes: 10}).InactivityWindow(30 * time.Minute); got != 10*time.Minute {
		t.Fatalf("override not used: %v", got)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tenants.yaml")
	content := `
defaults:
  language: es
  business_hours: "Lunes a viernes 9:00-18:00"
tenants:
  - id: Clinic-1
    company_name: Clínica Sonrisa
    agent_name: Sofía
    use_emojis: true
    escalation_keywords: [doctor, humano]
    conversation_timeout_minutes: 45
  - id: gym
    company_name: PowerGym
    business_hours: "24/7"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	src, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	clinic, err := src.Lookup(context.Background(), "Clinic-1")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if clinic.AgentName != "Sofía" || !clinic.UseEmojis || clinic.ConversationTimeoutMinutes != 45 {
		t.Fatalf("unexpected clinic profile: %+v", clinic)
	}
	if len(clinic.EscalationKeywords) != 2 || clinic.EscalationKeywords[0] != "doctor" {
		t.Fatalf("keywords not loaded: %v", clinic.EscalationKeywords)
	}
	if clinic.BusinessHours != "Lunes a viernes 9:00-18:00" {
		t.Fatalf("defaults section not applied: %q", clinic.BusinessHours)
	}

	gym, _ := src.Lookup(context.Background(), "gym")
	if gym.BusinessHours != "24/7" {
		t.Fatalf("tenant value should win over defaults: %q", gym.BusinessHours)
	}

	if _, err := src.Lookup(context.Background(), "unknown"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLoadFileRejectsBadTenantID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tenants.yaml")
	os.WriteFile(path, []byte("tenants:\n  - id: \"bad.id\"\n"), 0o600)
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected error for invalid tenant id")
	}
}

type countingSource struct {
	calls    int
	profiles map[string]Profile
	err      error
}

func (s *countingSource) Lookup(ctx context.Context, tenantID string) (Profile, error) {
	s.calls++
	if s.err != nil {
		return Profile{}, s.err
	}
	p, ok := s.profiles[tenantID]
	if !ok {
		return Profile{}, model.ErrNotFound
	}
	return p, nil
}

func TestCacheTTLAndInvalidate(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	src := &countingSource{profiles: map[string]Profile{"t1": {CompanyName: "Acme"}}}
	cache := NewCacheWithClock(src, time.Minute, func() time.Time { return now })
	ctx := context.Background()

	p, err := cache.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.CompanyName != "Acme" || p.Language != "es" {
		t.Fatalf("unexpected profile: %+v", p)
	}
	cache.Get(ctx, "t1")
	if src.calls != 1 {
		t.Fatalf("expected cached lookup, source called %d times", src.calls)
	}

	now = now.Add(2 * time.Minute)
	cache.Get(ctx, "t1")
	if src.calls != 2 {
		t.Fatalf("expected refresh after ttl, source called %d times", src.calls)
	}

	src.profiles["t1"] = Profile{CompanyName: "Acme Corp"}
	cache.Invalidate("t1")
	p, _ = cache.Get(ctx, "t1")
	if p.CompanyName != "Acme Corp" || src.calls != 3 {
		t.Fatalf("invalidate did not force reload: %+v calls=%d", p, src.calls)
	}
}

func TestCacheUnknownTenantGetsDefaults(t *testing.T) {
	cache := NewCache(&countingSource{}, time.Minute)
	p, err := cache.Get(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.CompanyName != DefaultProfile().CompanyName {
		t.Fatalf("expected default profile, got %+v", p)
	}
}

func TestCacheSourceError(t *testing.T) {
	src := &countingSource{err: errors.New("throttled")}
	cache := NewCache(src, time.Minute)

	p, err := cache.Get(context.Background(), "t1")
	if err == nil {
		t.Fatal("expected error")
	}
	if p.Language != "es" {
		t.Fatalf("defaults should accompany the error: %+v", p)
	}
	cache.Get(context.Background(), "t1")
	if src.calls != 2 {
		t.Fatalf("errors must not be cached, calls=%d", src.calls)
	}
}

type fakeDynamo struct {
	items map[string]map[string]types.AttributeValue
	table string
}

func (f *fakeDynamo) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.table = *in.TableName
	key := in.Key["tenantId"].(*types.AttributeValueMemberS).Value
	return &dynamodb.GetItemOutput{Item: f.items[key]}, nil
}

func TestDynamoSource(t *testing.T) {
	item, err := attributevalue.MarshalMap(tenantItem{
		TenantID: "t1",
		Name:     "Clínica Sonrisa",
		Settings: Profile{AgentName: "Sofía", Tone: "cálido", UseEmojis: true},
	})
	if err != nil {
		t.Fatalf("MarshalMap: %v", err)
	}
	fake := &fakeDynamo{items: map[string]map[string]types.AttributeValue{"t1": item}}
	src := newDynamoSource(fake, "Tenants")

	p, err := src.Lookup(context.Background(), "t1")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if fake.table != "Tenants" {
		t.Fatalf("queried table %q", fake.table)
	}
	if p.AgentName != "Sofía" || !p.UseEmojis || p.CompanyName != "Clínica Sonrisa" {
		t.Fatalf("unexpected profile: %+v", p)
	}

	if _, err := src.Lookup(context.Background(), "t2"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
