package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"

	"github.com/capitalize-ai/ai-engine/internal/config"
	"github.com/capitalize-ai/ai-engine/internal/middleware"
	"github.com/capitalize-ai/ai-engine/internal/model"
	"github.com/capitalize-ai/ai-engine/pkg/logger"
)

func TestNewLLMClientSelection(t *testing.T) {
	tests := []struct {
		name      string
		preferred string
		openai    string
		anthropic string
		want      string
		wantErr   bool
	}{
		{"preferred with key", "anthropic", "sk-o", "sk-a", "anthropic", false},
		{"preferred without key falls back", "anthropic", "sk-o", "", "openai", false},
		{"unknown preference falls back", "mistral", "", "sk-a", "anthropic", false},
		{"no keys", "openai", "", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := newLLMClient(&config.Config{
				DefaultLLM:      tt.preferred,
				OpenAIAPIKey:    tt.openai,
				AnthropicAPIKey: tt.anthropic,
			})
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("newLLMClient: %v", err)
			}
			if c.Name() != tt.want {
				t.Fatalf("provider = %s, want %s", c.Name(), tt.want)
			}
		})
	}
}

func TestOpenStoreDrivers(t *testing.T) {
	ctx := context.Background()

	mem, err := openStore(ctx, &config.Config{StoreDriver: "memory"})
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	if err := mem.Ping(ctx); err != nil {
		t.Fatalf("memory ping: %v", err)
	}

	lite, err := openStore(ctx, &config.Config{StoreDriver: "sqlite", StoreDSN: ":memory:"})
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	defer lite.Close()
	if err := lite.Ping(ctx); err != nil {
		t.Fatalf("sqlite ping: %v", err)
	}

	if _, err := openStore(ctx, &config.Config{StoreDriver: "mysql"}); err == nil {
		t.Fatal("unknown driver should fail")
	}
}

func TestBuildEngineProcessesMessage(t *testing.T) {
	cfg := config.Load()
	cfg.OpenAIAPIKey = "sk-test"
	cfg.StoreDriver = "memory"
	cfg.VectorBackend = "memory"

	eng, err := buildEngine(context.Background(), cfg, logger.NewNop(), false)
	if err != nil {
		t.Fatalf("buildEngine: %v", err)
	}
	defer eng.close()

	if eng.nats != nil || eng.streams != nil {
		t.Fatal("NATS must not be wired when not requested")
	}

	// An empty message never reaches the model.
	resp := eng.orchestrator.Process(context.Background(), model.NormalizedMessage{
		TenantID: "acme", Channel: model.ChannelWeb, ExternalUserID: "u1", Text: " ",
	})
	if resp.Message != "" {
		t.Fatalf("empty message produced %q", resp.Message)
	}

	p, err := eng.profiles.Get(context.Background(), "acme")
	if err != nil || p.Language != "es" {
		t.Fatalf("profile = %+v err=%v", p, err)
	}
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-secret")

	cmd := tokenCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--tenant", "acme", "--scope", middleware.ScopeKnowledge, "--scope", middleware.ScopeAnalytics})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("token: %v", err)
	}

	claims := &middleware.Claims{}
	_, err := jwt.ParseWithClaims(strings.TrimSpace(out.String()), claims, func(*jwt.Token) (interface{}, error) {
		return []byte("cli-secret"), nil
	})
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.TenantID != "acme" || len(claims.Scopes) != 2 {
		t.Fatalf("claims = %+v", claims)
	}
}
