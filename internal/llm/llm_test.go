package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sashabaranov/go-openai"
)

func TestNewClient(t *testing.T) {
	tests := []struct {
		provider Provider
		key      string
		wantName string
		wantErr  bool
	}{
		{ProviderOpenAI, "sk-test", "openai", false},
		{ProviderAnthropic, "sk-ant", "anthropic", false},
		{ProviderOpenAI, "", "", true},
		{ProviderAnthropic, "", "", true},
		{Provider("mistral"), "key", "", true},
	}
	for _, tt := range tests {
		c, err := NewClient(tt.provider, tt.key, "")
		if tt.wantErr {
			if err == nil {
				t.Errorf("NewClient(%q, %q): expected error", tt.provider, tt.key)
			}
			continue
		}
		if err != nil {
			t.Fatalf("NewClient(%q): %v", tt.provider, err)
		}
		if c.Name() != tt.wantName {
			t.Errorf("Name() = %q, want %q", c.Name(), tt.wantName)
		}
	}
}

func TestDefaultModels(t *testing.T) {
	o, _ := NewOpenAIClient("sk-test", "")
	if o.model != defaultOpenAIModel {
		t.Fatalf("openai model = %q", o.model)
	}
	a, _ := NewAnthropicClient("sk-ant", "claude-custom")
	if a.model != "claude-custom" {
		t.Fatalf("anthropic model = %q", a.model)
	}
}

func TestOpenAIComplete(t *testing.T) {
	var got openai.ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "gpt-4o-mini-2024-07-18",
			"choices": []map[string]interface{}{{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": "¡Hola! Abrimos a las 9."},
				"finish_reason": "stop",
			}},
			"usage": map[string]int{"prompt_tokens": 30, "completion_tokens": 8, "total_tokens": 38},
		})
	}))
	defer srv.Close()

	cfg := openai.DefaultConfig("sk-test")
	cfg.BaseURL = srv.URL + "/v1"
	c := &OpenAIClient{client: openai.NewClientWithConfig(cfg), model: defaultOpenAIModel}

	resp, err := c.Complete(context.Background(), &CompletionRequest{
		Messages: []ChatMessage{
			{Role: RoleSystem, Content: "Eres Asistente"},
			{Role: RoleUser, Content: "¿A qué hora abren?"},
		},
		MaxTokens:   300,
		Temperature: 0.7,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if got.Model != defaultOpenAIModel || got.MaxTokens != 300 || len(got.Messages) != 2 {
		t.Fatalf("request = %+v", got)
	}
	if got.Messages[0].Role != RoleSystem {
		t.Fatalf("first role = %q", got.Messages[0].Role)
	}
	if resp.Content != "¡Hola! Abrimos a las 9." || resp.TokensIn != 30 || resp.TokensOut != 8 {
		t.Fatalf("response = %+v", resp)
	}
	if resp.Model != "gpt-4o-mini-2024-07-18" || resp.StopReason != "stop" {
		t.Fatalf("response metadata = %+v", resp)
	}
}

func TestOpenAICompleteNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"x","object":"chat.completion","model":"m","choices":[]}`))
	}))
	defer srv.Close()

	cfg := openai.DefaultConfig("sk-test")
	cfg.BaseURL = srv.URL + "/v1"
	c := &OpenAIClient{client: openai.NewClientWithConfig(cfg), model: defaultOpenAIModel}

	if _, err := c.Complete(context.Background(), &CompletionRequest{
		Messages: []ChatMessage{{Role: RoleUser, Content: "hola"}},
	}); err == nil {
		t.Fatal("expected error for empty choices")
	}
}
