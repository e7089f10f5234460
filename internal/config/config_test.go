package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.ConversationTimeout != 30*time.Minute || cfg.HistoryLimit != 10 {
		t.Fatalf("pipeline defaults: %v %d", cfg.ConversationTimeout, cfg.HistoryLimit)
	}
	if cfg.GenerationTimeout != 30*time.Second || cfg.RetrievalTopK != 3 {
		t.Fatalf("generation defaults: %v %d", cfg.GenerationTimeout, cfg.RetrievalTopK)
	}
	if cfg.StoreDriver != "memory" || cfg.DispatchBackend != DispatchLocal || cfg.UsesNATS() {
		t.Fatalf("backend defaults: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CONVERSATION_TIMEOUT", "45m")
	t.Setenv("HISTORY_LIMIT", "6")
	t.Setenv("QDRANT_TLS", "true")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("DISPATCH_BACKEND", "jetstream")
	t.Setenv("RETRIEVAL_TOP_K", "not-a-number")

	cfg := Load()
	if cfg.ConversationTimeout != 45*time.Minute || cfg.HistoryLimit != 6 || !cfg.QdrantTLS {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Fatalf("origins = %v", cfg.CORSOrigins)
	}
	if cfg.RetrievalTopK != 3 {
		t.Fatalf("invalid values should fall back to the default, got %d", cfg.RetrievalTopK)
	}
	if !cfg.UsesNATS() {
		t.Fatal("jetstream dispatch needs NATS")
	}
}

func TestValidate(t *testing.T) {
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("VECTOR_BACKEND", "pinecone")
	t.Setenv("GENERATION_TIMEOUT", "-1s")

	err := Load().Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"STORE_DSN", "VECTOR_BACKEND", "GENERATION_TIMEOUT"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}
