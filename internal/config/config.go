// Package config provides environment configuration for the engine.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Dispatch backends.
const (
	DispatchLocal     = "local"
	DispatchJetStream = "jetstream"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	CORSOrigins        []string

	// Store settings; driver is memory, postgres or sqlite
	StoreDriver string
	StoreDSN    string

	// Vector index settings; backend is memory or qdrant
	VectorBackend  string
	QdrantHost     string
	QdrantPort     int
	QdrantAPIKey   string
	QdrantTLS      bool
	EmbeddingModel string
	// EmbeddingDims sizes the hashing embedder used without an OpenAI key.
	EmbeddingDims int

	// LLM settings
	AnthropicAPIKey string
	OpenAIAPIKey    string
	DefaultLLM      string
	LLMModel        string

	// Tenancy
	TenantsFile    string
	TenantCacheTTL time.Duration
	DynamoTable    string
	DynamoRegion   string
	DynamoEndpoint string
	AWSAccessKey   string
	AWSSecretKey   string

	// Pipeline
	ConversationTimeout time.Duration
	HistoryLimit        int
	GenerationTimeout   time.Duration
	RetrievalTopK       int
	LockWait            time.Duration

	// Dispatch
	DispatchBackend    string
	DispatchWorkers    int
	DispatchQueueSize  int
	ReplyBackend       string
	ConsumerName       string
	ConsumerAckWait    time.Duration
	ConsumerMaxDeliver int

	// NATS settings
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// Redis settings; empty address keeps locks in process
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// JWT settings
	JWTSecret     string
	JWTExpiration time.Duration

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel  string
	LogFormat string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 120*time.Second),
		CORSOrigins:        getListEnv("CORS_ORIGINS", []string{"*"}),

		// Store
		StoreDriver: getEnv("STORE_DRIVER", "memory"),
		StoreDSN:    getEnv("STORE_DSN", ""),

		// Vector index
		VectorBackend:  getEnv("VECTOR_BACKEND", "memory"),
		QdrantHost:     getEnv("QDRANT_HOST", "localhost"),
		QdrantPort:     getIntEnv("QDRANT_PORT", 6334),
		QdrantAPIKey:   getEnv("QDRANT_API_KEY", ""),
		QdrantTLS:      getBoolEnv("QDRANT_TLS", false),
		EmbeddingModel: getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingDims:  getIntEnv("EMBEDDING_DIMS", 256),

		// LLM
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		DefaultLLM:      getEnv("DEFAULT_LLM", "openai"),
		LLMModel:        getEnv("LLM_MODEL", ""),

		// Tenancy
		TenantsFile:    getEnv("TENANTS_FILE", ""),
		TenantCacheTTL: getDurationEnv("TENANT_CACHE_TTL", 5*time.Minute),
		DynamoTable:    getEnv("DYNAMO_TENANTS_TABLE", ""),
		DynamoRegion:   getEnv("AWS_REGION", "us-east-1"),
		DynamoEndpoint: getEnv("DYNAMO_ENDPOINT", ""),
		AWSAccessKey:   getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),

		// Pipeline
		ConversationTimeout: getDurationEnv("CONVERSATION_TIMEOUT", 30*time.Minute),
		HistoryLimit:        getIntEnv("HISTORY_LIMIT", 10),
		GenerationTimeout:   getDurationEnv("GENERATION_TIMEOUT", 30*time.Second),
		RetrievalTopK:       getIntEnv("RETRIEVAL_TOP_K", 3),
		LockWait:            getDurationEnv("LOCK_WAIT", 30*time.Second),

		// Dispatch
		DispatchBackend:    getEnv("DISPATCH_BACKEND", DispatchLocal),
		DispatchWorkers:    getIntEnv("DISPATCH_WORKERS", 4),
		DispatchQueueSize:  getIntEnv("DISPATCH_QUEUE_SIZE", 256),
		ReplyBackend:       getEnv("REPLY_BACKEND", "log"),
		ConsumerName:       getEnv("CONSUMER_NAME", "ai-engine"),
		ConsumerAckWait:    getDurationEnv("CONSUMER_ACK_WAIT", 2*time.Minute),
		ConsumerMaxDeliver: getIntEnv("CONSUMER_MAX_DELIVER", 3),

		// NATS
		NATSURL:      getEnv("NATS_URL", "nats://localhost:4222"),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// Redis
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		// JWT
		JWTSecret:     getEnv("JWT_SECRET", "development-secret-change-in-production"),
		JWTExpiration: getDurationEnv("JWT_EXPIRATION", 15*time.Minute),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

// Validate rejects settings that cannot start the engine.
func (c *Config) Validate() error {
	var errs []error

	switch c.StoreDriver {
	case "memory":
	case "postgres", "sqlite":
		if c.StoreDSN == "" {
			errs = append(errs, fmt.Errorf("STORE_DSN is required for driver %q", c.StoreDriver))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}

	if c.VectorBackend != "memory" && c.VectorBackend != "qdrant" {
		errs = append(errs, fmt.Errorf("unknown VECTOR_BACKEND %q", c.VectorBackend))
	}
	if c.DispatchBackend != DispatchLocal && c.DispatchBackend != DispatchJetStream {
		errs = append(errs, fmt.Errorf("unknown DISPATCH_BACKEND %q", c.DispatchBackend))
	}
	if c.ReplyBackend != "log" && c.ReplyBackend != "jetstream" {
		errs = append(errs, fmt.Errorf("unknown REPLY_BACKEND %q", c.ReplyBackend))
	}

	if c.HistoryLimit < 0 {
		errs = append(errs, errors.New("HISTORY_LIMIT must not be negative"))
	}
	if c.ConversationTimeout <= 0 {
		errs = append(errs, errors.New("CONVERSATION_TIMEOUT must be positive"))
	}
	if c.GenerationTimeout <= 0 {
		errs = append(errs, errors.New("GENERATION_TIMEOUT must be positive"))
	}

	return errors.Join(errs...)
}

// UsesNATS reports whether any component needs a NATS connection.
func (c *Config) UsesNATS() bool {
	return c.DispatchBackend == DispatchJetStream || c.ReplyBackend == "jetstream"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
