package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/capitalize-ai/ai-engine/internal/agent"
	"github.com/capitalize-ai/ai-engine/internal/analytics"
	"github.com/capitalize-ai/ai-engine/internal/config"
	"github.com/capitalize-ai/ai-engine/internal/knowledge"
	"github.com/capitalize-ai/ai-engine/internal/llm"
	"github.com/capitalize-ai/ai-engine/internal/lock"
	natsclient "github.com/capitalize-ai/ai-engine/internal/nats"
	"github.com/capitalize-ai/ai-engine/internal/orchestrator"
	"github.com/capitalize-ai/ai-engine/internal/session"
	"github.com/capitalize-ai/ai-engine/internal/store"
	"github.com/capitalize-ai/ai-engine/internal/tenant"
	"github.com/capitalize-ai/ai-engine/internal/transcript"
	"github.com/capitalize-ai/ai-engine/pkg/logger"
)

// repository is what both store backends provide.
type repository interface {
	session.Repository
	transcript.Repository
	analytics.Store
	Ping(ctx context.Context) error
	Close() error
}

// engine holds the wired collaborators of one process.
type engine struct {
	cfg          *config.Config
	log          *logger.Logger
	repo         repository
	retriever    *knowledge.Retriever
	profiles     *tenant.Cache
	orchestrator *orchestrator.Orchestrator
	analytics    *analytics.Service
	nats         *natsclient.Client
	streams      *natsclient.StreamManager

	closers []func() error
}

// close releases resources in reverse order of creation.
func (e *engine) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			e.log.Warn("failed to release resource", zap.Error(err))
		}
	}
	e.closers = nil
}

func (e *engine) onClose(fn func() error) {
	e.closers = append(e.closers, fn)
}

// buildEngine wires the full pipeline. withNATS connects to NATS and ensures
// the streams exist.
func buildEngine(ctx context.Context, cfg *config.Config, log *logger.Logger, withNATS bool) (*engine, error) {
	e := &engine{cfg: cfg, log: log}

	if err := e.openStore(ctx); err != nil {
		return nil, err
	}
	if err := e.openRetriever(); err != nil {
		e.close()
		return nil, err
	}

	client, err := newLLMClient(cfg)
	if err != nil {
		e.close()
		return nil, err
	}
	log.Info("LLM provider selected", zap.String("provider", client.Name()), zap.String("model", cfg.LLMModel))

	if err := e.openProfiles(ctx); err != nil {
		e.close()
		return nil, err
	}

	locker, err := e.openLocker(ctx)
	if err != nil {
		e.close()
		return nil, err
	}

	generator := agent.NewGenerator(client, e.retriever, agent.Config{
		Model:   cfg.LLMModel,
		TopK:    cfg.RetrievalTopK,
		Timeout: cfg.GenerationTimeout,
	}, log)

	e.orchestrator = orchestrator.New(orchestrator.Deps{
		Sessions:   session.NewService(e.repo, log),
		Transcript: transcript.NewLog(e.repo, log),
		Responder:  generator,
		Profiles:   e.profiles,
		Locker:     locker,
	}, orchestrator.Config{
		InactivityWindow: cfg.ConversationTimeout,
		HistoryLimit:     cfg.HistoryLimit,
		LockWait:         cfg.LockWait,
	}, log)

	e.analytics = analytics.NewService(e.repo, e.profiles, log)

	if withNATS {
		if err := e.openNATS(ctx); err != nil {
			e.close()
			return nil, err
		}
	}

	return e, nil
}

func (e *engine) openStore(ctx context.Context) error {
	repo, err := openStore(ctx, e.cfg)
	if err != nil {
		return err
	}
	e.repo = repo
	e.onClose(repo.Close)
	e.log.Info("store opened", zap.String("driver", e.cfg.StoreDriver))
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (repository, error) {
	switch cfg.StoreDriver {
	case "memory":
		return store.NewMemoryStore(), nil
	case "postgres", "sqlite":
		s, err := store.Open(ctx, store.Dialect(cfg.StoreDriver), cfg.StoreDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func (e *engine) openRetriever() error {
	r, closeFn, err := newRetriever(e.cfg, e.log)
	if err != nil {
		return err
	}
	e.retriever = r
	if closeFn != nil {
		e.onClose(closeFn)
	}
	return nil
}

// newRetriever builds the knowledge retriever. Without an OpenAI key the
// hashing embedder keeps retrieval working offline.
func newRetriever(cfg *config.Config, log *logger.Logger) (*knowledge.Retriever, func() error, error) {
	var embedder knowledge.Embedder
	if cfg.OpenAIAPIKey != "" {
		oe, err := knowledge.NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.EmbeddingModel)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create embedder: %w", err)
		}
		embedder = oe
	} else {
		log.Warn("OPENAI_API_KEY not set, using hashing embedder", zap.Int("dims", cfg.EmbeddingDims))
		embedder = knowledge.NewHashEmbedder(cfg.EmbeddingDims)
	}

	switch cfg.VectorBackend {
	case "qdrant":
		idx, err := knowledge.NewQdrantIndex(knowledge.QdrantConfig{
			Host:   cfg.QdrantHost,
			Port:   cfg.QdrantPort,
			APIKey: cfg.QdrantAPIKey,
			UseTLS: cfg.QdrantTLS,
		})
		if err != nil {
			return nil, nil, err
		}
		return knowledge.NewRetriever(embedder, idx, log), idx.Close, nil
	default:
		return knowledge.NewRetriever(embedder, knowledge.NewMemoryIndex(), log), nil, nil
	}
}

// newLLMClient prefers DEFAULT_LLM and falls back to whichever provider has a key.
func newLLMClient(cfg *config.Config) (llm.Client, error) {
	keys := map[llm.Provider]string{
		llm.ProviderOpenAI:    cfg.OpenAIAPIKey,
		llm.ProviderAnthropic: cfg.AnthropicAPIKey,
	}

	preferred := llm.Provider(cfg.DefaultLLM)
	if key := keys[preferred]; key != "" {
		return llm.NewClient(preferred, key, cfg.LLMModel)
	}
	for _, p := range []llm.Provider{llm.ProviderOpenAI, llm.ProviderAnthropic} {
		if key := keys[p]; key != "" {
			return llm.NewClient(p, key, cfg.LLMModel)
		}
	}
	return nil, errors.New("no LLM provider configured: set OPENAI_API_KEY or ANTHROPIC_API_KEY")
}

func (e *engine) openProfiles(ctx context.Context) error {
	var source tenant.Source
	switch {
	case e.cfg.DynamoTable != "":
		ds, err := tenant.NewDynamoSource(ctx, tenant.DynamoConfig{
			Region:    e.cfg.DynamoRegion,
			Table:     e.cfg.DynamoTable,
			Endpoint:  e.cfg.DynamoEndpoint,
			AccessKey: e.cfg.AWSAccessKey,
			SecretKey: e.cfg.AWSSecretKey,
		})
		if err != nil {
			return err
		}
		source = ds
		e.log.Info("tenant profiles from DynamoDB", zap.String("table", e.cfg.DynamoTable))
	case e.cfg.TenantsFile != "":
		fs, err := tenant.LoadFile(e.cfg.TenantsFile)
		if err != nil {
			return err
		}
		source = fs
		e.log.Info("tenant profiles from file", zap.String("path", e.cfg.TenantsFile))
	default:
		source = tenant.NewStaticSource(nil)
		e.log.Info("no tenant source configured, every tenant uses the default profile")
	}

	e.profiles = tenant.NewCache(source, e.cfg.TenantCacheTTL)
	return nil
}

func (e *engine) openLocker(ctx context.Context) (lock.Locker, error) {
	if e.cfg.RedisAddr == "" {
		return lock.NewLocalLocker(), nil
	}
	rl, err := lock.NewRedisLocker(ctx, lock.RedisOptions{
		Addr:     e.cfg.RedisAddr,
		Password: e.cfg.RedisPassword,
		DB:       e.cfg.RedisDB,
	})
	if err != nil {
		return nil, err
	}
	e.onClose(rl.Close)
	e.log.Info("per-sender locks in Redis", zap.String("addr", e.cfg.RedisAddr))
	return rl, nil
}

func (e *engine) openNATS(ctx context.Context) error {
	client, err := natsclient.Connect(ctx, natsclient.Config{
		URL:      e.cfg.NATSURL,
		CAFile:   e.cfg.NATSCAFile,
		CertFile: e.cfg.NATSCertFile,
		KeyFile:  e.cfg.NATSKeyFile,
		Token:    e.cfg.NATSToken,
		Name:     serviceName,
	}, e.log)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	e.nats = client
	e.onClose(client.Drain)

	e.streams = natsclient.NewStreamManager(client)
	if err := e.streams.EnsureStreams(ctx); err != nil {
		return fmt.Errorf("failed to ensure streams: %w", err)
	}
	return nil
}
