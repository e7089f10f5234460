// Package agent produces replies: it assembles the policy prompt with
// retrieved knowledge and history, calls the language model and derives the
// escalation and lead signals.
package agent

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/ai-engine/internal/knowledge"
	"github.com/capitalize-ai/ai-engine/internal/llm"
	"github.com/capitalize-ai/ai-engine/internal/model"
	"github.com/capitalize-ai/ai-engine/internal/tenant"
	"github.com/capitalize-ai/ai-engine/pkg/logger"
	"github.com/capitalize-ai/ai-engine/pkg/metrics"
)

// FallbackMessage is returned when the model call fails.
const FallbackMessage = "Disculpa, tengo problemas técnicos. ¿Podrías intentar de nuevo?"

// Sampling settings for every reply.
const (
	Temperature = 0.7
	MaxTokens   = 300
)

const (
	defaultTopK    = 3
	defaultTimeout = 30 * time.Second
	confidence     = 0.9
)

var errEmptyCompletion = errors.New("empty completion")

// Searcher returns knowledge snippets for a tenant. It never fails; errors
// degrade to an empty result.
type Searcher interface {
	Search(ctx context.Context, tenantID, query string, topK int) []knowledge.Snippet
}

// Request is the input of one generation.
type Request struct {
	TenantID string
	Message  string
	History  []model.HistoryEntry
	Profile  tenant.Profile
}

// Config tunes the generator.
type Config struct {
	Model   string
	TopK    int
	Timeout time.Duration
}

// Generator produces AgentResponses.
type Generator struct {
	client   llm.Client
	searcher Searcher
	cfg      Config
	logger   *logger.Logger
}

// NewGenerator creates a generator. A nil searcher disables retrieval.
func NewGenerator(client llm.Client, searcher Searcher, cfg Config, log *logger.Logger) *Generator {
	if cfg.TopK <= 0 {
		cfg.TopK = defaultTopK
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Generator{
		client:   client,
		searcher: searcher,
		cfg:      cfg,
		logger:   log.Named("agent"),
	}
}

// Generate produces a reply for req. It never returns an error: a failed
// model call yields the fixed fallback with zero confidence.
func (g *Generator) Generate(ctx context.Context, req Request) model.AgentResponse {
	profile := req.Profile.WithDefaults()

	var snippets []knowledge.Snippet
	if g.searcher != nil {
		snippets = g.searcher.Search(ctx, req.TenantID, req.Message, g.cfg.TopK)
	}

	messages := BuildMessages(profile, snippets, req.History, req.Message)

	callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := g.client.Complete(callCtx, &llm.CompletionRequest{
		Model:       g.cfg.Model,
		Messages:    messages,
		MaxTokens:   MaxTokens,
		Temperature: Temperature,
	})
	elapsed := time.Since(start)
	if err == nil && (resp == nil || strings.TrimSpace(resp.Content) == "") {
		err = errEmptyCompletion
	}
	if err != nil {
		metrics.RecordLLMCall(g.client.Name(), g.cfg.Model, "error", elapsed.Seconds(), 0, 0)
		metrics.FallbacksTotal.WithLabelValues("generator").Inc()
		g.logger.Error("generation failed",
			zap.String("tenant_id", req.TenantID),
			zap.String("provider", g.client.Name()),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return model.AgentResponse{Message: FallbackMessage, Confidence: 0}
	}
	metrics.RecordLLMCall(g.client.Name(), resp.Model, "ok", elapsed.Seconds(), resp.TokensIn, resp.TokensOut)

	g.logger.Debug("reply generated",
		zap.String("tenant_id", req.TenantID),
		zap.Int("snippets", len(snippets)),
		zap.Int("history", len(req.History)),
		zap.Int("tokens", resp.TokensIn+resp.TokensOut),
	)

	return model.AgentResponse{
		Message:    StripClosings(resp.Content),
		Action:     DetectAction(req.Message, profile.EscalationKeywords),
		LeadStatus: DetectLeadStatus(req.Message, profile.SchedulingKeywords),
		Confidence: confidence,
		Usage: &model.Usage{
			Model:     resp.Model,
			TokensIn:  resp.TokensIn,
			TokensOut: resp.TokensOut,
		},
	}
}

// BuildMessages assembles the chat: system prompt with the knowledge block,
// then history, then the current message.
func BuildMessages(p tenant.Profile, snippets []knowledge.Snippet, history []model.HistoryEntry, message string) []llm.ChatMessage {
	messages := make([]llm.ChatMessage, 0, len(history)+2)
	messages = append(messages, llm.ChatMessage{
		Role:    llm.RoleSystem,
		Content: SystemPrompt(p) + "\n\n" + FormatContext(snippets),
	})
	for _, h := range history {
		messages = append(messages, llm.ChatMessage{Role: string(h.Role), Content: h.Content})
	}
	return append(messages, llm.ChatMessage{Role: llm.RoleUser, Content: message})
}
