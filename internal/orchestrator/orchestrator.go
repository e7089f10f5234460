// Package orchestrator turns an inbound message into a persisted reply.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/capitalize-ai/ai-engine/internal/agent"
	"github.com/capitalize-ai/ai-engine/internal/lock"
	"github.com/capitalize-ai/ai-engine/internal/model"
	"github.com/capitalize-ai/ai-engine/internal/tenant"
	"github.com/capitalize-ai/ai-engine/pkg/logger"
	"github.com/capitalize-ai/ai-engine/pkg/metrics"
)

// FallbackMessage is returned when the pipeline fails.
const FallbackMessage = "Disculpa, tuve un problema. ¿Podrías intentar de nuevo?"

const (
	defaultHistoryLimit = 10
	defaultLockWait     = 30 * time.Second
	previewLength       = 50
)

// Sessions resolves users and conversations.
type Sessions interface {
	ResolveUser(ctx context.Context, tenantID string, channel model.Channel, externalID string) (*model.User, error)
	ResolveConversation(ctx context.Context, user *model.User, channel model.Channel, window time.Duration) (*model.Conversation, error)
	UpdateLeadStatus(ctx context.Context, user *model.User, status model.LeadStatus) error
}

// Transcript persists and replays messages.
type Transcript interface {
	Append(ctx context.Context, conv *model.Conversation, role model.Role, content string, m *model.MessageMetrics) (*model.Message, error)
	History(ctx context.Context, conversationID string, limit int) ([]model.HistoryEntry, error)
}

// Responder generates replies. It must not fail; errors become a fallback reply.
type Responder interface {
	Generate(ctx context.Context, req agent.Request) model.AgentResponse
}

// Profiles returns the effective profile of a tenant.
type Profiles interface {
	Get(ctx context.Context, tenantID string) (tenant.Profile, error)
}

// Config tunes the pipeline.
type Config struct {
	// InactivityWindow is used for tenants without their own timeout.
	InactivityWindow time.Duration
	HistoryLimit     int
	// LockWait bounds how long a message waits behind another one from the same sender.
	LockWait time.Duration
}

// Deps are the collaborators of the pipeline. Profiles and Locker are optional.
type Deps struct {
	Sessions   Sessions
	Transcript Transcript
	Responder  Responder
	Profiles   Profiles
	Locker     lock.Locker
}

// Orchestrator runs the message pipeline.
type Orchestrator struct {
	deps   Deps
	cfg    Config
	logger *logger.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// New creates an orchestrator.
func New(deps Deps, cfg Config, log *logger.Logger) *Orchestrator {
	return NewWithClock(deps, cfg, log, time.Now)
}

// NewWithClock creates an orchestrator that reads time from now.
func NewWithClock(deps Deps, cfg Config, log *logger.Logger, now func() time.Time) *Orchestrator {
	if deps.Locker == nil {
		deps.Locker = lock.Nop{}
	}
	if cfg.InactivityWindow <= 0 {
		cfg.InactivityWindow = 30 * time.Minute
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaultHistoryLimit
	}
	if cfg.LockWait <= 0 {
		cfg.LockWait = defaultLockWait
	}
	return &Orchestrator{
		deps:   deps,
		cfg:    cfg,
		logger: log.Named("orchestrator"),
		tracer: otel.Tracer("github.com/capitalize-ai/ai-engine/internal/orchestrator"),
		now:    now,
	}
}

// run tracks one message through the pipeline.
type run struct {
	msg   model.NormalizedMessage
	stage Stage
	span  trace.Span
	start time.Time
}

func (r *run) advance() {
	r.stage = r.stage.next()
	r.span.AddEvent(string(r.stage))
}

// Process handles one inbound message. It never returns an error: empty or
// malformed messages yield a zero response, and any failure yields
// FallbackMessage.
func (o *Orchestrator) Process(ctx context.Context, msg model.NormalizedMessage) (resp model.AgentResponse) {
	if err := msg.Validate(); err != nil {
		if !errors.Is(err, model.ErrEmptyMessage) {
			o.logger.Warn("message rejected",
				zap.String("tenant_id", msg.TenantID),
				zap.String("channel", string(msg.Channel)),
				zap.Error(err),
			)
		}
		metrics.PipelineDuration.WithLabelValues(string(msg.Channel), "ignored").Observe(0)
		return model.AgentResponse{}
	}

	// Once accepted a message runs to completion so the transcript is never
	// left half-written when the caller goes away.
	ctx = context.WithoutCancel(ctx)

	ctx, span := o.tracer.Start(ctx, "orchestrator.Process", trace.WithAttributes(
		attribute.String("tenant.id", msg.TenantID),
		attribute.String("channel", string(msg.Channel)),
	))
	defer span.End()

	r := &run{msg: msg, stage: StageReceived, span: span, start: o.now()}
	span.AddEvent(string(r.stage))

	defer func() {
		if p := recover(); p != nil {
			resp = o.fail(r, fmt.Errorf("panic: %v", p))
		}
		outcome := "ok"
		if r.stage == StageFailed {
			outcome = "failed"
		}
		metrics.PipelineDuration.WithLabelValues(string(msg.Channel), outcome).Observe(o.now().Sub(r.start).Seconds())
	}()

	o.logger.Info("processing message",
		zap.String("tenant_id", msg.TenantID),
		zap.String("channel", string(msg.Channel)),
		zap.String("user_id", msg.ExternalUserID),
		zap.String("preview", msg.Preview(previewLength)),
	)

	waitStart := o.now()
	unlock := o.acquire(ctx, msg)
	defer unlock()
	lockWait := o.now().Sub(waitStart)
	metrics.LockWait.Observe(lockWait.Seconds())
	span.SetAttributes(attribute.Int64("lock.wait_ms", lockWait.Milliseconds()))
	r.start = o.now()

	resp, err := o.pipeline(ctx, r)
	if err != nil {
		return o.fail(r, err)
	}
	return resp
}

func (o *Orchestrator) pipeline(ctx context.Context, r *run) (model.AgentResponse, error) {
	msg := r.msg

	profile := o.profile(ctx, msg.TenantID)

	user, err := o.deps.Sessions.ResolveUser(ctx, msg.TenantID, msg.Channel, msg.ExternalUserID)
	if err != nil {
		return model.AgentResponse{}, err
	}
	r.advance()

	conv, err := o.deps.Sessions.ResolveConversation(ctx, user, msg.Channel, profile.InactivityWindow(o.cfg.InactivityWindow))
	if err != nil {
		return model.AgentResponse{}, err
	}
	r.span.SetAttributes(attribute.String("conversation.id", conv.ID))
	r.advance()

	if _, err := o.deps.Transcript.Append(ctx, conv, model.RoleUser, msg.Text, nil); err != nil {
		return model.AgentResponse{}, err
	}
	r.advance()

	history, err := o.deps.Transcript.History(ctx, conv.ID, o.cfg.HistoryLimit+1)
	if err != nil {
		return model.AgentResponse{}, err
	}
	history = trimHistory(history, msg.Text, o.cfg.HistoryLimit)
	r.advance()

	resp := o.deps.Responder.Generate(ctx, agent.Request{
		TenantID: msg.TenantID,
		Message:  msg.Text,
		History:  history,
		Profile:  profile,
	})
	latency := o.now().Sub(r.start)
	r.advance()

	mm := &model.MessageMetrics{LatencyMs: latency.Milliseconds(), TokensUsed: resp.Usage.Tokens()}
	if resp.Usage != nil {
		mm.Model = resp.Usage.Model
	}
	if _, err := o.deps.Transcript.Append(ctx, conv, model.RoleAssistant, resp.Message, mm); err != nil {
		return model.AgentResponse{}, err
	}
	r.advance()

	if user.LeadStatus.Advances(resp.LeadStatus) {
		if err := o.deps.Sessions.UpdateLeadStatus(ctx, user, resp.LeadStatus); err != nil {
			return model.AgentResponse{}, err
		}
	}
	r.advance()

	if resp.Action == model.ActionEscalate {
		metrics.EscalationsTotal.WithLabelValues(string(msg.Channel)).Inc()
	}
	r.advance()

	o.logger.Info("reply generated",
		zap.String("tenant_id", msg.TenantID),
		zap.String("conversation_id", conv.ID),
		zap.Int("history", len(history)),
		zap.Duration("latency", latency),
		zap.String("lead_status", string(user.LeadStatus)),
		zap.String("action", string(resp.Action)),
	)
	return resp, nil
}

// fail moves r to StageFailed and returns the fallback reply. The failure is
// attributed to the stage r was trying to reach.
func (o *Orchestrator) fail(r *run, err error) model.AgentResponse {
	failedAt := r.stage.next()
	r.stage = StageFailed

	r.span.RecordError(err)
	r.span.SetStatus(codes.Error, err.Error())
	r.span.AddEvent(string(StageFailed), trace.WithAttributes(attribute.String("stage", string(failedAt))))

	metrics.PipelineFailures.WithLabelValues(string(failedAt)).Inc()
	metrics.FallbacksTotal.WithLabelValues("orchestrator").Inc()

	o.logger.Error("message processing failed",
		zap.String("tenant_id", r.msg.TenantID),
		zap.String("channel", string(r.msg.Channel)),
		zap.String("user_id", r.msg.ExternalUserID),
		zap.String("preview", r.msg.Preview(previewLength)),
		zap.String("stage", string(failedAt)),
		zap.Error(err),
	)
	return model.AgentResponse{Message: FallbackMessage, Confidence: 0}
}

// acquire serializes messages from the same sender. If the lock cannot be
// taken the message is processed unlocked.
func (o *Orchestrator) acquire(ctx context.Context, msg model.NormalizedMessage) func() {
	lockCtx, cancel := context.WithTimeout(ctx, o.cfg.LockWait)
	defer cancel()

	unlock, err := o.deps.Locker.Lock(lockCtx, msg.IdentityKey())
	if err != nil {
		o.logger.Warn("processing without lock",
			zap.String("tenant_id", msg.TenantID),
			zap.String("key", msg.IdentityKey()),
			zap.Error(err),
		)
		return func() {}
	}
	return unlock
}

func (o *Orchestrator) profile(ctx context.Context, tenantID string) tenant.Profile {
	if o.deps.Profiles == nil {
		return tenant.DefaultProfile()
	}
	p, err := o.deps.Profiles.Get(ctx, tenantID)
	if err != nil {
		o.logger.Warn("using default tenant profile",
			zap.String("tenant_id", tenantID),
			zap.Error(err),
		)
		return tenant.DefaultProfile()
	}
	return p
}

// trimHistory drops a trailing entry equal to the current message and keeps
// the last limit entries.
func trimHistory(history []model.HistoryEntry, current string, limit int) []model.HistoryEntry {
	if n := len(history); n > 0 && history[n-1].Content == current {
		history = history[:n-1]
	}
	if len(history) > limit {
		history = history[len(history)-limit:]
	}
	return history
}
