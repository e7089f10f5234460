package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/capitalize-ai/ai-engine/internal/model"
	"github.com/capitalize-ai/ai-engine/pkg/logger"
	"github.com/capitalize-ai/ai-engine/pkg/metrics"
)

const backendJetStream = "jetstream"

// InboundPublisher enqueues messages on a stream.
type InboundPublisher interface {
	PublishInbound(ctx context.Context, msg model.NormalizedMessage) (uint64, error)
}

// JetStreamQueue dispatches by publishing to the inbound stream. Workers
// running a Consumer pick the messages up.
type JetStreamQueue struct {
	publisher InboundPublisher
	logger    *logger.Logger
}

// NewJetStreamQueue creates a queue over publisher.
func NewJetStreamQueue(publisher InboundPublisher, log *logger.Logger) *JetStreamQueue {
	return &JetStreamQueue{publisher: publisher, logger: log.Named("dispatch")}
}

// Dispatch publishes msg and returns once the stream has stored it.
func (q *JetStreamQueue) Dispatch(ctx context.Context, msg model.NormalizedMessage) error {
	seq, err := q.publisher.PublishInbound(ctx, msg)
	if err != nil {
		metrics.DispatchTasksTotal.WithLabelValues(backendJetStream, "dropped").Inc()
		return fmt.Errorf("failed to enqueue message: %w", err)
	}
	metrics.DispatchTasksTotal.WithLabelValues(backendJetStream, "queued").Inc()
	q.logger.Debug("message enqueued",
		zap.String("tenant_id", msg.TenantID),
		zap.Uint64("sequence", seq),
	)
	return nil
}

// ConsumerConfig tunes a Consumer.
type ConsumerConfig struct {
	// Concurrency bounds in-flight messages.
	Concurrency int
}

// Consumer runs the pipeline for every message of a JetStream consumer.
type Consumer struct {
	consumer    jetstream.Consumer
	proc        Processor
	replier     Replier
	logger      *logger.Logger
	concurrency int
}

// NewConsumer creates a consumer.
func NewConsumer(consumer jetstream.Consumer, proc Processor, replier Replier, cfg ConsumerConfig, log *logger.Logger) *Consumer {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Consumer{
		consumer:    consumer,
		proc:        proc,
		replier:     replier,
		logger:      log.Named("consumer"),
		concurrency: cfg.Concurrency,
	}
}

// Run consumes until ctx is done, then waits for in-flight messages.
func (c *Consumer) Run(ctx context.Context) error {
	sem := make(chan struct{}, c.concurrency)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		stopping bool
	)

	// In-flight messages finish even after ctx ends.
	workCtx := context.WithoutCancel(ctx)

	cc, err := c.consumer.Consume(func(msg jetstream.Msg) {
		sem <- struct{}{}
		mu.Lock()
		if stopping {
			mu.Unlock()
			<-sem
			c.nak(msg)
			return
		}
		wg.Add(1)
		mu.Unlock()

		go func() {
			defer func() {
				<-sem
				wg.Done()
			}()
			c.handle(workCtx, msg)
		}()
	}, jetstream.PullMaxMessages(c.concurrency))
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info("consumer started", zap.Int("concurrency", c.concurrency))
	<-ctx.Done()
	cc.Stop()

	mu.Lock()
	stopping = true
	mu.Unlock()
	wg.Wait()
	c.logger.Info("consumer stopped")
	return nil
}

// handle processes one stream message. Undecodable payloads are terminated
// so they are not redelivered.
func (c *Consumer) handle(ctx context.Context, msg jetstream.Msg) {
	var nm model.NormalizedMessage
	if err := json.Unmarshal(msg.Data(), &nm); err != nil {
		metrics.DispatchTasksTotal.WithLabelValues(backendJetStream, "undecodable").Inc()
		c.logger.Error("dropping undecodable message",
			zap.String("subject", msg.Subject()),
			zap.Error(err),
		)
		c.term(msg, nm)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			metrics.DispatchTasksTotal.WithLabelValues(backendJetStream, "panic").Inc()
			c.logger.Error("dispatch task panicked",
				zap.String("tenant_id", nm.TenantID),
				zap.String("channel", string(nm.Channel)),
				zap.String("user_id", nm.ExternalUserID),
				zap.String("panic", fmt.Sprint(r)),
			)
			c.term(msg, nm)
		}
	}()

	deliver(ctx, c.proc, c.replier, c.logger, backendJetStream, nm)

	if err := msg.Ack(); err != nil {
		c.logger.Warn("failed to ack message",
			zap.String("tenant_id", nm.TenantID),
			zap.Error(err),
		)
	}
}

func (c *Consumer) term(msg jetstream.Msg, nm model.NormalizedMessage) {
	if err := msg.Term(); err != nil {
		c.logger.Warn("failed to terminate message",
			zap.String("subject", msg.Subject()),
			zap.String("tenant_id", nm.TenantID),
			zap.Error(err),
		)
	}
}

// nak returns msg to the stream for redelivery.
func (c *Consumer) nak(msg jetstream.Msg) {
	if err := msg.Nak(); err != nil {
		c.logger.Warn("failed to nak message",
			zap.String("subject", msg.Subject()),
			zap.Error(err),
		)
	}
}
