package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/capitalize-ai/ai-engine/internal/model"
)

const (
	// InboundStream holds normalized messages waiting for the pipeline.
	InboundStream = "INBOUND"
	// InboundPrefix is the subject prefix of inbound messages.
	InboundPrefix = "inbound"

	// ReplyStream holds replies waiting for channel adapters.
	ReplyStream = "REPLIES"
	// ReplyPrefix is the subject prefix of replies.
	ReplyPrefix = "reply"

	// MessageIDKey is the metadata key adapters set to deduplicate redeliveries.
	MessageIDKey = "message_id"
)

// StreamManager handles JetStream stream operations.
type StreamManager struct {
	js jetstream.JetStream
}

// NewStreamManager creates a new stream manager.
func NewStreamManager(client *Client) *StreamManager {
	return &StreamManager{js: client.JetStream()}
}

// EnsureStreams creates or updates the inbound and reply streams.
func (m *StreamManager) EnsureStreams(ctx context.Context) error {
	_, err := m.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        InboundStream,
		Subjects:    []string{InboundPrefix + ".>"},
		Retention:   jetstream.WorkQueuePolicy,
		MaxAge:      24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Duplicates:  2 * time.Minute,
		Description: "Normalized inbound messages awaiting processing",
	})
	if err != nil {
		return fmt.Errorf("failed to create inbound stream: %w", err)
	}

	_, err = m.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        ReplyStream,
		Subjects:    []string{ReplyPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Generated replies for channel adapters",
	})
	if err != nil {
		return fmt.Errorf("failed to create reply stream: %w", err)
	}

	return nil
}

// InboundSubject returns the subject for a tenant's inbound messages on a channel.
func InboundSubject(tenantID string, channel model.Channel) string {
	return fmt.Sprintf("%s.%s.%s", InboundPrefix, tenantID, channel)
}

// ReplySubject returns the subject for a tenant's replies on a channel.
func ReplySubject(tenantID string, channel model.Channel) string {
	return fmt.Sprintf("%s.%s.%s", ReplyPrefix, tenantID, channel)
}

// ReplyFilter matches every reply of a channel across tenants.
func ReplyFilter(channel model.Channel) string {
	return fmt.Sprintf("%s.*.%s", ReplyPrefix, channel)
}

// PublishInbound enqueues a message. Messages carrying MessageIDKey are
// deduplicated by the stream.
func (m *StreamManager) PublishInbound(ctx context.Context, msg model.NormalizedMessage) (uint64, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal message: %w", err)
	}

	var opts []jetstream.PublishOpt
	if id := msg.Metadata[MessageIDKey]; id != "" {
		opts = append(opts, jetstream.WithMsgID(msg.TenantID+":"+id))
	}

	ack, err := m.js.Publish(ctx, InboundSubject(msg.TenantID, msg.Channel), data, opts...)
	if err != nil {
		return 0, fmt.Errorf("failed to publish message: %w", err)
	}

	return ack.Sequence, nil
}

// PublishReply publishes a reply for the channel adapters.
func (m *StreamManager) PublishReply(ctx context.Context, ev model.ReplyEvent) (uint64, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal reply: %w", err)
	}

	ack, err := m.js.Publish(ctx, ReplySubject(ev.TenantID, ev.Channel), data, jetstream.WithMsgID(ev.ID))
	if err != nil {
		return 0, fmt.Errorf("failed to publish reply: %w", err)
	}

	return ack.Sequence, nil
}

// ConsumerConfig tunes the durable inbound consumer.
type ConsumerConfig struct {
	Durable    string
	AckWait    time.Duration
	MaxDeliver int
}

// InboundConsumer creates or updates the durable consumer of the inbound stream.
func (m *StreamManager) InboundConsumer(ctx context.Context, cfg ConsumerConfig) (jetstream.Consumer, error) {
	if cfg.Durable == "" {
		cfg.Durable = "ai-engine"
	}
	if cfg.AckWait <= 0 {
		cfg.AckWait = 2 * time.Minute
	}
	if cfg.MaxDeliver <= 0 {
		cfg.MaxDeliver = 3
	}

	consumer, err := m.js.CreateOrUpdateConsumer(ctx, InboundStream, jetstream.ConsumerConfig{
		Durable:       cfg.Durable,
		FilterSubject: InboundPrefix + ".>",
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       cfg.AckWait,
		MaxDeliver:    cfg.MaxDeliver,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	return consumer, nil
}
