package model

import (
	"time"
)

// ConversationStatus is the lifecycle state of a conversation.
type ConversationStatus string

const (
	ConversationActive    ConversationStatus = "active"
	ConversationClosed    ConversationStatus = "closed"
	ConversationEscalated ConversationStatus = "escalated"
)

// Conversation is a bounded session between a user and the agent on one channel.
type Conversation struct {
	ID             string             `json:"id"`
	TenantID       string             `json:"tenant_id"`
	UserID         string             `json:"user_id"`
	Channel        Channel            `json:"channel"`
	Status         ConversationStatus `json:"status"`
	StartedAt      time.Time          `json:"started_at"`
	EndedAt        *time.Time         `json:"ended_at,omitempty"`
	LastActivityAt time.Time          `json:"last_activity_at"`
	Metadata       map[string]string  `json:"metadata,omitempty"`
}

// Fresh reports whether the conversation may absorb a message arriving at now.
// It must be active and its last activity strictly inside the window.
func (c *Conversation) Fresh(now time.Time, window time.Duration) bool {
	if c.Status != ConversationActive {
		return false
	}
	return now.Sub(c.LastActivityAt) < window
}
