package model

import (
	"time"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is a transcript role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant || r == RoleSystem
}

// Message is an append-only transcript entry.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	TenantID       string    `json:"tenant_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`

	// Generation metrics, nil for inbound messages.
	Metrics *MessageMetrics `json:"metrics,omitempty"`
}

// MessageMetrics records how an assistant message was produced.
type MessageMetrics struct {
	LatencyMs  int64  `json:"latency_ms"`
	TokensUsed int    `json:"tokens_used,omitempty"`
	Model      string `json:"model,omitempty"`
}

// HistoryEntry is a transcript entry shaped for a language model call.
type HistoryEntry struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
