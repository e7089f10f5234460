package model

import (
	"time"
)

// ReplyEvent is the outbound reply handed back to a channel adapter.
type ReplyEvent struct {
	ID             string            `json:"id"`
	TenantID       string            `json:"tenant_id"`
	Channel        Channel           `json:"channel"`
	ExternalUserID string            `json:"user_id"`
	Message        string            `json:"message"`
	Action         Action            `json:"action,omitempty"`
	LeadStatus     LeadStatus        `json:"lead_status,omitempty"`
	Confidence     float64           `json:"confidence"`
	ReceivedAt     time.Time         `json:"received_at"`
	CreatedAt      time.Time         `json:"created_at"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}
