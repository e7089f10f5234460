package model

import (
	"time"
)

// FeedbackType identifies who rated a response.
type FeedbackType string

const (
	FeedbackUser       FeedbackType = "user"
	FeedbackSupervisor FeedbackType = "supervisor"
)

// Feedback is a rating attached to an assistant message.
type Feedback struct {
	ID                string       `json:"id"`
	MessageID         string       `json:"message_id"`
	Rating            int          `json:"rating"`
	Type              FeedbackType `json:"feedback_type"`
	Comment           string       `json:"comment,omitempty"`
	CorrectedResponse string       `json:"corrected_response,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
}

// ConversationMetrics aggregates activity over a period.
type ConversationMetrics struct {
	PeriodDays              int     `json:"period_days"`
	TotalConversations      int     `json:"total_conversations"`
	TotalMessages           int     `json:"total_messages"`
	AvgResponseTimeMs       float64 `json:"avg_response_time_ms"`
	UniqueUsers             int     `json:"unique_users"`
	MessagesPerConversation float64 `json:"messages_per_conversation"`
}

// ConversationStats are the raw counts behind ConversationMetrics.
type ConversationStats struct {
	Conversations int
	Messages      int
	UniqueUsers   int
	AvgLatencyMs  float64
}

// LeadFunnel counts users per lead status.
type LeadFunnel struct {
	Funnel         map[LeadStatus]int `json:"funnel"`
	TotalLeads     int                `json:"total_leads"`
	ConversionRate float64            `json:"conversion_rate"`
}

// LowRatedResponse pairs a poorly rated reply with its feedback.
type LowRatedResponse struct {
	MessageID         string    `json:"message_id"`
	Content           string    `json:"content"`
	Rating            int       `json:"rating"`
	Comment           string    `json:"comment,omitempty"`
	CorrectedResponse string    `json:"corrected_response,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// EscalationReport summarizes how often users ask for a human.
type EscalationReport struct {
	TotalUserMessages int     `json:"total_user_messages"`
	EscalationHits    int     `json:"escalation_hits"`
	EscalationRate    float64 `json:"escalation_rate"`
	Status            string  `json:"status"`
}
