// Package tenant holds per-tenant agent configuration.
package tenant

import (
	"time"
)

// Keyword sets used when a tenant does not configure its own. Matching is a
// case-insensitive substring test, so each entry also covers its plurals.
var (
	DefaultEscalationKeywords = []string{
		"humano", "persona", "asesor", "queja", "gerente",
		"human", "person", "advisor", "complaint", "supervisor", "manager",
	}
	DefaultSchedulingKeywords = []string{
		"cita", "agendar", "reservar",
		"appointment", "book", "reserve", "schedule",
	}
)

// Profile is the agent personality and policy of one tenant.
type Profile struct {
	CompanyName        string   `json:"company_name" mapstructure:"company_name" dynamodbav:"company_name"`
	AgentName          string   `json:"agent_name" mapstructure:"agent_name" dynamodbav:"agent_name"`
	Tone               string   `json:"tone" mapstructure:"tone" dynamodbav:"tone"`
	Language           string   `json:"language" mapstructure:"language" dynamodbav:"language"`
	Greeting           string   `json:"greeting,omitempty" mapstructure:"greeting" dynamodbav:"greeting,omitempty"`
	FallbackMessage    string   `json:"fallback_message,omitempty" mapstructure:"fallback_message" dynamodbav:"fallback_message,omitempty"`
	EscalationKeywords []string `json:"escalation_keywords" mapstructure:"escalation_keywords" dynamodbav:"escalation_keywords"`
	SchedulingKeywords []string `json:"scheduling_keywords" mapstructure:"scheduling_keywords" dynamodbav:"scheduling_keywords"`
	BusinessHours      string   `json:"business_hours,omitempty" mapstructure:"business_hours" dynamodbav:"business_hours,omitempty"`
	Timezone           string   `json:"timezone" mapstructure:"timezone" dynamodbav:"timezone"`
	UseEmojis          bool     `json:"use_emojis" mapstructure:"use_emojis" dynamodbav:"use_emojis"`
	CustomInstructions string   `json:"custom_instructions,omitempty" mapstructure:"custom_instructions" dynamodbav:"custom_instructions,omitempty"`

	// ConversationTimeoutMinutes overrides the process-wide inactivity window when positive.
	ConversationTimeoutMinutes int `json:"conversation_timeout_minutes,omitempty" mapstructure:"conversation_timeout_minutes" dynamodbav:"conversation_timeout_minutes,omitempty"`
}

// DefaultProfile returns the profile used for unconfigured tenants.
func DefaultProfile() Profile {
	return Profile{
		CompanyName:        "la empresa",
		AgentName:          "Asistente",
		Tone:               "amigable y profesional",
		Language:           "es",
		Greeting:           "¡Hola! ¿En qué puedo ayudarte hoy?",
		FallbackMessage:    "Disculpa, no entendí tu mensaje. ¿Podrías reformularlo?",
		EscalationKeywords: append([]string(nil), DefaultEscalationKeywords...),
		SchedulingKeywords: append([]string(nil), DefaultSchedulingKeywords...),
		Timezone:           "America/Mexico_City",
	}
}

// WithDefaults fills every unset field from DefaultProfile.
func (p Profile) WithDefaults() Profile {
	return merge(p, DefaultProfile())
}

// InactivityWindow returns the tenant's conversation timeout, or fallback when unset.
func (p Profile) InactivityWindow(fallback time.Duration) time.Duration {
	if p.ConversationTimeoutMinutes > 0 {
		return time.Duration(p.ConversationTimeoutMinutes) * time.Minute
	}
	return fallback
}

// merge fills unset fields of p from defaults.
func merge(p, defaults Profile) Profile {
	if p.CompanyName == "" {
		p.CompanyName = defaults.CompanyName
	}
	if p.AgentName == "" {
		p.AgentName = defaults.AgentName
	}
	if p.Tone == "" {
		p.Tone = defaults.Tone
	}
	if p.Language == "" {
		p.Language = defaults.Language
	}
	if p.Greeting == "" {
		p.Greeting = defaults.Greeting
	}
	if p.FallbackMessage == "" {
		p.FallbackMessage = defaults.FallbackMessage
	}
	if len(p.EscalationKeywords) == 0 {
		p.EscalationKeywords = defaults.EscalationKeywords
	}
	if len(p.SchedulingKeywords) == 0 {
		p.SchedulingKeywords = defaults.SchedulingKeywords
	}
	if p.BusinessHours == "" {
		p.BusinessHours = defaults.BusinessHours
	}
	if p.Timezone == "" {
		p.Timezone = defaults.Timezone
	}
	if p.CustomInstructions == "" {
		p.CustomInstructions = defaults.CustomInstructions
	}
	if p.ConversationTimeoutMinutes == 0 {
		p.ConversationTimeoutMinutes = defaults.ConversationTimeoutMinutes
	}
	p.UseEmojis = p.UseEmojis || defaults.UseEmojis
	return p
}
