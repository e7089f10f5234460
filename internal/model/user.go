package model

import (
	"time"
)

// LeadStatus is the sales-funnel stage of a user.
type LeadStatus string

const (
	LeadNew        LeadStatus = "new"
	LeadInterested LeadStatus = "interested"
	LeadHot        LeadStatus = "hot"
	LeadConverted  LeadStatus = "converted"
	LeadLost       LeadStatus = "lost"
)

// LeadStatuses lists every status in funnel order.
var LeadStatuses = []LeadStatus{LeadNew, LeadInterested, LeadHot, LeadConverted, LeadLost}

// Valid reports whether s is a known status.
func (s LeadStatus) Valid() bool {
	return s.Rank() >= 0
}

// Rank orders statuses along the funnel. Converted and lost are both terminal.
func (s LeadStatus) Rank() int {
	switch s {
	case LeadNew:
		return 0
	case LeadInterested:
		return 1
	case LeadHot:
		return 2
	case LeadConverted, LeadLost:
		return 3
	}
	return -1
}

// Advances reports whether moving from s to next goes forward in the funnel.
func (s LeadStatus) Advances(next LeadStatus) bool {
	return next.Valid() && next.Rank() > s.Rank()
}

// User is a tenant-scoped contact.
type User struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`

	// Channel identities, at most one user per value within a tenant.
	WhatsAppID  string `json:"whatsapp_id,omitempty"`
	MessengerID string `json:"messenger_id,omitempty"`
	Phone       string `json:"phone,omitempty"`
	WebID       string `json:"web_id,omitempty"`

	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`

	// Lead state
	LeadStatus  LeadStatus     `json:"lead_status"`
	LeadScore   int            `json:"lead_score"`
	Preferences map[string]any `json:"preferences,omitempty"`
	Objections  []string       `json:"objections,omitempty"`
	Notes       string         `json:"notes,omitempty"`

	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	LastInteraction time.Time `json:"last_interaction"`
}

// ChannelID returns the identity the user has on channel c.
func (u *User) ChannelID(c Channel) string {
	switch c {
	case ChannelWhatsApp:
		return u.WhatsAppID
	case ChannelMessenger:
		return u.MessengerID
	case ChannelVoice:
		return u.Phone
	case ChannelWeb:
		return u.WebID
	}
	return ""
}

// SetChannelID records the identity the user has on channel c.
func (u *User) SetChannelID(c Channel, id string) {
	switch c {
	case ChannelWhatsApp:
		u.WhatsAppID = id
	case ChannelMessenger:
		u.MessengerID = id
	case ChannelVoice:
		u.Phone = id
	case ChannelWeb:
		u.WebID = id
	}
}
