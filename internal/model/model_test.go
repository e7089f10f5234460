package model

import (
	"testing"
	"time"
)

func TestConversationFresh(t *testing.T) {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	window := 30 * time.Minute

	tests := []struct {
		name   string
		status ConversationStatus
		after  time.Duration
		want   bool
	}{
		{"same instant", ConversationActive, 0, true},
		{"29 minutes", ConversationActive, 29 * time.Minute, true},
		{"exactly the window", ConversationActive, 30 * time.Minute, false},
		{"31 minutes", ConversationActive, 31 * time.Minute, false},
		{"closed", ConversationClosed, time.Minute, false},
		{"escalated", ConversationEscalated, time.Minute, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Conversation{Status: tt.status, LastActivityAt: start}
			if got := c.Fresh(start.Add(tt.after), window); got != tt.want {
				t.Fatalf("Fresh() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLeadStatusAdvances(t *testing.T) {
	tests := []struct {
		from, to LeadStatus
		want     bool
	}{
		{LeadNew, LeadInterested, true},
		{LeadInterested, LeadHot, true},
		{LeadNew, LeadHot, true},
		{LeadHot, LeadInterested, false},
		{LeadInterested, LeadInterested, false},
		{LeadConverted, LeadHot, false},
		{LeadNew, LeadStatus("caliente"), false},
	}
	for _, tt := range tests {
		if got := tt.from.Advances(tt.to); got != tt.want {
			t.Errorf("%s -> %s: got %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestNormalizedMessageValidate(t *testing.T) {
	ts := time.Now()
	tests := []struct {
		name string
		msg  NormalizedMessage
		want error
	}{
		{"ok", NewNormalizedMessage("t1", ChannelWhatsApp, "+521", "hola", ts, nil), nil},
		{"empty text", NewNormalizedMessage("t1", ChannelWhatsApp, "+521", "   ", ts, nil), ErrEmptyMessage},
		{"bad channel", NewNormalizedMessage("t1", Channel("fax"), "+521", "hola", ts, nil), ErrInvalidChannel},
		{"bad tenant", NewNormalizedMessage("t.1", ChannelWeb, "u", "hola", ts, nil), ErrInvalidTenant},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.msg.Validate(); err != tt.want {
				t.Fatalf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestNewNormalizedMessageCopiesMetadata(t *testing.T) {
	md := map[string]string{"sid": "SM1"}
	msg := NewNormalizedMessage("t1", ChannelWhatsApp, "+521", "hola", time.Now(), md)
	md["sid"] = "changed"
	if msg.Metadata["sid"] != "SM1" {
		t.Fatalf("metadata was shared with caller: %q", msg.Metadata["sid"])
	}
}

func TestUserChannelID(t *testing.T) {
	var u User
	u.SetChannelID(ChannelWhatsApp, "+521")
	u.SetChannelID(ChannelVoice, "+522")
	if u.ChannelID(ChannelWhatsApp) != "+521" || u.Phone != "+522" {
		t.Fatalf("unexpected identities: %+v", u)
	}
	if u.ChannelID(ChannelWeb) != "" {
		t.Fatalf("web id should be empty")
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("canción", 4); got != "canc..." {
		t.Fatalf("Truncate = %q", got)
	}
	if got := Truncate("hola", 10); got != "hola" {
		t.Fatalf("Truncate = %q", got)
	}
}
