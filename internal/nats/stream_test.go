package nats

import (
	"testing"

	"github.com/capitalize-ai/ai-engine/internal/model"
)

func TestSubjects(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"inbound", InboundSubject("t1", model.ChannelWhatsApp), "inbound.t1.whatsapp"},
		{"reply", ReplySubject("acme-co", model.ChannelVoice), "reply.acme-co.voice"},
		{"reply filter", ReplyFilter(model.ChannelWeb), "reply.*.web"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}
