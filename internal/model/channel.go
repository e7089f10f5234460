// Package model defines data structures for the conversational AI engine.
package model

import (
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

var (
	// ErrNotFound is returned by repositories when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrEmptyMessage is returned when an inbound message has no text to process.
	ErrEmptyMessage = errors.New("message text is empty")
	// ErrInvalidChannel is returned for a channel outside the closed set.
	ErrInvalidChannel = errors.New("invalid channel")
	// ErrInvalidTenant is returned for a missing or malformed tenant id.
	ErrInvalidTenant = errors.New("invalid tenant id")
)

// Channel is the messaging surface a message arrived from.
type Channel string

const (
	ChannelWhatsApp  Channel = "whatsapp"
	ChannelMessenger Channel = "messenger"
	ChannelVoice     Channel = "voice"
	ChannelWeb       Channel = "web"
)

// Valid reports whether c is one of the known channels.
func (c Channel) Valid() bool {
	switch c {
	case ChannelWhatsApp, ChannelMessenger, ChannelVoice, ChannelWeb:
		return true
	}
	return false
}

// ParseChannel converts a raw channel tag into a Channel.
func ParseChannel(s string) (Channel, error) {
	c := Channel(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", ErrInvalidChannel
	}
	return c, nil
}

var tenantIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidTenantID reports whether id is usable as a tenant key. Tenant ids end
// up in storage namespaces and NATS subjects, so the alphabet is restricted.
func ValidTenantID(id string) bool {
	return tenantIDPattern.MatchString(id)
}

// NormalizedMessage is the channel-agnostic inbound envelope.
type NormalizedMessage struct {
	TenantID       string            `json:"tenant_id"`
	ExternalUserID string            `json:"user_id"`
	Channel        Channel           `json:"channel"`
	Text           string            `json:"message"`
	Timestamp      time.Time         `json:"timestamp"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// NewNormalizedMessage builds a message, copying metadata so the caller's map
// can't mutate it afterwards.
func NewNormalizedMessage(tenantID string, channel Channel, externalUserID, text string, ts time.Time, metadata map[string]string) NormalizedMessage {
	var md map[string]string
	if len(metadata) > 0 {
		md = make(map[string]string, len(metadata))
		for k, v := range metadata {
			md[k] = v
		}
	}
	return NormalizedMessage{
		TenantID:       tenantID,
		ExternalUserID: externalUserID,
		Channel:        channel,
		Text:           text,
		Timestamp:      ts,
		Metadata:       md,
	}
}

// IsEmpty reports whether there is nothing to process.
func (m NormalizedMessage) IsEmpty() bool {
	return strings.TrimSpace(m.Text) == ""
}

// Validate checks the envelope before it enters the pipeline.
func (m NormalizedMessage) Validate() error {
	if !ValidTenantID(m.TenantID) {
		return ErrInvalidTenant
	}
	if !m.Channel.Valid() {
		return ErrInvalidChannel
	}
	if strings.TrimSpace(m.ExternalUserID) == "" {
		return errors.New("external user id is empty")
	}
	if m.IsEmpty() {
		return ErrEmptyMessage
	}
	return nil
}

// IdentityKey identifies the sender within a tenant and channel.
func (m NormalizedMessage) IdentityKey() string {
	return m.TenantID + ":" + string(m.Channel) + ":" + m.ExternalUserID
}

// Preview returns at most n runes of the message text for logging.
func (m NormalizedMessage) Preview(n int) string {
	return Truncate(m.Text, n)
}

// Truncate shortens s to n runes.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}
