package middleware

import (
	"errors"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/capitalize-ai/ai-engine/internal/model"
)

const (
	maxMessageBytes  = 16 * 1024
	maxDocumentBytes = 100000
)

// ValidateMessageText validates inbound message text. Empty text is allowed;
// the pipeline ignores it.
func ValidateMessageText(text string) error {
	if len(text) > maxMessageBytes {
		return errors.New("message exceeds maximum length")
	}
	if !utf8.ValidString(text) {
		return errors.New("message must be valid UTF-8")
	}
	return nil
}

// ValidateDocument validates knowledge content.
func ValidateDocument(content string) error {
	if len(content) == 0 {
		return errors.New("content cannot be empty")
	}
	if len(content) > maxDocumentBytes {
		return errors.New("content exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("content must be valid UTF-8")
	}
	return nil
}

// ValidateMessageID validates a message ID.
func ValidateMessageID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid message ID format")
	}
	return nil
}

// ValidateChannel validates a channel tag.
func ValidateChannel(channel string) error {
	if _, err := model.ParseChannel(channel); err != nil {
		return errors.New("channel must be one of whatsapp, messenger, voice, web")
	}
	return nil
}
