package agent

import (
	"strings"
	"unicode"

	"github.com/capitalize-ai/ai-engine/internal/model"
)

// closingPhrases are canned endings the model tends to repeat every turn.
var closingPhrases = []string{
	"¿Hay algo más en lo que pueda ayudarte?",
	"¿Hay algo más en lo que te pueda ayudar?",
	"¿En qué más puedo ayudarte?",
	"¿Puedo ayudarte en algo más?",
	"¿Necesitas algo más?",
	"Is there anything else I can help you with?",
	"Is there anything else I can help with?",
	"Anything else I can help you with?",
}

// ContainsAny reports whether text contains any keyword, ignoring case.
func ContainsAny(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// DetectAction returns ActionEscalate when the message asks for a human.
func DetectAction(message string, escalation []string) model.Action {
	if ContainsAny(message, escalation) {
		return model.ActionEscalate
	}
	return ""
}

// DetectLeadStatus returns LeadHot on scheduling intent, LeadInterested otherwise.
func DetectLeadStatus(message string, scheduling []string) model.LeadStatus {
	if ContainsAny(message, scheduling) {
		return model.LeadHot
	}
	return model.LeadInterested
}

// StripClosings removes trailing boilerplate closings, ignoring case and any
// emoji after them. Text made only of closings is returned unchanged.
func StripClosings(text string) string {
	out := strings.TrimSpace(text)
	for {
		trimmed, ok := cutClosing(out)
		if !ok {
			break
		}
		out = trimmed
	}
	if out == "" {
		return strings.TrimSpace(text)
	}
	return out
}

func cutClosing(text string) (string, bool) {
	tail := strings.TrimRightFunc(text, isDecoration)
	for _, phrase := range closingPhrases {
		n := len(tail) - len(phrase)
		if n >= 0 && strings.EqualFold(tail[n:], phrase) {
			return strings.TrimSpace(tail[:n]), true
		}
	}
	return text, false
}

// isDecoration matches whitespace, emoji and the joiners and variation
// selectors that follow them.
func isDecoration(r rune) bool {
	return unicode.IsSpace(r) || unicode.IsSymbol(r) || unicode.In(r, unicode.Mn, unicode.Cf)
}
