// Package llm holds the chat-turn types shared by the intake surfaces and the
// memory pipeline.
package llm

import (
	"encoding/json"
	"strings"
)

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is a single chat turn.
//
// Hosts send content either as a plain string or as an array of typed parts
// (`[{"type":"text","text":"..."}, {"type":"image_url", ...}]`). Both decode
// into Content; only text parts are kept.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NewTextMessage creates a message with the given role and text.
func NewTextMessage(role, text string) Message {
	return Message{Role: role, Content: text}
}

// IsUser reports whether the message was authored by the user.
func (m Message) IsUser() bool {
	return m.Role == RoleUser
}

type contentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// UnmarshalJSON accepts string or multi-part content.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	m.Role = raw.Role
	m.Content = ""

	if len(raw.Content) == 0 || string(raw.Content) == "null" {
		return nil
	}

	var text string
	if err := json.Unmarshal(raw.Content, &text); err == nil {
		m.Content = text
		return nil
	}

	var parts []contentPart
	if err := json.Unmarshal(raw.Content, &parts); err != nil {
		return err
	}

	texts := make([]string, 0, len(parts))
	for _, p := range parts {
		if p.Type == "text" && p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	m.Content = strings.Join(texts, "\n")
	return nil
}

// LastUserMessage scans from the end of messages and returns the newest
// user-authored turn.
func LastUserMessage(messages []Message) (Message, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].IsUser() {
			return messages[i], true
		}
	}
	return Message{}, false
}

// ErrorResponse is the JSON error body returned by the HTTP surfaces.
type ErrorResponse struct {
	Error string `json:"error"`
}
