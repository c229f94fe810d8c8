package testutils

import "github.com/papercomputeco/automem/pkg/llm"

// NewConversation builds alternating user/assistant messages, starting with
// the user.
func NewConversation(turns ...string) []llm.Message {
	msgs := make([]llm.Message, 0, len(turns))
	for i, t := range turns {
		role := llm.RoleUser
		if i%2 == 1 {
			role = llm.RoleAssistant
		}
		msgs = append(msgs, llm.NewTextMessage(role, t))
	}
	return msgs
}
