package core

import "github.com/nightcipher/dreamjournal/internal/store"

// ChatHistoryWindow bounds how many prior messages prime a follow-up call.
const ChatHistoryWindow = 8

// ChatTurn is one {role, content} pair handed to the AI adapter.
type ChatTurn struct {
	Role    store.MessageRole `json:"role"`
	Content string            `json:"content"`
}

// BuildChatContext selects the most recent ChatHistoryWindow messages from an
// oldest-first thread, preserving their relative order. Pure function: no
// side effects, no trimming of content.
func BuildChatContext(messages []store.DreamMessage) []ChatTurn {
	if len(messages) > ChatHistoryWindow {
		messages = messages[len(messages)-ChatHistoryWindow:]
	}

	turns := make([]ChatTurn, 0, len(messages))
	for _, msg := range messages {
		turns = append(turns, ChatTurn{Role: msg.Role, Content: msg.Content})
	}
	return turns
}
