package agui

import (
	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"

	"github.com/neocode24/dify-a2a-gateway/a2a"
)

// Role constants matching AG-UI protocol.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// ToA2AMessages converts AG-UI messages to A2A messages. Messages without
// content are dropped.
func ToA2AMessages(msgs []events.Message) []a2a.Message {
	result := make([]a2a.Message, 0, len(msgs))
	for _, msg := range msgs {
		if msg.Content == nil || *msg.Content == "" {
			continue
		}
		result = append(result, ToA2AMessage(msg))
	}
	return result
}

// ToA2AMessage converts a single AG-UI message to an A2A message with one
// text part. Tool results and system messages are treated as user input.
func ToA2AMessage(msg events.Message) a2a.Message {
	m := a2a.Message{
		Role:  toA2ARole(msg.Role),
		Parts: []a2a.Part{},
	}
	if msg.Content != nil {
		m.Parts = append(m.Parts, a2a.NewTextPart(*msg.Content))
	}
	return m
}

// FromTask converts a task's history to AG-UI messages for a snapshot.
func FromTask(task *a2a.Task) []events.Message {
	result := make([]events.Message, 0, len(task.History))
	for _, msg := range task.History {
		result = append(result, FromA2AMessage(msg))
	}
	return result
}

// FromA2AMessage converts an A2A message to an AG-UI message. Only text
// parts are carried over.
func FromA2AMessage(msg a2a.Message) events.Message {
	m := events.Message{
		ID:   events.GenerateMessageID(),
		Role: fromA2ARole(msg.Role),
	}
	if text := msg.Text(); text != "" {
		m.Content = &text
	}
	return m
}

func toA2ARole(role string) a2a.Role {
	switch role {
	case RoleAssistant:
		return a2a.RoleAgent
	default:
		return a2a.RoleUser
	}
}

func fromA2ARole(role a2a.Role) string {
	switch role {
	case a2a.RoleAgent:
		return RoleAssistant
	default:
		return RoleUser
	}
}
