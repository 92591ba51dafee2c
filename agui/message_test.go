package agui

import (
	"testing"

	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"

	"github.com/neocode24/dify-a2a-gateway/a2a"
)

func TestToA2AMessage(t *testing.T) {
	tests := []struct {
		role string
		want a2a.Role
	}{
		{RoleUser, a2a.RoleUser},
		{RoleAssistant, a2a.RoleAgent},
		{RoleSystem, a2a.RoleUser},
		{RoleTool, a2a.RoleUser},
	}

	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			msg := ToA2AMessage(events.Message{ID: "1", Role: tt.role, Content: ptr("text")})
			if msg.Role != tt.want {
				t.Errorf("Role = %q, want %q", msg.Role, tt.want)
			}
			if msg.Text() != "text" {
				t.Errorf("Text() = %q, want %q", msg.Text(), "text")
			}
		})
	}
}

func TestToA2AMessages_SkipsEmpty(t *testing.T) {
	msgs := ToA2AMessages([]events.Message{
		{ID: "1", Role: RoleUser, Content: ptr("hi")},
		{ID: "2", Role: RoleAssistant},
		{ID: "3", Role: RoleAssistant, Content: ptr("")},
	})
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
}

func TestFromTask(t *testing.T) {
	task := a2a.NewTask("task-1", "ctx-1", a2a.NewMessage(a2a.RoleUser, a2a.NewTextPart("hi")))
	task.History = append(task.History, a2a.NewMessage(a2a.RoleAgent, a2a.NewTextPart("hello")))

	msgs := FromTask(task)
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Role != RoleUser || *msgs[0].Content != "hi" {
		t.Errorf("unexpected first message: %s %v", msgs[0].Role, msgs[0].Content)
	}
	if msgs[1].Role != RoleAssistant || *msgs[1].Content != "hello" {
		t.Errorf("unexpected second message: %s %v", msgs[1].Role, msgs[1].Content)
	}
	if msgs[0].ID == "" || msgs[0].ID == msgs[1].ID {
		t.Error("expected distinct message ids")
	}
}
