package dify

import (
	"encoding/json"
	"fmt"

	gateway "github.com/neocode24/dify-a2a-gateway"
)

// Dify stream event names.
const (
	EventMessage      = "message"
	EventAgentMessage = "agent_message"
	EventMessageEnd   = "message_end"
	EventError        = "error"
	EventAgentThought = "agent_thought"
	EventPing         = "ping"
)

// knownFields are decoded into typed UpstreamEvent fields; everything else
// lands in Extra.
var knownFields = map[string]bool{
	"event":           true,
	"task_id":         true,
	"message_id":      true,
	"conversation_id": true,
	"answer":          true,
	"created_at":      true,
	"thought":         true,
	"tool":            true,
	"tool_input":      true,
	"observation":     true,
	"status":          true,
	"code":            true,
	"message":         true,
}

// wireEvent is the JSON payload of a Dify SSE frame.
type wireEvent struct {
	Event          string          `json:"event"`
	TaskID         string          `json:"task_id"`
	MessageID      string          `json:"message_id"`
	ConversationID string          `json:"conversation_id"`
	Answer         string          `json:"answer"`
	CreatedAt      int64           `json:"created_at"`
	Thought        string          `json:"thought"`
	Tool           string          `json:"tool"`
	ToolInput      json.RawMessage `json:"tool_input"`
	Observation    string          `json:"observation"`
	Status         int             `json:"status"`
	Code           string          `json:"code"`
	Message        string          `json:"message"`
}

// kindOf maps a Dify event name to the normalized kind.
func kindOf(name string) gateway.EventKind {
	switch name {
	case EventMessage, EventAgentMessage:
		return gateway.KindMessageChunk
	case EventMessageEnd:
		return gateway.KindMessageEnd
	case EventError:
		return gateway.KindError
	case EventAgentThought:
		return gateway.KindAgentThought
	default:
		return gateway.KindOther
	}
}

// decodeEvent parses one frame payload. skip is true for keep-alive frames.
func decodeEvent(data []byte) (ev gateway.UpstreamEvent, skip bool, err error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return ev, false, fmt.Errorf("decode dify event: %w", err)
	}
	if w.Event == "" || w.Event == EventPing {
		return ev, true, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return ev, false, fmt.Errorf("decode dify event: %w", err)
	}
	var extra map[string]any
	for k, v := range raw {
		if knownFields[k] {
			continue
		}
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			continue
		}
		if extra == nil {
			extra = make(map[string]any)
		}
		extra[k] = val
	}

	return gateway.UpstreamEvent{
		Kind:           kindOf(w.Event),
		Name:           w.Event,
		TaskID:         w.TaskID,
		MessageID:      w.MessageID,
		ConversationID: w.ConversationID,
		Answer:         w.Answer,
		CreatedAt:      w.CreatedAt,
		Thought:        w.Thought,
		Tool:           w.Tool,
		ToolInput:      decodeToolInput(w.ToolInput),
		Observation:    w.Observation,
		Status:         w.Status,
		Code:           w.Code,
		Message:        w.Message,
		Extra:          extra,
	}, false, nil
}

// decodeToolInput accepts an object or a JSON-encoded object string, which is
// how agent apps report it.
func decodeToolInput(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err == nil {
		return m
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || s == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(s), &m); err == nil {
		return m
	}
	return map[string]any{"input": s}
}
