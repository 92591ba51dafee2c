package a2a

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskStatus(t *testing.T) {
	tests := []struct {
		status   TaskStatus
		terminal bool
	}{
		{TaskStatusPending, false},
		{TaskStatusRunning, false},
		{TaskStatusInputRequired, false},
		{TaskStatusAuthRequired, false},
		{TaskStatusCompleted, true},
		{TaskStatusFailed, true},
		{TaskStatusCanceled, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.True(t, tt.status.Valid())
			assert.Equal(t, tt.terminal, tt.status.IsTerminal())
		})
	}

	assert.False(t, TaskStatus("submitted").Valid())
}

func TestUnmarshalPart(t *testing.T) {
	t.Run("text", func(t *testing.T) {
		p, err := UnmarshalPart([]byte(`{"type":"text","text":"hello"}`))
		require.NoError(t, err)
		assert.Equal(t, TextPart{Text: "hello"}, p)
	})

	t.Run("file with uri", func(t *testing.T) {
		p, err := UnmarshalPart([]byte(`{"type":"file","name":"a.png","mimeType":"image/png","uri":"https://x/a.png"}`))
		require.NoError(t, err)
		assert.Equal(t, NewFilePartWithURI("a.png", "image/png", "https://x/a.png"), p)
	})

	t.Run("file without uri or bytes", func(t *testing.T) {
		_, err := UnmarshalPart([]byte(`{"type":"file","name":"a.png"}`))
		assert.ErrorContains(t, err, "needs a uri or bytes")
	})

	t.Run("data", func(t *testing.T) {
		p, err := UnmarshalPart([]byte(`{"type":"data","data":{"city":"Seoul"}}`))
		require.NoError(t, err)
		assert.Equal(t, DataPart{Data: map[string]any{"city": "Seoul"}}, p)
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := UnmarshalPart([]byte(`{"type":"video","url":"x"}`))
		assert.ErrorIs(t, err, ErrUnknownPartType)
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := UnmarshalPart([]byte(`{`))
		assert.Error(t, err)
	})
}

func TestPartMarshalIncludesType(t *testing.T) {
	parts := []Part{
		NewTextPart("hi"),
		NewFilePartWithBytes("a.txt", "text/plain", "aGk="),
		NewDataPart(map[string]any{"k": "v"}),
	}

	for _, p := range parts {
		t.Run(p.PartType(), func(t *testing.T) {
			data, err := json.Marshal(p)
			require.NoError(t, err)
			assert.Contains(t, string(data), `"type":"`+p.PartType()+`"`)

			back, err := UnmarshalPart(data)
			require.NoError(t, err)
			assert.Equal(t, p, back)
		})
	}
}

func TestMessage(t *testing.T) {
	t.Run("unmarshal decodes parts", func(t *testing.T) {
		var m Message
		err := json.Unmarshal([]byte(`{"role":"user","parts":[{"type":"text","text":"a"},{"type":"data","data":{}}]}`), &m)
		require.NoError(t, err)
		assert.Equal(t, RoleUser, m.Role)
		require.Len(t, m.Parts, 2)
		assert.IsType(t, TextPart{}, m.Parts[0])
		assert.IsType(t, DataPart{}, m.Parts[1])
	})

	t.Run("unmarshal rejects unknown part", func(t *testing.T) {
		var m Message
		err := json.Unmarshal([]byte(`{"role":"user","parts":[{"type":"audio"}]}`), &m)
		assert.ErrorIs(t, err, ErrUnknownPartType)
	})

	t.Run("text joins text parts with newlines", func(t *testing.T) {
		m := NewMessage(RoleUser,
			NewTextPart("first"),
			NewDataPart(map[string]any{"x": 1}),
			NewTextPart(""),
			NewTextPart("second"),
		)
		assert.Equal(t, "first\nsecond", m.Text())
		assert.NotNil(t, m.Timestamp)

		assert.Empty(t, NewMessage(RoleUser, NewDataPart(map[string]any{"x": 1})).Text())
	})

	t.Run("last user message", func(t *testing.T) {
		msgs := []Message{
			NewMessage(RoleUser, NewTextPart("one")),
			NewMessage(RoleAgent, NewTextPart("reply")),
			NewMessage(RoleUser, NewTextPart("two")),
			NewMessage(RoleAgent, NewTextPart("reply 2")),
		}
		m, ok := LastUserMessage(msgs)
		require.True(t, ok)
		assert.Equal(t, "two", m.Text())

		_, ok = LastUserMessage([]Message{NewMessage(RoleAgent, NewTextPart("x"))})
		assert.False(t, ok)
	})
}

func TestIDs(t *testing.T) {
	assert.True(t, strings.HasPrefix(NewTaskID(), TaskIDPrefix))
	assert.True(t, strings.HasPrefix(NewContextID(), ContextIDPrefix))
	assert.True(t, strings.HasPrefix(NewArtifactID(), ArtifactIDPrefix))
	assert.NotEqual(t, NewTaskID(), NewTaskID())
}

func TestTask(t *testing.T) {
	t.Run("new task is pending with empty collections", func(t *testing.T) {
		task := NewTask("task-1", "ctx-1", NewMessage(RoleUser, NewTextPart("hi")))
		assert.Equal(t, TaskStatusPending, task.Status)
		assert.Len(t, task.History, 1)
		assert.NotNil(t, task.Artifacts)
		assert.NotNil(t, task.Metadata)
		assert.Equal(t, task.CreatedAt, task.UpdatedAt)
		assert.Empty(t, task.ConversationID())
	})

	t.Run("empty collections serialize as arrays", func(t *testing.T) {
		task := NewTask("task-1", "ctx-1", NewMessage(RoleUser, NewTextPart("hi")))
		data, err := json.Marshal(task)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"artifacts":[]`)
		assert.Contains(t, string(data), `"metadata":{}`)
		assert.NotContains(t, string(data), "completedAt")
	})

	t.Run("clone does not alias", func(t *testing.T) {
		task := NewTask("task-1", "ctx-1", NewMessage(RoleUser, NewDataPart(map[string]any{"a": 1})))
		task.Metadata[MetadataConversationID] = "conv-1"
		task.Artifacts = append(task.Artifacts, NewArtifact("Dify Response", NewTextPart("x")))

		c := task.Clone()
		c.Metadata[MetadataConversationID] = "conv-2"
		c.History[0].Parts[0].(DataPart).Data["a"] = 2
		c.Artifacts[0].Metadata["event_type"] = "message"
		c.History = append(c.History, NewMessage(RoleAgent))

		assert.Equal(t, "conv-1", task.ConversationID())
		assert.Equal(t, 1, task.History[0].Parts[0].(DataPart).Data["a"])
		assert.Empty(t, task.Artifacts[0].Metadata)
		assert.Len(t, task.History, 1)
	})

	t.Run("json round trip", func(t *testing.T) {
		task := NewTask("task-1", "ctx-1", NewMessage(RoleUser, NewTextPart("hi"), NewFilePartWithURI("f", "", "https://x")))
		task.Artifacts = append(task.Artifacts, NewArtifact("Dify Response", NewTextPart("answer")))

		data, err := json.Marshal(task)
		require.NoError(t, err)
		var back Task
		require.NoError(t, json.Unmarshal(data, &back))

		assert.Equal(t, task.ID, back.ID)
		assert.Equal(t, task.History[0].Parts, back.History[0].Parts)
		assert.Equal(t, "answer", back.Artifacts[0].Text())
	})
}

func TestUnmarshalEvent(t *testing.T) {
	t.Run("status update", func(t *testing.T) {
		data, err := json.Marshal(NewStatusUpdate("task-1", "ctx-1", TaskStatusCompleted, true))
		require.NoError(t, err)

		ev, err := UnmarshalEvent(data)
		require.NoError(t, err)
		status, ok := ev.(TaskStatusUpdateEvent)
		require.True(t, ok)
		assert.Equal(t, EventTypeStatusUpdate, status.EventType())
		assert.True(t, status.Final)
	})

	t.Run("artifact update", func(t *testing.T) {
		update := NewArtifactUpdate("task-1", "ctx-1", NewArtifact("Dify Response", NewTextPart("chunk")))
		update.Append = true
		data, err := json.Marshal(update)
		require.NoError(t, err)

		ev, err := UnmarshalEvent(data)
		require.NoError(t, err)
		artifact, ok := ev.(TaskArtifactUpdateEvent)
		require.True(t, ok)
		assert.True(t, artifact.Append)
		assert.Equal(t, "chunk", artifact.Artifact.Text())
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := UnmarshalEvent([]byte(`{"type":"run_started"}`))
		assert.Error(t, err)
	})
}

func TestSendParams(t *testing.T) {
	var p SendParams
	require.NoError(t, json.Unmarshal([]byte(`{"messages":[]}`), &p))
	assert.True(t, p.Streaming())

	require.NoError(t, json.Unmarshal([]byte(`{"messages":[],"configuration":{"stream":false}}`), &p))
	assert.False(t, p.Streaming())
}

func TestListParamsPage(t *testing.T) {
	limit, offset := ListParams{}.Page()
	assert.Equal(t, DefaultListLimit, limit)
	assert.Zero(t, offset)

	l, o := 3, 6
	limit, offset = ListParams{Limit: &l, Offset: &o}.Page()
	assert.Equal(t, 3, limit)
	assert.Equal(t, 6, offset)
}

func TestError(t *testing.T) {
	err := Errorf(CodeInvalidParams, "Task not found: %s", "task-1")
	assert.Equal(t, "jsonrpc error -32602: Task not found: task-1", err.Error())

	data, mErr := json.Marshal(NewErrorResponse(json.RawMessage(`"abc"`), err))
	require.NoError(t, mErr)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":"abc","error":{"code":-32602,"message":"Task not found: task-1"}}`, string(data))
}
