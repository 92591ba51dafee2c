package a2a

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rpcServer(t *testing.T, handle func(req Request) Response) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, JSONRPCVersion, req.JSONRPC)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(handle(req))
	}))
}

func TestClient_GetTask(t *testing.T) {
	t.Run("successful request", func(t *testing.T) {
		server := rpcServer(t, func(req Request) Response {
			assert.Equal(t, MethodTasksGet, req.Method)
			var params TaskIDParams
			require.NoError(t, json.Unmarshal(req.Params, &params))
			assert.Equal(t, "task-123", params.TaskID)

			task := NewTask("task-123", "ctx-1", NewMessage(RoleUser, NewTextPart("Hello")))
			task.Status = TaskStatusCompleted
			return NewResult(req.ID, task)
		})
		defer server.Close()

		client := NewClient(server.URL)
		task, err := client.GetTask(context.Background(), "task-123")
		require.NoError(t, err)

		assert.Equal(t, "task-123", task.ID)
		assert.Equal(t, TaskStatusCompleted, task.Status)
		require.Len(t, task.History, 1)
		assert.Equal(t, "Hello", task.History[0].Text())
	})

	t.Run("RPC error", func(t *testing.T) {
		server := rpcServer(t, func(req Request) Response {
			return NewErrorResponse(req.ID, Errorf(CodeInvalidParams, "Task not found: %s", "missing"))
		})
		defer server.Close()

		client := NewClient(server.URL)
		_, err := client.GetTask(context.Background(), "missing")
		require.Error(t, err)

		var rpcErr *Error
		require.ErrorAs(t, err, &rpcErr)
		assert.Equal(t, CodeInvalidParams, rpcErr.Code)
		assert.Equal(t, "Task not found: missing", rpcErr.Message)
	})

	t.Run("HTTP error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusMethodNotAllowed)
		}))
		defer server.Close()

		_, err := NewClient(server.URL).GetTask(context.Background(), "task-1")
		assert.ErrorContains(t, err, "unexpected status 405")
	})
}

func TestClient_RequestIDsIncrease(t *testing.T) {
	var ids []string
	server := rpcServer(t, func(req Request) Response {
		ids = append(ids, string(req.ID))
		return NewResult(req.ID, ListResult{Tasks: []*Task{}})
	})
	defer server.Close()

	client := NewClient(server.URL)
	for range 3 {
		_, err := client.ListTasks(context.Background(), ListParams{})
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"1", "2", "3"}, ids)
}

func TestClient_ListTasks(t *testing.T) {
	server := rpcServer(t, func(req Request) Response {
		var params ListParams
		require.NoError(t, json.Unmarshal(req.Params, &params))
		assert.Equal(t, "ctx-1", params.ContextID)
		limit, offset := params.Page()
		assert.Equal(t, 2, limit)
		assert.Equal(t, 0, offset)

		return NewResult(req.ID, ListResult{
			Tasks: []*Task{NewTask("task-1", "ctx-1", NewMessage(RoleUser, NewTextPart("a")))},
			Total: 5,
		})
	})
	defer server.Close()

	limit := 2
	result, err := NewClient(server.URL).ListTasks(context.Background(), ListParams{ContextID: "ctx-1", Limit: &limit})
	require.NoError(t, err)
	assert.Len(t, result.Tasks, 1)
	assert.Equal(t, 5, result.Total)
}

func TestClient_Send(t *testing.T) {
	server := rpcServer(t, func(req Request) Response {
		assert.Equal(t, MethodMessageSend, req.Method)
		var params SendParams
		require.NoError(t, json.Unmarshal(req.Params, &params))
		assert.False(t, params.Streaming())
		assert.Equal(t, "ctx-9", params.ContextID)

		task := NewTask("task-1", params.ContextID, params.Messages[0])
		task.Status = TaskStatusCompleted
		return NewResult(req.ID, task)
	})
	defer server.Close()

	task, err := NewClient(server.URL).SendText(context.Background(), "ctx-9", "Hello")
	require.NoError(t, err)
	assert.Equal(t, TaskStatusCompleted, task.Status)
	assert.Equal(t, "ctx-9", task.ContextID)
}

func TestClient_SendStream(t *testing.T) {
	t.Run("yields events and error envelopes in order", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req Request
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			var params SendParams
			require.NoError(t, json.Unmarshal(req.Params, &params))
			assert.True(t, params.Streaming())

			w.Header().Set("Content-Type", "text/event-stream")
			frames := []Response{
				NewResult(req.ID, NewStatusUpdate("task-1", "ctx-1", TaskStatusRunning, false)),
				NewResult(req.ID, NewArtifactUpdate("task-1", "ctx-1", NewArtifact("Dify Response", NewTextPart("Hel")))),
				NewErrorResponse(req.ID, NewError(CodeServerError, "quota exceeded")),
				NewResult(req.ID, NewStatusUpdate("task-1", "ctx-1", TaskStatusFailed, true)),
			}
			for _, f := range frames {
				data, err := json.Marshal(f)
				require.NoError(t, err)
				fmt.Fprintf(w, "data: %s\n\n", data)
			}
		}))
		defer server.Close()

		client := NewClient(server.URL)
		var got []Outbound
		for out, err := range client.SendStream(context.Background(), SendParams{
			Messages: []Message{NewMessage(RoleUser, NewTextPart("Hi"))},
		}) {
			require.NoError(t, err)
			got = append(got, out)
		}

		require.Len(t, got, 4)
		status, ok := got[0].Event.(TaskStatusUpdateEvent)
		require.True(t, ok)
		assert.Equal(t, TaskStatusRunning, status.Status)

		artifact, ok := got[1].Event.(TaskArtifactUpdateEvent)
		require.True(t, ok)
		assert.Equal(t, "Hel", artifact.Artifact.Text())

		require.NotNil(t, got[2].Err)
		assert.Equal(t, CodeServerError, got[2].Err.Code)

		final, ok := got[3].Event.(TaskStatusUpdateEvent)
		require.True(t, ok)
		assert.True(t, final.Final)
		assert.Equal(t, TaskStatusFailed, final.Status)
	})

	t.Run("rejected request", func(t *testing.T) {
		server := rpcServer(t, func(req Request) Response {
			return NewErrorResponse(req.ID, NewError(CodeInvalidParams, "No user message found"))
		})
		defer server.Close()

		var got []Outbound
		for out, err := range NewClient(server.URL).SendStream(context.Background(), SendParams{}) {
			require.NoError(t, err)
			got = append(got, out)
		}
		require.Len(t, got, 1)
		require.NotNil(t, got[0].Err)
		assert.Equal(t, CodeInvalidParams, got[0].Err.Code)
	})

	t.Run("early break", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/event-stream")
			for range 3 {
				data, _ := json.Marshal(NewResult(json.RawMessage("1"), NewStatusUpdate("task-1", "ctx-1", TaskStatusRunning, false)))
				fmt.Fprintf(w, "data: %s\n\n", data)
			}
		}))
		defer server.Close()

		count := 0
		for range NewClient(server.URL).SendStream(context.Background(), SendParams{}) {
			count++
			break
		}
		assert.Equal(t, 1, count)
	})
}
