package dify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	gateway "github.com/neocode24/dify-a2a-gateway"
	"github.com/neocode24/dify-a2a-gateway/internal/retry"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

func sseHandler(t *testing.T, frames ...string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, f := range frames {
			fmt.Fprint(w, f)
		}
	}
}

func frame(v map[string]any) string {
	data, _ := json.Marshal(v)
	return "data: " + string(data) + "\n\n"
}

func noRetry() ClientOption {
	return WithRetry(retry.Disabled())
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func collect(t *testing.T, s *gateway.Stream) ([]gateway.UpstreamEvent, error) {
	t.Helper()
	var events []gateway.UpstreamEvent
	for ev, err := range s.Events() {
		if err != nil {
			return events, err
		}
		events = append(events, ev)
	}
	return events, nil
}

func TestClient_StreamRequest(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/chat-messages", r.URL.Path)
		assert.Equal(t, "Bearer app-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, frame(map[string]any{"event": "message_end", "message_id": "m1"}))
	}))
	defer server.Close()

	client := New(server.URL+"/", "app-key", noRetry())
	stream, err := client.Stream(context.Background(), gateway.ChatRequest{
		Query:          "Hello",
		ConversationID: "conv-1",
		User:           "a2a-user-1234abcd",
		Files:          []gateway.File{{Type: "image", TransferMethod: "remote_url", URL: "https://x/a.png"}},
	})
	require.NoError(t, err)
	_, err = collect(t, stream)
	require.NoError(t, err)

	assert.Equal(t, "Hello", got.Query)
	assert.Equal(t, ResponseModeStreaming, got.ResponseMode)
	assert.Equal(t, "conv-1", got.ConversationID)
	assert.Equal(t, "a2a-user-1234abcd", got.User)
	assert.Equal(t, map[string]any{}, got.Inputs)
	require.Len(t, got.Files, 1)
	assert.Equal(t, "remote_url", got.Files[0].TransferMethod)
}

func TestClient_StreamOmitsEmptyConversation(t *testing.T) {
	var raw map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		w.Header().Set("Content-Type", "text/event-stream")
	}))
	defer server.Close()

	stream, err := New(server.URL, "k", noRetry()).Stream(context.Background(), gateway.ChatRequest{Query: "q", User: "u"})
	require.NoError(t, err)
	_, err = collect(t, stream)
	require.NoError(t, err)

	assert.NotContains(t, raw, "conversation_id")
	assert.NotContains(t, raw, "files")
}

func TestClient_StreamEvents(t *testing.T) {
	server := httptest.NewServer(sseHandler(t,
		"event: ping\n\n",
		frame(map[string]any{"event": "ping"}),
		frame(map[string]any{"event": "message", "task_id": "t1", "message_id": "m1", "conversation_id": "c1", "answer": "Hel", "created_at": 1700000000}),
		"data: {not json\n\n",
		frame(map[string]any{"event": "agent_message", "task_id": "t1", "conversation_id": "c1", "answer": "lo"}),
		frame(map[string]any{"event": "agent_thought", "thought": "thinking", "tool": "search", "tool_input": `{"q":"go"}`, "observation": "ok"}),
		frame(map[string]any{"event": "workflow_started", "workflow_run_id": "w1"}),
		frame(map[string]any{"event": "message_end", "task_id": "t1", "message_id": "m1", "conversation_id": "c1", "metadata": map[string]any{"usage": map[string]any{"total_tokens": 12}}}),
	))
	defer server.Close()

	stream, err := New(server.URL, "k", noRetry(), WithLogger(quietLogger())).Stream(context.Background(), gateway.ChatRequest{Query: "q", User: "u"})
	require.NoError(t, err)
	events, err := collect(t, stream)
	require.NoError(t, err)

	require.Len(t, events, 5)

	assert.Equal(t, gateway.KindMessageChunk, events[0].Kind)
	assert.Equal(t, "Hel", events[0].Answer)
	assert.Equal(t, "t1", events[0].TaskID)
	assert.Equal(t, "c1", events[0].ConversationID)
	assert.Equal(t, int64(1700000000), events[0].CreatedAt)

	assert.Equal(t, gateway.KindMessageChunk, events[1].Kind)
	assert.Equal(t, EventAgentMessage, events[1].Name)

	assert.Equal(t, gateway.KindAgentThought, events[2].Kind)
	assert.Equal(t, "search", events[2].Tool)
	assert.Equal(t, map[string]any{"q": "go"}, events[2].ToolInput)

	assert.Equal(t, gateway.KindOther, events[3].Kind)
	assert.Equal(t, "w1", events[3].Extra["workflow_run_id"])

	assert.Equal(t, gateway.KindMessageEnd, events[4].Kind)
	assert.Equal(t, "m1", events[4].MessageID)
	assert.Contains(t, events[4].Extra, "metadata")
}

func TestClient_StreamErrorEvent(t *testing.T) {
	server := httptest.NewServer(sseHandler(t,
		frame(map[string]any{"event": "error", "status": 400, "code": "provider_quota_exceeded", "message": "quota exceeded"}),
	))
	defer server.Close()

	stream, err := New(server.URL, "k", noRetry()).Stream(context.Background(), gateway.ChatRequest{Query: "q", User: "u"})
	require.NoError(t, err)
	events, err := collect(t, stream)
	require.NoError(t, err)

	require.Len(t, events, 1)
	assert.Equal(t, gateway.KindError, events[0].Kind)
	assert.Equal(t, 400, events[0].Status)
	assert.Equal(t, "provider_quota_exceeded", events[0].Code)
	assert.Equal(t, "quota exceeded", events[0].Message)
}

func TestClient_StreamLogsMalformedFrames(t *testing.T) {
	server := httptest.NewServer(sseHandler(t, "data: {oops\n\n"))
	defer server.Close()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	stream, err := New(server.URL, "k", noRetry(), WithLogger(logger)).Stream(context.Background(), gateway.ChatRequest{Query: "q", User: "u"})
	require.NoError(t, err)
	events, err := collect(t, stream)
	require.NoError(t, err)

	assert.Empty(t, events)
	assert.Contains(t, buf.String(), "skipping malformed dify event")
	assert.Contains(t, buf.String(), "level=WARN")
}

func TestClient_StreamStatusErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		category gateway.ErrorCategory
		code     string
	}{
		{"unauthorized", http.StatusUnauthorized, `{"code":"unauthorized","message":"Access token is invalid","status":401}`, gateway.ErrorPermanent, "unauthorized"},
		{"bad request", http.StatusBadRequest, `{"code":"invalid_param","message":"query is required","status":400}`, gateway.ErrorUserInput, "invalid_param"},
		{"not found", http.StatusNotFound, `{"code":"not_found","message":"Conversation Not Exists.","status":404}`, gateway.ErrorUserInput, "not_found"},
		{"server error", http.StatusInternalServerError, `internal error`, gateway.ErrorTransient, ""},
		{"rate limited", http.StatusTooManyRequests, `{"code":"too_many_requests","message":"slow down","status":429}`, gateway.ErrorTransient, "too_many_requests"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			_, err := New(server.URL, "k", noRetry()).Stream(context.Background(), gateway.ChatRequest{Query: "q", User: "u"})
			require.Error(t, err)

			var gwErr *gateway.Error
			require.ErrorAs(t, err, &gwErr)
			assert.Equal(t, tt.category, gwErr.Category())
			assert.Equal(t, tt.status, gwErr.StatusCode())
			assert.Equal(t, tt.code, gwErr.UpstreamCode)
		})
	}
}

func TestClient_StreamRetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, frame(map[string]any{"event": "message", "answer": "ok"}))
	}))
	defer server.Close()

	cfg := retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
	stream, err := New(server.URL, "k", WithRetry(cfg), WithLogger(quietLogger())).Stream(context.Background(), gateway.ChatRequest{Query: "q", User: "u"})
	require.NoError(t, err)
	events, err := collect(t, stream)
	require.NoError(t, err)

	assert.Equal(t, int32(3), calls.Load())
	require.Len(t, events, 1)
	assert.Equal(t, "ok", events[0].Answer)
}

func TestClient_StreamDoesNotRetryPermanent(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	cfg := retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
	_, err := New(server.URL, "k", WithRetry(cfg), WithLogger(quietLogger())).Stream(context.Background(), gateway.ChatRequest{Query: "q", User: "u"})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_StreamConnectionFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	addr := server.URL
	server.Close()

	_, err := New(addr, "k", noRetry()).Stream(context.Background(), gateway.ChatRequest{Query: "q", User: "u"})
	require.Error(t, err)
	assert.ErrorContains(t, err, "dify request failed")
}

func TestClient_StreamTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, frame(map[string]any{"event": "message", "answer": "a"}))
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := New(server.URL, "k", noRetry(), WithTimeout(200*time.Millisecond))
	stream, err := client.Stream(context.Background(), gateway.ChatRequest{Query: "q", User: "u"})
	require.NoError(t, err)

	events, err := collect(t, stream)
	require.Error(t, err)
	assert.Len(t, events, 1)
	assert.ErrorContains(t, err, "dify stream failed")
}

func TestClient_StreamEarlyBreakClosesBody(t *testing.T) {
	done := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer close(done)
		w.Header().Set("Content-Type", "text/event-stream")
		for range 100 {
			fmt.Fprint(w, frame(map[string]any{"event": "message", "answer": "x"}))
			w.(http.Flusher).Flush()
			select {
			case <-r.Context().Done():
				return
			case <-time.After(5 * time.Millisecond):
			}
		}
	}))
	defer server.Close()

	stream, err := New(server.URL, "k", noRetry()).Stream(context.Background(), gateway.ChatRequest{Query: "q", User: "u"})
	require.NoError(t, err)

	for range stream.Events() {
		break
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("server handler still writing after the consumer stopped")
	}
}

func TestClient_Stop(t *testing.T) {
	t.Run("posts user to stop endpoint", func(t *testing.T) {
		var body map[string]string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/chat-messages/task-9/stop", r.URL.Path)
			assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			fmt.Fprint(w, `{"result":"success"}`)
		}))
		defer server.Close()

		require.NoError(t, New(server.URL, "k").Stop(context.Background(), "task-9", "a2a-user-1"))
		assert.Equal(t, map[string]string{"user": "a2a-user-1"}, body)
	})

	t.Run("error status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		err := New(server.URL, "k").Stop(context.Background(), "task-9", "u")
		assert.True(t, gateway.IsUserInput(err))
	})

	t.Run("requires task id", func(t *testing.T) {
		assert.Error(t, New("http://unused", "k").Stop(context.Background(), "", "u"))
	})
}

func TestDecodeToolInput(t *testing.T) {
	assert.Nil(t, decodeToolInput(nil))
	assert.Equal(t, map[string]any{"a": "b"}, decodeToolInput(json.RawMessage(`{"a":"b"}`)))
	assert.Equal(t, map[string]any{"a": "b"}, decodeToolInput(json.RawMessage(`"{\"a\":\"b\"}"`)))
	assert.Equal(t, map[string]any{"input": "plain"}, decodeToolInput(json.RawMessage(`"plain"`)))
	assert.Nil(t, decodeToolInput(json.RawMessage(`""`)))
}

func TestKindOf(t *testing.T) {
	tests := map[string]gateway.EventKind{
		"message":        gateway.KindMessageChunk,
		"agent_message":  gateway.KindMessageChunk,
		"message_end":    gateway.KindMessageEnd,
		"error":          gateway.KindError,
		"agent_thought":  gateway.KindAgentThought,
		"message_file":   gateway.KindOther,
		"tts_message":    gateway.KindOther,
		"workflow_start": gateway.KindOther,
	}
	for name, want := range tests {
		assert.Equal(t, want, kindOf(name), name)
	}
}
