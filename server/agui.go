package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/neocode24/dify-a2a-gateway/a2a"
	"github.com/neocode24/dify-a2a-gateway/agui"
	"github.com/neocode24/dify-a2a-gateway/manager"
)

// runAGUI runs one task for an AG-UI client and streams the mapped events.
// The thread id is used as the task's context id, so a thread continues the
// same upstream conversation.
func (s *Server) runAGUI(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if r.Method != http.MethodPost {
		s.logger.Warn("method not allowed", "method", r.Method, "path", r.URL.Path)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var input agui.RunAgentInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.logger.Warn("invalid request body", "error", err)
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	log := s.logger.With(
		"run_id", input.RunID,
		"thread_id", input.ThreadID,
		"request_id", middleware.GetReqID(r.Context()),
	)

	prepared, err := input.Prepare()
	if err != nil {
		log.Warn("invalid input", "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sse, err := newSSEWriter(w)
	if err != nil {
		log.Error("streaming not supported")
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	task, err := s.manager.CreateTask(ctx, prepared.ThreadID, prepared.Message)
	if err != nil {
		log.Error("failed to create task", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	log = log.With("task_id", task.ID)
	log.Info("request started")

	mapper := agui.NewMapper(prepared.ThreadID, prepared.RunID)
	send := func(ev events.Event) {
		data, err := ev.ToJSON()
		if err != nil {
			log.Error("failed to serialize event", "error", err, "event_type", ev.Type())
			return
		}
		log.Debug("sending SSE event", "event_type", ev.Type(), "event_num", sse.count+1)
		if err := sse.write(string(ev.Type()), data); err != nil {
			log.Debug("dropping event", "error", err, "event_type", ev.Type())
		}
	}

	send(mapper.RunStarted())
	sink := func(out a2a.Outbound) {
		if st, ok := out.Event.(a2a.TaskStatusUpdateEvent); ok && st.Final && !mapper.Done() {
			// the task is persisted before its final status is reported
			if final, err := s.manager.GetTask(ctx, st.TaskID); err == nil {
				send(events.NewMessagesSnapshotEvent(agui.FromTask(final)))
			}
		}
		for _, ev := range mapper.Map(out) {
			send(ev)
		}
	}

	_, err = s.manager.RunTask(ctx, task.ID,
		manager.WithSink(sink),
		manager.WithCorrelationID(prepared.ThreadID),
	)
	if err != nil && !mapper.Done() {
		send(mapper.RunError(err.Error()))
	}

	duration := time.Since(start)
	if sse.err != nil {
		log.Error("request failed",
			"duration_ms", duration.Milliseconds(),
			"events_sent", sse.count,
			"error", sse.err,
		)
		return
	}
	log.Info("request completed",
		"duration_ms", duration.Milliseconds(),
		"events_sent", sse.count,
	)
}
