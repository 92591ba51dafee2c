package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/go-chi/chi/v5/middleware"

	gateway "github.com/neocode24/dify-a2a-gateway"
	"github.com/neocode24/dify-a2a-gateway/a2a"
	"github.com/neocode24/dify-a2a-gateway/manager"
	"github.com/neocode24/dify-a2a-gateway/store"
	"github.com/neocode24/dify-a2a-gateway/translator"
)

// maxRequestBytes bounds JSON-RPC request bodies.
const maxRequestBytes = 4 << 20

// rpc dispatches a JSON-RPC request.
func (s *Server) rpc(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.logger.Warn("method not allowed", "method", r.Method, "path", r.URL.Path)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeRPC(w, a2a.NewErrorResponse(nil, a2a.Errorf(a2a.CodeParseError, "Parse error: %v", err)))
		return
	}

	var req a2a.Request
	if err := json.Unmarshal(body, &req); err != nil {
		s.logger.Warn("invalid JSON-RPC request", "error", err)
		writeRPC(w, a2a.NewErrorResponse(nil, a2a.Errorf(a2a.CodeParseError, "Parse error: %v", err)))
		return
	}
	if req.JSONRPC != a2a.JSONRPCVersion {
		writeRPC(w, a2a.NewErrorResponse(req.ID, a2a.NewError(a2a.CodeInvalidRequest, "Invalid JSON-RPC version")))
		return
	}
	if req.Method == "" {
		writeRPC(w, a2a.NewErrorResponse(req.ID, a2a.NewError(a2a.CodeInvalidRequest, "Missing method")))
		return
	}

	log := s.logger.With(
		"method", req.Method,
		"id", string(req.ID),
		"request_id", middleware.GetReqID(r.Context()),
	)
	log.Info("A2A request received")

	var (
		result any
		rpcErr *a2a.Error
	)
	switch req.Method {
	case a2a.MethodMessageSend:
		s.handleSend(w, r, req, log)
		return
	case a2a.MethodTasksGet:
		result, rpcErr = s.getTask(r, req)
	case a2a.MethodTasksList:
		result, rpcErr = s.listTasks(r, req)
	case a2a.MethodTasksCancel:
		result, rpcErr = s.cancelTask(r, req)
	default:
		log.Warn("unknown method")
		rpcErr = a2a.Errorf(a2a.CodeMethodNotFound, "Method not found: %s", req.Method)
	}

	if rpcErr != nil {
		log.Warn("A2A request failed", "code", rpcErr.Code, "error", rpcErr.Message)
		writeRPC(w, a2a.NewErrorResponse(req.ID, rpcErr))
		return
	}
	writeRPC(w, a2a.NewResult(req.ID, result))
}

// handleSend creates a task from the request and runs it, streaming events
// unless the caller asked for a single result.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request, req a2a.Request, log *slog.Logger) {
	start := time.Now()
	ctx := r.Context()

	var params a2a.SendParams
	if rpcErr := decodeParams(req.Params, &params); rpcErr != nil {
		writeRPC(w, a2a.NewErrorResponse(req.ID, rpcErr))
		return
	}
	msg, ok := a2a.LastUserMessage(params.Messages)
	if !ok {
		log.Warn("no user message")
		writeRPC(w, a2a.NewErrorResponse(req.ID, rpcError(translator.ErrNoUserMessage)))
		return
	}

	task, err := s.manager.CreateTask(ctx, params.ContextID, msg)
	if err != nil {
		writeRPC(w, a2a.NewErrorResponse(req.ID, rpcError(err)))
		return
	}
	log = log.With("task_id", task.ID, "context_id", task.ContextID)
	correlationID := strings.Trim(string(req.ID), `"`)

	if !params.Streaming() {
		final, err := s.manager.RunTask(ctx, task.ID, manager.WithCorrelationID(correlationID))
		if err != nil {
			writeRPC(w, a2a.NewErrorResponse(req.ID, rpcError(err)))
			return
		}
		writeRPC(w, a2a.NewResult(req.ID, final))
		log.Info("A2A request completed", "status", final.Status, "duration_ms", time.Since(start).Milliseconds())
		return
	}

	sse, err := newSSEWriter(w)
	if err != nil {
		log.Error("streaming not supported")
		writeRPC(w, a2a.NewErrorResponse(req.ID, a2a.NewError(a2a.CodeInternalError, "Streaming not supported")))
		return
	}

	sink := func(out a2a.Outbound) {
		resp := a2a.NewResult(req.ID, out.Event)
		if out.Err != nil {
			resp = a2a.NewErrorResponse(req.ID, out.Err)
		}
		data, err := json.Marshal(resp)
		if err != nil {
			log.Error("failed to serialize event", "error", err)
			return
		}
		if err := sse.write("", data); err != nil {
			log.Debug("dropping event", "error", err)
		}
	}

	final, err := s.manager.RunTask(ctx, task.ID,
		manager.WithSink(sink),
		manager.WithCorrelationID(correlationID),
	)
	if err != nil {
		if !sse.Started() {
			writeRPC(w, a2a.NewErrorResponse(req.ID, rpcError(err)))
			return
		}
		sink(a2a.Outbound{Err: rpcError(err)})
	}

	duration := time.Since(start)
	if sse.err != nil {
		log.Error("A2A stream failed",
			"duration_ms", duration.Milliseconds(),
			"events_sent", sse.count,
			"error", sse.err,
		)
		return
	}
	status := a2a.TaskStatus("")
	if final != nil {
		status = final.Status
	}
	log.Info("A2A stream completed",
		"status", status,
		"duration_ms", duration.Milliseconds(),
		"events_sent", sse.count,
	)
}

func (s *Server) getTask(r *http.Request, req a2a.Request) (any, *a2a.Error) {
	var params a2a.TaskIDParams
	if rpcErr := decodeTaskID(req.Params, &params); rpcErr != nil {
		return nil, rpcErr
	}
	task, err := s.manager.GetTask(r.Context(), params.TaskID)
	if err != nil {
		return nil, rpcError(err)
	}
	return task, nil
}

func (s *Server) listTasks(r *http.Request, req a2a.Request) (any, *a2a.Error) {
	var params a2a.ListParams
	if len(req.Params) > 0 {
		if rpcErr := decodeParams(req.Params, &params); rpcErr != nil {
			return nil, rpcErr
		}
	}
	if params.Status != "" && !params.Status.Valid() {
		return nil, a2a.Errorf(a2a.CodeInvalidParams, "Invalid status: %s", params.Status)
	}

	limit, offset := params.Page()
	filter := store.Filter{ContextID: params.ContextID, Status: params.Status}
	tasks, total := s.manager.ListTasks(r.Context(), filter, limit, offset)
	if tasks == nil {
		tasks = []*a2a.Task{}
	}
	return a2a.ListResult{Tasks: tasks, Total: total}, nil
}

func (s *Server) cancelTask(r *http.Request, req a2a.Request) (any, *a2a.Error) {
	var params a2a.TaskIDParams
	if rpcErr := decodeTaskID(req.Params, &params); rpcErr != nil {
		return nil, rpcErr
	}
	task, err := s.manager.CancelTask(r.Context(), params.TaskID)
	if err != nil {
		return nil, rpcError(err)
	}
	return task, nil
}

func decodeParams(raw json.RawMessage, v any) *a2a.Error {
	if len(raw) == 0 {
		return a2a.NewError(a2a.CodeInvalidParams, "Missing params")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return a2a.Errorf(a2a.CodeInvalidParams, "Invalid params: %v", err)
	}
	return nil
}

func decodeTaskID(raw json.RawMessage, params *a2a.TaskIDParams) *a2a.Error {
	if rpcErr := decodeParams(raw, params); rpcErr != nil {
		return rpcErr
	}
	if params.TaskID == "" {
		return a2a.NewError(a2a.CodeInvalidParams, "Missing taskId")
	}
	return nil
}

// rpcError maps an error to a JSON-RPC error object.
func rpcError(err error) *a2a.Error {
	var rpcErr *a2a.Error
	switch {
	case errors.As(err, &rpcErr):
		return rpcErr
	case errors.Is(err, translator.ErrNoUserMessage):
		return a2a.NewError(a2a.CodeInvalidParams, "No user message in request")
	case errors.Is(err, manager.ErrTaskNotFound):
		return a2a.NewError(a2a.CodeInvalidParams, "Task not found: "+detail(err, manager.ErrTaskNotFound))
	case errors.Is(err, manager.ErrInvalidTransition):
		return a2a.NewError(a2a.CodeInvalidParams, capitalize(detail(err, manager.ErrInvalidTransition)))
	case errors.Is(err, store.ErrTaskExists):
		return a2a.NewError(a2a.CodeInvalidParams, "Task already exists")
	}

	var categorized gateway.CategorizedError
	if errors.As(err, &categorized) {
		return a2a.NewError(a2a.CodeServerError, err.Error())
	}
	return a2a.Errorf(a2a.CodeInternalError, "Internal error: %v", err)
}

// detail strips the sentinel's text from a wrapped error message.
func detail(err, sentinel error) string {
	return strings.TrimPrefix(err.Error(), sentinel.Error()+": ")
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

func writeRPC(w http.ResponseWriter, resp a2a.Response) {
	writeJSON(w, http.StatusOK, resp)
}
