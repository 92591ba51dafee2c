package a2a

import (
	"encoding/json"
	"fmt"
)

// JSONRPCVersion is the only accepted protocol version.
const JSONRPCVersion = "2.0"

// Method names served by the gateway.
const (
	MethodMessageSend = "message.send"
	MethodTasksGet    = "tasks/get"
	MethodTasksList   = "tasks/list"
	MethodTasksCancel = "tasks/cancel"
)

// JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeServerError    = -32000
)

// DefaultListLimit is the page size used when tasks/list omits limit.
const DefaultListLimit = 10

// Request is a JSON-RPC 2.0 request. ID is kept as raw JSON so string and
// numeric ids round-trip unchanged.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC 2.0 response. Exactly one of Result and Error is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// NewResult wraps a result in a response envelope.
func NewResult(id json.RawMessage, result any) Response {
	return Response{JSONRPC: JSONRPCVersion, ID: id, Result: result}
}

// NewErrorResponse wraps an error in a response envelope.
func NewErrorResponse(id json.RawMessage, err *Error) Response {
	return Response{JSONRPC: JSONRPCVersion, ID: id, Error: err}
}

// RawResponse is a response whose result has not been decoded yet.
type RawResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// NewError creates an error object.
func NewError(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf creates an error object with a formatted message.
func Errorf(code int, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// SendParams are the params of message.send.
type SendParams struct {
	Messages      []Message          `json:"messages"`
	ContextID     string             `json:"contextId,omitempty"`
	Configuration *SendConfiguration `json:"configuration,omitempty"`
}

// SendConfiguration controls how message.send responds.
type SendConfiguration struct {
	// Stream selects an SSE response. Defaults to true when omitted.
	Stream *bool `json:"stream,omitempty"`
}

// Streaming reports whether the caller asked for an SSE response.
func (p SendParams) Streaming() bool {
	if p.Configuration == nil || p.Configuration.Stream == nil {
		return true
	}
	return *p.Configuration.Stream
}

// TaskIDParams are the params of tasks/get and tasks/cancel.
type TaskIDParams struct {
	TaskID string `json:"taskId"`
}

// ListParams are the params of tasks/list. Nil Limit means DefaultListLimit.
type ListParams struct {
	ContextID string     `json:"contextId,omitempty"`
	Status    TaskStatus `json:"status,omitempty"`
	Limit     *int       `json:"limit,omitempty"`
	Offset    *int       `json:"offset,omitempty"`
}

// Page returns the effective limit and offset.
func (p ListParams) Page() (limit, offset int) {
	limit = DefaultListLimit
	if p.Limit != nil {
		limit = *p.Limit
	}
	if p.Offset != nil {
		offset = *p.Offset
	}
	return limit, offset
}

// ListResult is the result of tasks/list. Total counts every matching task,
// not just the returned page.
type ListResult struct {
	Tasks []*Task `json:"tasks"`
	Total int     `json:"total"`
}
