package mcp

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/neocode24/dify-a2a-gateway/manager"
)

// ServerOption configures a Server.
type ServerOption func(*serverConfig)

type serverConfig struct {
	name    string
	version string
	logger  *slog.Logger
}

// WithName sets the server name reported to MCP clients.
func WithName(name string) ServerOption {
	return func(c *serverConfig) {
		c.name = name
	}
}

// WithVersion sets the server version reported to MCP clients.
func WithVersion(version string) ServerOption {
	return func(c *serverConfig) {
		c.version = version
	}
}

// WithLogger sets the logger used by tool handlers.
func WithLogger(l *slog.Logger) ServerOption {
	return func(c *serverConfig) {
		c.logger = l
	}
}

// NewServer creates an MCP server whose tools operate on the manager's tasks.
//
// Example:
//
//	mcpServer := mcp.NewServer(mgr,
//	    mcp.WithName("dify-a2a-gateway"),
//	    mcp.WithVersion("1.0.0"),
//	)
//
//	server.ServeStdio(mcpServer)
func NewServer(m *manager.Manager, opts ...ServerOption) *server.MCPServer {
	cfg := &serverConfig{
		name:    "dify-a2a-gateway",
		version: "1.0.0",
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	s := server.NewMCPServer(
		cfg.name,
		cfg.version,
		server.WithToolCapabilities(true),
	)

	h := &handlers{manager: m, logger: cfg.logger}
	s.AddTool(sendMessageTool, h.sendMessage)
	s.AddTool(getTaskTool, h.getTask)
	s.AddTool(listTasksTool, h.listTasks)
	s.AddTool(cancelTaskTool, h.cancelTask)
	return s
}

// Handler returns an http.Handler serving the MCP streamable HTTP transport.
// Sessions are not tracked; every request is self-contained.
func Handler(m *manager.Manager, opts ...ServerOption) http.Handler {
	return server.NewStreamableHTTPServer(NewServer(m, opts...), server.WithStateLess(true))
}

// ServeStdio starts an MCP server that communicates over stdin/stdout.
// This is the standard transport for MCP servers invoked as subprocesses.
func ServeStdio(m *manager.Manager, opts ...ServerOption) error {
	return server.ServeStdio(NewServer(m, opts...))
}

type handlers struct {
	manager *manager.Manager
	logger  *slog.Logger
}

func (h *handlers) sendMessage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	task, err := h.manager.CreateTask(ctx, req.GetString("context_id", ""), userMessage(text))
	if err != nil {
		return toolError(err), nil
	}
	final, err := h.manager.RunTask(ctx, task.ID, manager.WithCorrelationID(task.ContextID))
	if err != nil {
		return toolError(err), nil
	}
	h.logger.Debug("mcp send_message", "task_id", final.ID, "status", final.Status)
	return jsonResult(final)
}

func (h *handlers) getTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("task_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	task, err := h.manager.GetTask(ctx, id)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(task)
}

func (h *handlers) listTasks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter, limit, offset, err := listArgs(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	tasks, total := h.manager.ListTasks(ctx, filter, limit, offset)
	return jsonResult(listResult(tasks, total))
}

func (h *handlers) cancelTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("task_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	task, err := h.manager.CancelTask(ctx, id)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(task)
}
