// Package mcp exposes the gateway's tasks over MCP (Model Context Protocol).
//
// MCP lets AI assistants call external tools. The gateway registers four
// tools backed by the task manager:
//
//   - send_message: create a task from a text message and run it to completion
//   - get_task: fetch a task by id
//   - list_tasks: page through tasks, optionally filtered by context or status
//   - cancel_task: cancel a pending or running task
//
// Every tool returns the JSON encoding of the task (or task page) as text.
// [Remote] is the matching client, used to call a gateway's MCP endpoint.
package mcp

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/neocode24/dify-a2a-gateway/a2a"
	"github.com/neocode24/dify-a2a-gateway/store"
)

// Tool names.
const (
	ToolSendMessage = "send_message"
	ToolGetTask     = "get_task"
	ToolListTasks   = "list_tasks"
	ToolCancelTask  = "cancel_task"
)

var (
	sendMessageTool = mcp.NewTool(ToolSendMessage,
		mcp.WithDescription("Send a message to the agent and wait for the finished task"),
		mcp.WithString("text", mcp.Required(), mcp.Description("Message text")),
		mcp.WithString("context_id", mcp.Description("Context to continue; a new one is created when empty")),
	)

	getTaskTool = mcp.NewTool(ToolGetTask,
		mcp.WithDescription("Get a task by id"),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("Task id")),
	)

	listTasksTool = mcp.NewTool(ToolListTasks,
		mcp.WithDescription("List tasks, newest first"),
		mcp.WithString("context_id", mcp.Description("Only tasks in this context")),
		mcp.WithString("status", mcp.Description("Only tasks with this status")),
		mcp.WithNumber("limit", mcp.Description("Page size, default 10")),
		mcp.WithNumber("offset", mcp.Description("Number of tasks to skip")),
	)

	cancelTaskTool = mcp.NewTool(ToolCancelTask,
		mcp.WithDescription("Cancel a pending or running task"),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("Task id")),
	)
)

func userMessage(text string) a2a.Message {
	return a2a.NewMessage(a2a.RoleUser, a2a.NewTextPart(text))
}

func listArgs(req mcp.CallToolRequest) (store.Filter, int, int, error) {
	filter := store.Filter{
		ContextID: req.GetString("context_id", ""),
		Status:    a2a.TaskStatus(req.GetString("status", "")),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return filter, 0, 0, fmt.Errorf("invalid status: %s", filter.Status)
	}
	limit := max(req.GetInt("limit", a2a.DefaultListLimit), 0)
	offset := max(req.GetInt("offset", 0), 0)
	return filter, limit, offset, nil
}

func listResult(tasks []*a2a.Task, total int) a2a.ListResult {
	if tasks == nil {
		tasks = []*a2a.Task{}
	}
	return a2a.ListResult{Tasks: tasks, Total: total}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func toolError(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(err.Error())
}

// ResultText extracts the text content of a tool result.
func ResultText(result *mcp.CallToolResult) string {
	if result == nil {
		return ""
	}
	var textParts []string
	for _, c := range result.Content {
		switch content := c.(type) {
		case mcp.TextContent:
			textParts = append(textParts, content.Text)
		case *mcp.TextContent:
			textParts = append(textParts, content.Text)
		}
	}
	return strings.Join(textParts, "\n")
}
