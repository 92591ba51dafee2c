package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/neocode24/dify-a2a-gateway/a2a"
)

// ToolError is returned by Remote when the tool reported a failure.
type ToolError struct {
	Tool    string
	Message string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("mcp tool %s: %s", e.Tool, e.Message)
}

// Remote calls the task tools of a gateway's MCP endpoint.
type Remote struct {
	client *client.Client
}

// NewRemote connects to an MCP endpoint over streamable HTTP.
//
// Example:
//
//	remote, err := mcp.NewRemote(ctx, "http://localhost:8080/mcp")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer remote.Close()
func NewRemote(ctx context.Context, url string) (*Remote, error) {
	c, err := client.NewStreamableHttpClient(url)
	if err != nil {
		return nil, fmt.Errorf("failed to create MCP client: %w", err)
	}
	return NewRemoteFromClient(ctx, c)
}

// NewRemoteFromClient starts and initializes an existing MCP client.
func NewRemoteFromClient(ctx context.Context, c *client.Client) (*Remote, error) {
	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start MCP client: %w", err)
	}

	_, err := c.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			Capabilities:    mcp.ClientCapabilities{},
			ClientInfo: mcp.Implementation{
				Name:    "dify-a2a-gateway-client",
				Version: "1.0.0",
			},
		},
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize MCP session: %w", err)
	}
	return &Remote{client: c}, nil
}

// Close closes the connection to the MCP server.
func (r *Remote) Close() error {
	return r.client.Close()
}

// Tools returns the names of the tools the server offers.
func (r *Remote) Tools(ctx context.Context) ([]string, error) {
	result, err := r.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, err
	}
	names := make([]string, len(result.Tools))
	for i, t := range result.Tools {
		names[i] = t.Name
	}
	return names, nil
}

// SendMessage sends text and returns the finished task.
func (r *Remote) SendMessage(ctx context.Context, contextID, text string) (*a2a.Task, error) {
	args := map[string]any{"text": text}
	if contextID != "" {
		args["context_id"] = contextID
	}
	var task a2a.Task
	if err := r.call(ctx, ToolSendMessage, args, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// GetTask fetches a task by id.
func (r *Remote) GetTask(ctx context.Context, taskID string) (*a2a.Task, error) {
	var task a2a.Task
	if err := r.call(ctx, ToolGetTask, map[string]any{"task_id": taskID}, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// ListTasks returns one page of tasks.
func (r *Remote) ListTasks(ctx context.Context, params a2a.ListParams) (*a2a.ListResult, error) {
	args := map[string]any{}
	if params.ContextID != "" {
		args["context_id"] = params.ContextID
	}
	if params.Status != "" {
		args["status"] = string(params.Status)
	}
	if params.Limit != nil {
		args["limit"] = *params.Limit
	}
	if params.Offset != nil {
		args["offset"] = *params.Offset
	}
	var result a2a.ListResult
	if err := r.call(ctx, ToolListTasks, args, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CancelTask cancels a task and returns it.
func (r *Remote) CancelTask(ctx context.Context, taskID string) (*a2a.Task, error) {
	var task a2a.Task
	if err := r.call(ctx, ToolCancelTask, map[string]any{"task_id": taskID}, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *Remote) call(ctx context.Context, name string, args map[string]any, out any) error {
	result, err := r.client.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	})
	if err != nil {
		return err
	}
	text := ResultText(result)
	if result.IsError {
		return &ToolError{Tool: name, Message: text}
	}
	if text == "" {
		return errors.New("empty tool result")
	}
	return json.Unmarshal([]byte(text), out)
}
