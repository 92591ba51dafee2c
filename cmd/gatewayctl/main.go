// Command gatewayctl talks to a running gateway.
//
// Usage:
//
//	gatewayctl send "What is A2A?"
//	gatewayctl send --context ctx-123 "And then?"
//	gatewayctl get task-123
//	gatewayctl list --status completed --limit 5
//	gatewayctl cancel task-123
//	gatewayctl --transport mcp --endpoint http://localhost:8080/mcp list
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/neocode24/dify-a2a-gateway/a2a"
	"github.com/neocode24/dify-a2a-gateway/mcp"
)

const (
	transportA2A = "a2a"
	transportMCP = "mcp"
)

type options struct {
	endpoint  string
	transport string
	timeout   time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "gatewayctl",
		Short:         "Command line client for the A2A gateway",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&opts.endpoint, "endpoint", "", "Gateway endpoint (default: http://localhost:8080/a2a, or /mcp with --transport mcp)")
	root.PersistentFlags().StringVar(&opts.transport, "transport", transportA2A, "Transport: a2a or mcp")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 5*time.Minute, "Request timeout")

	root.AddCommand(
		newSendCmd(opts),
		newGetCmd(opts),
		newListCmd(opts),
		newCancelCmd(opts),
	)
	return root
}

func newSendCmd(opts *options) *cobra.Command {
	var (
		contextID string
		noStream  bool
	)
	cmd := &cobra.Command{
		Use:   "send <text>",
		Short: "Send a message and print the answer",
		Long: `Send a message to the agent.

With the a2a transport the answer is streamed as it is generated. Pass
--no-stream to wait for the finished task instead.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			c, err := connect(ctx, opts)
			if err != nil {
				return err
			}
			defer c.Close()

			text := strings.Join(args, " ")
			task, err := c.Send(ctx, contextID, text, !noStream, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if noStream || task == nil {
				return printJSON(cmd.OutOrStdout(), task)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\n[%s %s context=%s]\n", task.ID, task.Status, task.ContextID)
			return nil
		},
	}
	cmd.Flags().StringVar(&contextID, "context", "", "Context id to continue")
	cmd.Flags().BoolVar(&noStream, "no-stream", false, "Wait for the finished task instead of streaming")
	return cmd
}

func newGetCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "get <task-id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			c, err := connect(ctx, opts)
			if err != nil {
				return err
			}
			defer c.Close()

			task, err := c.GetTask(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), task)
		},
	}
}

func newListCmd(opts *options) *cobra.Command {
	var (
		contextID string
		status    string
		limit     int
		offset    int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			c, err := connect(ctx, opts)
			if err != nil {
				return err
			}
			defer c.Close()

			params := a2a.ListParams{
				ContextID: contextID,
				Status:    a2a.TaskStatus(status),
				Limit:     &limit,
				Offset:    &offset,
			}
			result, err := c.ListTasks(ctx, params)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, t := range result.Tasks {
				fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", t.ID, t.Status, t.ContextID, t.CreatedAt.Format(time.RFC3339))
			}
			fmt.Fprintf(out, "%d of %d tasks\n", len(result.Tasks), result.Total)
			return nil
		},
	}
	cmd.Flags().StringVar(&contextID, "context", "", "Only tasks in this context")
	cmd.Flags().StringVar(&status, "status", "", "Only tasks with this status")
	cmd.Flags().IntVar(&limit, "limit", a2a.DefaultListLimit, "Page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of tasks to skip")
	return cmd
}

func newCancelCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <task-id>",
		Short: "Cancel a pending or running task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			c, err := connect(ctx, opts)
			if err != nil {
				return err
			}
			defer c.Close()

			task, err := c.CancelTask(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), task)
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// taskClient is the part of the gateway API the commands use.
type taskClient interface {
	Send(ctx context.Context, contextID, text string, stream bool, w io.Writer) (*a2a.Task, error)
	GetTask(ctx context.Context, taskID string) (*a2a.Task, error)
	ListTasks(ctx context.Context, params a2a.ListParams) (*a2a.ListResult, error)
	CancelTask(ctx context.Context, taskID string) (*a2a.Task, error)
	Close() error
}

func connect(ctx context.Context, opts *options) (taskClient, error) {
	switch opts.transport {
	case transportA2A:
		endpoint := opts.endpoint
		if endpoint == "" {
			endpoint = "http://localhost:8080/a2a"
		}
		return &a2aClient{Client: a2a.NewClient(endpoint)}, nil
	case transportMCP:
		endpoint := opts.endpoint
		if endpoint == "" {
			endpoint = "http://localhost:8080/mcp"
		}
		remote, err := mcp.NewRemote(ctx, endpoint)
		if err != nil {
			return nil, err
		}
		return &mcpClient{Remote: remote}, nil
	default:
		return nil, fmt.Errorf("unknown transport: %s (must be a2a or mcp)", opts.transport)
	}
}

type a2aClient struct {
	*a2a.Client
}

// Send streams answer chunks to w and returns the task as last reported.
func (c *a2aClient) Send(ctx context.Context, contextID, text string, stream bool, w io.Writer) (*a2a.Task, error) {
	if !stream {
		return c.SendText(ctx, contextID, text)
	}

	var taskID string
	for out, err := range c.SendStream(ctx, a2a.SendParams{
		Messages:  []a2a.Message{a2a.NewMessage(a2a.RoleUser, a2a.NewTextPart(text))},
		ContextID: contextID,
	}) {
		if err != nil {
			return nil, err
		}
		if out.Err != nil {
			fmt.Fprintf(w, "\nerror %d: %s", out.Err.Code, out.Err.Message)
			continue
		}
		switch ev := out.Event.(type) {
		case a2a.TaskArtifactUpdateEvent:
			if ev.Append {
				fmt.Fprint(w, ev.Artifact.Text())
			}
		case a2a.TaskStatusUpdateEvent:
			taskID = ev.TaskID
		}
	}
	if taskID == "" {
		return nil, fmt.Errorf("stream ended without a task")
	}
	return c.GetTask(ctx, taskID)
}

func (c *a2aClient) Close() error { return nil }

type mcpClient struct {
	*mcp.Remote
}

// Send waits for the finished task; MCP tools do not stream.
func (c *mcpClient) Send(ctx context.Context, contextID, text string, _ bool, w io.Writer) (*a2a.Task, error) {
	task, err := c.SendMessage(ctx, contextID, text)
	if err != nil {
		return nil, err
	}
	if len(task.Artifacts) > 0 {
		fmt.Fprint(w, task.Artifacts[len(task.Artifacts)-1].Text())
	}
	return task, nil
}
