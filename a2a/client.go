package a2a

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/openai/openai-go/packages/ssestream"
)

// Client is a JSON-RPC client for an A2A gateway.
type Client struct {
	endpoint   string
	httpClient *http.Client
	nextID     atomic.Int64
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.httpClient = c
	}
}

// NewClient creates a new A2A client for the given endpoint.
func NewClient(endpoint string, opts ...ClientOption) *Client {
	c := &Client{
		endpoint:   endpoint,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the JSON-RPC endpoint URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Send sends messages without streaming and returns the terminal task.
func (c *Client) Send(ctx context.Context, params SendParams) (*Task, error) {
	stream := false
	params.Configuration = &SendConfiguration{Stream: &stream}

	var task Task
	if err := c.call(ctx, MethodMessageSend, params, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// SendText is a convenience method that sends a single text message.
func (c *Client) SendText(ctx context.Context, contextID, text string) (*Task, error) {
	return c.Send(ctx, SendParams{
		Messages:  []Message{NewMessage(RoleUser, NewTextPart(text))},
		ContextID: contextID,
	})
}

// SendStream sends messages and yields outbound events as the gateway emits
// them. JSON-RPC error envelopes are yielded as Outbound values with Err set;
// transport failures end the sequence with a non-nil error.
func (c *Client) SendStream(ctx context.Context, params SendParams) iter.Seq2[Outbound, error] {
	return func(yield func(Outbound, error) bool) {
		stream := true
		params.Configuration = &SendConfiguration{Stream: &stream}

		resp, err := c.post(ctx, MethodMessageSend, params)
		if err != nil {
			yield(Outbound{}, err)
			return
		}
		defer resp.Body.Close()

		// A request rejected before the run starts comes back as plain JSON.
		if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
			var rpcResp RawResponse
			if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
				yield(Outbound{}, fmt.Errorf("failed to parse response: %w", err))
				return
			}
			if rpcResp.Error != nil {
				yield(Outbound{Err: rpcResp.Error}, nil)
				return
			}
			yield(Outbound{}, fmt.Errorf("unexpected non-stream response"))
			return
		}

		dec := ssestream.NewDecoder(resp)
		defer dec.Close()

		for dec.Next() {
			data := bytes.TrimSpace(dec.Event().Data)
			if len(data) == 0 {
				continue
			}

			var rpcResp RawResponse
			if err := json.Unmarshal(data, &rpcResp); err != nil {
				yield(Outbound{}, fmt.Errorf("failed to parse stream frame: %w", err))
				return
			}
			if rpcResp.Error != nil {
				if !yield(Outbound{Err: rpcResp.Error}, nil) {
					return
				}
				continue
			}

			ev, err := UnmarshalEvent(rpcResp.Result)
			if err != nil {
				yield(Outbound{}, err)
				return
			}
			if !yield(Outbound{Event: ev}, nil) {
				return
			}
		}
		if err := dec.Err(); err != nil {
			yield(Outbound{}, fmt.Errorf("stream failed: %w", err))
		}
	}
}

// GetTask fetches a task by id.
func (c *Client) GetTask(ctx context.Context, taskID string) (*Task, error) {
	var task Task
	if err := c.call(ctx, MethodTasksGet, TaskIDParams{TaskID: taskID}, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// ListTasks lists tasks matching params.
func (c *Client) ListTasks(ctx context.Context, params ListParams) (*ListResult, error) {
	var result ListResult
	if err := c.call(ctx, MethodTasksList, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CancelTask cancels a task and returns its final state.
func (c *Client) CancelTask(ctx context.Context, taskID string) (*Task, error) {
	var task Task
	if err := c.call(ctx, MethodTasksCancel, TaskIDParams{TaskID: taskID}, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// call performs a synchronous JSON-RPC call. RPC errors are returned as *Error.
func (c *Client) call(ctx context.Context, method string, params, result any) error {
	resp, err := c.post(ctx, method, params)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var rpcResp RawResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}

	if err := json.Unmarshal(rpcResp.Result, result); err != nil {
		return fmt.Errorf("failed to parse result: %w", err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, method string, params any) (*http.Response, error) {
	rawParams, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}
	id := strconv.FormatInt(c.nextID.Add(1), 10)
	body, err := json.Marshal(Request{
		JSONRPC: JSONRPCVersion,
		ID:      json.RawMessage(id),
		Method:  method,
		Params:  rawParams,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json, text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return resp, nil
}
