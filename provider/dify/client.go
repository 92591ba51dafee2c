package dify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/openai/openai-go/packages/ssestream"

	gateway "github.com/neocode24/dify-a2a-gateway"
	"github.com/neocode24/dify-a2a-gateway/internal/retry"
)

const (
	// DefaultBaseURL is the Dify API address inside a docker-compose deployment.
	DefaultBaseURL = "http://api:5001"

	// DefaultTimeout bounds a single streaming connection.
	DefaultTimeout = 300 * time.Second

	// ResponseModeStreaming is the only response mode the gateway uses.
	ResponseModeStreaming = "streaming"
)

// Client streams chat messages from a Dify app.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	retry      retry.Config
	logger     *slog.Logger
}

// ClientOption configures the Dify client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client. Its Timeout is used as is.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithTimeout sets the per-connection timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		hc := *c.httpClient
		hc.Timeout = d
		c.httpClient = &hc
	}
}

// WithRetry sets the retry policy for opening a stream.
func WithRetry(cfg retry.Config) ClientOption {
	return func(c *Client) {
		c.retry = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a Dify client. An empty baseURL selects DefaultBaseURL.
func New(baseURL, apiKey string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		retry:      retry.DefaultConfig(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// chatRequest is the body of POST /v1/chat-messages.
type chatRequest struct {
	Inputs         map[string]any `json:"inputs"`
	Query          string         `json:"query"`
	ResponseMode   string         `json:"response_mode"`
	ConversationID string         `json:"conversation_id,omitempty"`
	User           string         `json:"user"`
	Files          []gateway.File `json:"files,omitempty"`
}

// Stream opens a streaming chat request. Transient connection and status
// failures are retried; the returned Stream owns the response body.
func (c *Client) Stream(ctx context.Context, req gateway.ChatRequest) (*gateway.Stream, error) {
	inputs := req.Inputs
	if inputs == nil {
		inputs = map[string]any{}
	}
	body, err := json.Marshal(chatRequest{
		Inputs:         inputs,
		Query:          req.Query,
		ResponseMode:   ResponseModeStreaming,
		ConversationID: req.ConversationID,
		User:           req.User,
		Files:          req.Files,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	logger := c.logger.With("user", req.User, "conversation_id", req.ConversationID)
	resp, err := retry.DoWithObserver(ctx, c.retry, retry.LogObserver(logger, "dify connect"), func() (*http.Response, error) {
		return c.open(ctx, body)
	})
	if err != nil {
		return nil, err
	}

	dec := ssestream.NewDecoder(resp)
	return gateway.NewStream(c.events(dec, logger), dec), nil
}

func (c *Client) open(ctx context.Context, body []byte) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat-messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("dify request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(resp)
	}
	return resp, nil
}

// events decodes SSE frames into upstream events. Keep-alives are skipped and
// malformed frames are logged and skipped.
func (c *Client) events(dec ssestream.Decoder, logger *slog.Logger) iter.Seq2[gateway.UpstreamEvent, error] {
	return func(yield func(gateway.UpstreamEvent, error) bool) {
		for dec.Next() {
			frame := dec.Event()
			if frame.Type == EventPing {
				continue
			}
			data := bytes.TrimSpace(frame.Data)
			if len(data) == 0 {
				continue
			}

			ev, skip, err := decodeEvent(data)
			if err != nil {
				logger.Warn("skipping malformed dify event", "error", err, "bytes", len(data))
				continue
			}
			if skip {
				continue
			}
			if !yield(ev, nil) {
				return
			}
		}
		if err := dec.Err(); err != nil {
			yield(gateway.UpstreamEvent{}, fmt.Errorf("dify stream failed: %w", err))
		}
	}
}

// Stop asks Dify to stop an in-flight generation. upstreamTaskID is the
// task_id reported on stream events.
func (c *Client) Stop(ctx context.Context, upstreamTaskID, user string) error {
	if upstreamTaskID == "" {
		return fmt.Errorf("dify stop: task id is required")
	}
	body, err := json.Marshal(map[string]string{"user": user})
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/v1/chat-messages/%s/stop", c.baseURL, url.PathEscape(upstreamTaskID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("dify stop failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}
	resp.Body.Close()
	return nil
}

var (
	_ gateway.ChatClient = (*Client)(nil)
	_ gateway.Stopper    = (*Client)(nil)
)
