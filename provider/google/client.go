package google

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"time"

	"google.golang.org/genai"

	gateway "github.com/neocode24/dify-a2a-gateway"
	"github.com/neocode24/dify-a2a-gateway/internal/conversation"
)

// Client streams answers from the Gemini API.
type Client struct {
	client  *genai.Client
	model   ChatModel
	system  string
	history *conversation.Store
}

type config struct {
	model      ChatModel
	baseURL    string
	httpClient *http.Client
	system     string
	history    *conversation.Store
	project    string
	location   string
}

// ClientOption configures the Google client.
type ClientOption func(*config)

// WithModel sets the model for requests.
func WithModel(model ChatModel) ClientOption {
	return func(c *config) {
		c.model = model
	}
}

// WithBaseURL overrides the API address.
func WithBaseURL(url string) ClientOption {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *config) {
		c.httpClient = hc
	}
}

// WithSystemPrompt sets the system instruction.
func WithSystemPrompt(prompt string) ClientOption {
	return func(c *config) {
		c.system = prompt
	}
}

// WithVertex routes requests through Vertex AI instead of the Gemini API.
// Authentication uses Application Default Credentials and the API key is
// ignored.
func WithVertex(project, location string) ClientOption {
	return func(c *config) {
		c.project = project
		c.location = location
	}
}

// WithHistory shares a conversation store between clients.
func WithHistory(s *conversation.Store) ClientOption {
	return func(c *config) {
		c.history = s
	}
}

// New creates a new Google GenAI client with the given API key.
func New(ctx context.Context, apiKey string, opts ...ClientOption) (*Client, error) {
	cfg := config{model: DefaultChatModel}
	for _, opt := range opts {
		opt(&cfg)
	}

	cc := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.httpClient,
	}
	if cfg.project != "" {
		cc.APIKey = ""
		cc.Backend = genai.BackendVertexAI
		cc.Project = cfg.project
		cc.Location = cfg.location
	}
	if cfg.baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}
	if cfg.history == nil {
		cfg.history = conversation.NewStore()
	}
	return &Client{
		client:  client,
		model:   cfg.model,
		system:  cfg.system,
		history: cfg.history,
	}, nil
}

// Stream sends the query with the conversation's prior turns. The first
// response is read before returning so status errors surface here.
func (c *Client) Stream(ctx context.Context, req gateway.ChatRequest) (*gateway.Stream, error) {
	ex := c.history.Begin(req.ConversationID, req.Query)

	gc := &genai.GenerateContentConfig{}
	if c.system != "" {
		gc.SystemInstruction = genai.NewContentFromText(c.system, genai.RoleUser)
	}

	next, stop := iter.Pull2(c.client.Models.GenerateContentStream(ctx, c.model.String(), contents(ex), gc))
	first, firstErr, more := next()
	if more && firstErr != nil {
		stop()
		return nil, wrapError(firstErr)
	}

	seq := func(yield func(gateway.UpstreamEvent, error) bool) {
		for resp, err, ok := first, firstErr, more; ok; resp, err, ok = next() {
			if err != nil {
				yield(gateway.UpstreamEvent{}, fmt.Errorf("google stream failed: %w", wrapError(err)))
				return
			}
			if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
				yield(gateway.UpstreamEvent{}, &BlockedError{Reason: string(resp.PromptFeedback.BlockReason)})
				return
			}
			if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
				continue
			}
			for _, part := range resp.Candidates[0].Content.Parts {
				if part.Text == "" || part.Thought {
					continue
				}
				if !yield(ex.Chunk(part.Text), nil) {
					return
				}
			}
		}
		yield(ex.End(), nil)
	}
	return gateway.NewStream(seq, gateway.CloserFunc(func() error {
		stop()
		return nil
	})), nil
}

func contents(ex *conversation.Exchange) []*genai.Content {
	var out []*genai.Content
	for _, turn := range ex.Prior() {
		role := genai.Role(genai.RoleUser)
		if turn.Role == conversation.RoleAssistant {
			role = genai.RoleModel
		}
		out = append(out, genai.NewContentFromText(turn.Content, role))
	}
	return append(out, genai.NewContentFromText(ex.Query(), genai.RoleUser))
}

// BlockedError indicates the request was blocked by content filtering.
type BlockedError struct {
	Reason string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("request blocked: %s", e.Reason)
}

func (e *BlockedError) Category() gateway.ErrorCategory { return gateway.ErrorUserInput }

func (e *BlockedError) Retryable() bool { return false }

func (e *BlockedError) StatusCode() int { return 0 }

func (e *BlockedError) RetryAfter() time.Duration { return 0 }

// wrapError wraps a Google GenAI error with gateway error categorization.
// genai.APIError does not expose headers, so Retry-After is not available.
func wrapError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	e := gateway.NewStatusError("google request failed", apiErr.Code, nil, err)
	e.UpstreamCode = apiErr.Status
	return e
}

var (
	_ gateway.ChatClient       = (*Client)(nil)
	_ gateway.CategorizedError = (*BlockedError)(nil)
)
