package openai

import (
	"context"
	"fmt"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	gateway "github.com/neocode24/dify-a2a-gateway"
	"github.com/neocode24/dify-a2a-gateway/internal/conversation"
)

// Client streams chat completions from an OpenAI-compatible API.
type Client struct {
	client  *openai.Client
	model   ChatModel
	system  string
	history *conversation.Store
}

type config struct {
	model      ChatModel
	baseURL    string
	httpClient *http.Client
	maxRetries int
	system     string
	history    *conversation.Store
}

// ClientOption configures the OpenAI client.
type ClientOption func(*config)

// WithModel sets the model for requests.
func WithModel(model ChatModel) ClientOption {
	return func(c *config) {
		c.model = model
	}
}

// WithBaseURL points the client at an OpenAI-compatible server such as vLLM
// or Ollama.
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

// WithMaxRetries sets how many times the SDK retries a failed request.
func WithMaxRetries(n int) ClientOption {
	return func(c *config) {
		c.maxRetries = n
	}
}

// WithSystemPrompt sets a system message sent before the conversation.
func WithSystemPrompt(prompt string) ClientOption {
	return func(c *config) {
		c.system = prompt
	}
}

// WithHistory shares a conversation store between clients.
func WithHistory(s *conversation.Store) ClientOption {
	return func(c *config) {
		c.history = s
	}
}

// New creates a new OpenAI client with the given API key.
func New(apiKey string, opts ...ClientOption) *Client {
	cfg := config{model: DefaultChatModel, maxRetries: 2}
	for _, opt := range opts {
		opt(&cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(cfg.maxRetries),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.httpClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(cfg.httpClient))
	}
	if cfg.history == nil {
		cfg.history = conversation.NewStore()
	}

	client := openai.NewClient(reqOpts...)
	return &Client{
		client:  &client,
		model:   cfg.model,
		system:  cfg.system,
		history: cfg.history,
	}
}

// Stream sends the query with the conversation's prior turns. The first chunk
// is read before returning so status errors surface here.
func (c *Client) Stream(ctx context.Context, req gateway.ChatRequest) (*gateway.Stream, error) {
	ex := c.history.Begin(req.ConversationID, req.Query)

	params := openai.ChatCompletionNewParams{
		Model:    c.model.String(),
		Messages: c.messages(ex),
	}
	if req.User != "" {
		params.User = openai.String(req.User)
	}

	stream := c.client.Chat.Completions.NewStreaming(ctx, params)
	primed := stream.Next()
	if !primed && stream.Err() != nil {
		err := wrapError(stream.Err())
		_ = stream.Close()
		return nil, err
	}

	seq := func(yield func(gateway.UpstreamEvent, error) bool) {
		for ok := primed; ok; ok = stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				continue
			}
			if !yield(ex.Chunk(chunk.Choices[0].Delta.Content), nil) {
				return
			}
		}
		if err := stream.Err(); err != nil {
			yield(gateway.UpstreamEvent{}, fmt.Errorf("openai stream failed: %w", wrapError(err)))
			return
		}
		yield(ex.End(), nil)
	}
	return gateway.NewStream(seq, stream), nil
}

func (c *Client) messages(ex *conversation.Exchange) []openai.ChatCompletionMessageParamUnion {
	var msgs []openai.ChatCompletionMessageParamUnion
	if c.system != "" {
		msgs = append(msgs, openai.SystemMessage(c.system))
	}
	for _, turn := range ex.Prior() {
		switch turn.Role {
		case conversation.RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(turn.Content))
		default:
			msgs = append(msgs, openai.UserMessage(turn.Content))
		}
	}
	return append(msgs, openai.UserMessage(ex.Query()))
}

var _ gateway.ChatClient = (*Client)(nil)
