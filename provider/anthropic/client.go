package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	gateway "github.com/neocode24/dify-a2a-gateway"
	"github.com/neocode24/dify-a2a-gateway/internal/conversation"
)

// DefaultMaxTokens bounds the length of an answer.
const DefaultMaxTokens = 4096

// Client streams answers from the Anthropic Messages API.
type Client struct {
	client    *anthropic.Client
	model     ChatModel
	maxTokens int64
	system    string
	history   *conversation.Store
}

type config struct {
	model      ChatModel
	maxTokens  int64
	baseURL    string
	httpClient *http.Client
	maxRetries int
	system     string
	history    *conversation.Store
}

// ClientOption configures the Anthropic client.
type ClientOption func(*config)

// WithModel sets the model for requests.
func WithModel(model ChatModel) ClientOption {
	return func(c *config) {
		c.model = model
	}
}

// WithMaxTokens sets the answer length limit.
func WithMaxTokens(n int) ClientOption {
	return func(c *config) {
		c.maxTokens = int64(n)
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

// WithMaxRetries sets how many times the SDK retries a failed request.
func WithMaxRetries(n int) ClientOption {
	return func(c *config) {
		c.maxRetries = n
	}
}

// WithSystemPrompt sets the system prompt.
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

// New creates a new Anthropic client with the given API key.
func New(apiKey string, opts ...ClientOption) *Client {
	cfg := config{model: DefaultChatModel, maxTokens: DefaultMaxTokens, maxRetries: 2}
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

	client := anthropic.NewClient(reqOpts...)
	return &Client{
		client:    &client,
		model:     cfg.model,
		maxTokens: cfg.maxTokens,
		system:    cfg.system,
		history:   cfg.history,
	}
}

// Stream sends the query with the conversation's prior turns. The first
// event is read before returning so status errors surface here.
func (c *Client) Stream(ctx context.Context, req gateway.ChatRequest) (*gateway.Stream, error) {
	ex := c.history.Begin(req.ConversationID, req.Query)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model.String()),
		MaxTokens: c.maxTokens,
		Messages:  messages(ex),
	}
	if c.system != "" {
		params.System = []anthropic.TextBlockParam{{Text: c.system}}
	}
	if req.User != "" {
		params.Metadata = anthropic.MetadataParam{UserID: anthropic.String(req.User)}
	}

	stream := c.client.Messages.NewStreaming(ctx, params)
	primed := stream.Next()
	if !primed && stream.Err() != nil {
		err := wrapError(stream.Err())
		_ = stream.Close()
		return nil, err
	}

	seq := func(yield func(gateway.UpstreamEvent, error) bool) {
		for ok := primed; ok; ok = stream.Next() {
			event := stream.Current()
			if event.Type != "content_block_delta" {
				continue
			}
			delta := event.AsContentBlockDelta()
			textDelta := delta.Delta.AsTextDelta()
			if textDelta.Type != "text_delta" || textDelta.Text == "" {
				continue
			}
			if !yield(ex.Chunk(textDelta.Text), nil) {
				return
			}
		}
		if err := stream.Err(); err != nil {
			yield(gateway.UpstreamEvent{}, fmt.Errorf("anthropic stream failed: %w", wrapError(err)))
			return
		}
		yield(ex.End(), nil)
	}
	return gateway.NewStream(seq, stream), nil
}

func messages(ex *conversation.Exchange) []anthropic.MessageParam {
	var msgs []anthropic.MessageParam
	for _, turn := range ex.Prior() {
		switch turn.Role {
		case conversation.RoleAssistant:
			msgs = append(msgs, anthropic.NewAssistantMessage(anthropic.NewTextBlock(turn.Content)))
		default:
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(turn.Content)))
		}
	}
	return append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(ex.Query())))
}

// wrapError wraps an Anthropic SDK error with gateway error categorization.
func wrapError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return err
	}

	var header http.Header
	if apiErr.Response != nil {
		header = apiErr.Response.Header
	}
	return gateway.NewStatusError("anthropic request failed", apiErr.StatusCode, header, err)
}

var _ gateway.ChatClient = (*Client)(nil)
