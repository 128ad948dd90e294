// Package openai implements the language model client on the OpenAI chat
// completions API.
package openai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/docflow/pkg/ai"
	"github.com/dukex/docflow/pkg/protocol"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	DefaultModel     = "gpt-4o"
	DefaultMaxTokens = 2048
)

// Client wraps the OpenAI SDK to implement protocol.AI.
type Client struct {
	client    *openai.Client
	apiKey    string
	model     string
	maxTokens int64
	logger    *slog.Logger
	extra     []option.RequestOption
}

// ClientOption configures the OpenAI client.
type ClientOption func(*Client)

// WithModel sets the model used for every request.
func WithModel(model string) ClientOption {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithMaxTokens caps the length of a reply.
func WithMaxTokens(n int64) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRequestOptions passes extra SDK options, such as a base URL.
func WithRequestOptions(opts ...option.RequestOption) ClientOption {
	return func(c *Client) {
		c.extra = append(c.extra, opts...)
	}
}

// New creates a client for apiKey. An empty key yields an unconfigured client.
func New(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		apiKey:    apiKey,
		model:     DefaultModel,
		maxTokens: DefaultMaxTokens,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.logger = c.logger.With("module", "ai", "provider", "openai")

	client := openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, c.extra...)...)
	c.client = &client

	return c
}

func (c *Client) IsConfigured() bool {
	return c.apiKey != ""
}

// SendMessage sends prompt as a user message, preceded by systemPrompt when set.
func (c *Client) SendMessage(ctx context.Context, prompt, systemPrompt string) (*protocol.AIResponse, error) {
	if !c.IsConfigured() {
		return nil, ai.ErrNotConfigured
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, openai.SystemMessage(systemPrompt))
	}

	messages = append(messages, openai.UserMessage(prompt))

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:               c.model,
		Messages:            messages,
		MaxCompletionTokens: openai.Int(c.maxTokens),
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "OpenAI request failed", "model", c.model, "error", err)

		return nil, fmt.Errorf("openai chat completion: %w", err)
	}

	c.logger.DebugContext(ctx, "OpenAI reply",
		"model", resp.Model, "prompt_tokens", resp.Usage.PromptTokens, "completion_tokens", resp.Usage.CompletionTokens)

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, ai.ErrEmptyResponse
	}

	return &protocol.AIResponse{
		Model:   resp.Model,
		Content: resp.Choices[0].Message.Content,
		Raw:     resp,
	}, nil
}

func (c *Client) ExtractText(response *protocol.AIResponse) string {
	return ai.Text(response)
}
