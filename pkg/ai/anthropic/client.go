// Package anthropic implements the language model client on the Anthropic
// Messages API.
package anthropic

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/dukex/docflow/pkg/ai"
	"github.com/dukex/docflow/pkg/protocol"
)

const (
	DefaultModel     = "claude-sonnet-4-20250514"
	DefaultMaxTokens = 2048
)

// Client wraps the Anthropic SDK to implement protocol.AI.
type Client struct {
	client    *anthropic.Client
	apiKey    string
	model     string
	maxTokens int64
	logger    *slog.Logger
	extra     []option.RequestOption
}

// ClientOption configures the Anthropic client.
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

// WithLogger sets the logger.
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

	c.logger = c.logger.With("module", "ai", "provider", "anthropic")

	client := anthropic.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, c.extra...)...)
	c.client = &client

	return c
}

func (c *Client) IsConfigured() bool {
	return c.apiKey != ""
}

// SendMessage sends prompt as a single user turn, with systemPrompt when set.
func (c *Client) SendMessage(ctx context.Context, prompt, systemPrompt string) (*protocol.AIResponse, error) {
	if !c.IsConfigured() {
		return nil, ai.ErrNotConfigured
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		c.logger.ErrorContext(ctx, "Anthropic request failed", "model", c.model, "error", err)

		return nil, fmt.Errorf("anthropic messages: %w", err)
	}

	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	c.logger.DebugContext(ctx, "Anthropic reply",
		"model", resp.Model, "input_tokens", resp.Usage.InputTokens, "output_tokens", resp.Usage.OutputTokens)

	if content.Len() == 0 {
		return nil, ai.ErrEmptyResponse
	}

	return &protocol.AIResponse{
		Model:   string(resp.Model),
		Content: content.String(),
		Raw:     resp,
	}, nil
}

func (c *Client) ExtractText(response *protocol.AIResponse) string {
	return ai.Text(response)
}
