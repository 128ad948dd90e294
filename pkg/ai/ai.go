// Package ai holds what the language model clients share.
package ai

import (
	"context"
	"errors"
	"strings"

	"github.com/dukex/docflow/pkg/protocol"
)

// ErrNotConfigured is returned by SendMessage when the client has no API key.
var ErrNotConfigured = errors.New("ai client is not configured")

// ErrEmptyResponse is returned when the model answers without any text.
var ErrEmptyResponse = errors.New("ai response has no text content")

// Text returns the trimmed content of response, or "" for nil.
func Text(response *protocol.AIResponse) string {
	if response == nil {
		return ""
	}

	return strings.TrimSpace(response.Content)
}

// Noop is the client used when no provider is configured.
type Noop struct{}

func (Noop) IsConfigured() bool { return false }

func (Noop) SendMessage(context.Context, string, string) (*protocol.AIResponse, error) {
	return nil, ErrNotConfigured
}

func (Noop) ExtractText(response *protocol.AIResponse) string { return Text(response) }
