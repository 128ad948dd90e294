package protocol

import (
	"context"

	"github.com/dukex/docflow/pkg/models"
)

// OCR extracts text from a document file. An empty string means nothing was recognized.
type OCR interface {
	ExtractText(ctx context.Context, filePath string) (string, error)
}

// AIResponse is the raw reply of a language model.
type AIResponse struct {
	Model   string `json:"model"`
	Content string `json:"content"`
	Raw     any    `json:"-"`
}

// AI is a language model client.
type AI interface {
	IsConfigured() bool
	SendMessage(ctx context.Context, prompt, systemPrompt string) (*AIResponse, error)
	ExtractText(response *AIResponse) string
}

// Matcher suggests classifications for a document's text.
type Matcher interface {
	FindMatches(ctx context.Context, text string) (models.MatchingResult, error)
}

// Thumbnailer renders a preview image and returns its filename.
type Thumbnailer interface {
	Generate(ctx context.Context, sourcePath, documentID string) (string, error)
}

// FileFetcher makes a remote document available on the local filesystem.
// The returned cleanup removes any temporary copy.
type FileFetcher interface {
	Fetch(ctx context.Context, key string) (path string, cleanup func(), err error)
}

// WebhookDispatcher notifies subscribers of lifecycle events. Trigger is fire-and-forget.
type WebhookDispatcher interface {
	Trigger(ctx context.Context, event string, data map[string]any)
}
