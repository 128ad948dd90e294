package mocks

import (
	"context"

	"github.com/dukex/docflow/pkg/models"
	"github.com/dukex/docflow/pkg/protocol"
	"github.com/stretchr/testify/mock"
)

var (
	_ protocol.OCR               = (*MockOCR)(nil)
	_ protocol.Thumbnailer       = (*MockThumbnailer)(nil)
	_ protocol.Matcher           = (*MockMatcher)(nil)
	_ protocol.AI                = (*MockAI)(nil)
	_ protocol.WebhookDispatcher = (*MockWebhookDispatcher)(nil)
)

// MockOCR is a mock implementation of protocol.OCR.
type MockOCR struct {
	mock.Mock
}

func (m *MockOCR) ExtractText(ctx context.Context, filePath string) (string, error) {
	args := m.Called(ctx, filePath)

	return args.String(0), args.Error(1)
}

// MockThumbnailer is a mock implementation of protocol.Thumbnailer.
type MockThumbnailer struct {
	mock.Mock
}

func (m *MockThumbnailer) Generate(ctx context.Context, sourcePath, documentID string) (string, error) {
	args := m.Called(ctx, sourcePath, documentID)

	return args.String(0), args.Error(1)
}

// MockMatcher is a mock implementation of protocol.Matcher.
type MockMatcher struct {
	mock.Mock
}

func (m *MockMatcher) FindMatches(ctx context.Context, text string) (models.MatchingResult, error) {
	args := m.Called(ctx, text)

	return args.Get(0).(models.MatchingResult), args.Error(1)
}

// MockAI is a mock implementation of protocol.AI.
type MockAI struct {
	mock.Mock
}

func (m *MockAI) IsConfigured() bool {
	return m.Called().Bool(0)
}

func (m *MockAI) SendMessage(ctx context.Context, prompt, systemPrompt string) (*protocol.AIResponse, error) {
	args := m.Called(ctx, prompt, systemPrompt)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*protocol.AIResponse), args.Error(1)
}

func (m *MockAI) ExtractText(response *protocol.AIResponse) string {
	if response == nil {
		return ""
	}

	return response.Content
}

// MockWebhookDispatcher is a mock implementation of protocol.WebhookDispatcher.
type MockWebhookDispatcher struct {
	mock.Mock
}

func (m *MockWebhookDispatcher) Trigger(ctx context.Context, event string, data map[string]any) {
	m.Called(ctx, event, data)
}
