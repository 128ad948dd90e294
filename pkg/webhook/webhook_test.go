package webhook

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/dukex/docflow/pkg/events"
	"github.com/dukex/docflow/pkg/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestBusDispatcher_Trigger(t *testing.T) {
	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, EventWorkflowCompleted, mock.MatchedBy(func(e *events.WebhookRequested) bool {
		return e.Event == EventWorkflowCompleted && e.ExecutionID == "exec-1" && e.WorkflowID == "wf-1"
	})).Return(nil)

	NewBusDispatcher(bus, slog.Default()).Trigger(context.Background(), EventWorkflowCompleted, map[string]any{
		"execution_id": "exec-1",
		"workflow_id":  "wf-1",
	})

	bus.AssertExpectations(t)
}

func TestBusDispatcher_TriggerSwallowsErrors(t *testing.T) {
	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(assert.AnError)

	assert.NotPanics(t, func() {
		NewBusDispatcher(bus, slog.Default()).Trigger(context.Background(), EventDocumentProcessed, nil)
	})
}

func TestDeliverer_Handle(t *testing.T) {
	var (
		received  map[string]any
		signature string
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		signature = r.Header.Get(SignatureHeader)
		_ = json.Unmarshal(body, &received)

		assert.Equal(t, Sign("s3cret", body), signature)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	deliverer := NewDeliverer(DelivererConfig{Endpoints: []string{server.URL}, Secret: "s3cret"}, slog.Default())

	err := deliverer.Handle(context.Background(), &events.WebhookRequested{
		BaseEvent: events.NewBaseEvent(events.WebhookRequestedEvent, "", "exec-1"),
		Event:     EventWorkflowWaiting,
		Data:      map[string]any{"node_id": "approve"},
	})
	require.NoError(t, err)

	assert.Equal(t, EventWorkflowWaiting, received["event"])
	assert.NotEmpty(t, signature)
}

func TestDeliverer_Retries(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantCalls int32
	}{
		{"server errors are retried", http.StatusBadGateway, 3},
		{"client errors are not retried", http.StatusGone, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			deliverer := NewDeliverer(DelivererConfig{Endpoints: []string{server.URL}, Attempts: 3}, slog.Default())

			err := deliverer.deliver(context.Background(), server.URL, EventWorkflowFailed, []byte(`{}`))

			var httpErr *HTTPError
			require.ErrorAs(t, err, &httpErr)
			assert.Equal(t, tt.status, httpErr.StatusCode)
			assert.Equal(t, tt.wantCalls, calls.Load())
		})
	}
}

func TestDeliverer_RejectsUnknownEvents(t *testing.T) {
	deliverer := NewDeliverer(DelivererConfig{}, slog.Default())

	assert.Error(t, deliverer.Handle(context.Background(), &events.WorkflowStarted{}))
}
