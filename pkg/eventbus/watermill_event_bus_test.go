package eventbus

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/docflow/pkg/channels/gochannel"
	"github.com/dukex/docflow/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBus(t *testing.T) *WatermillEventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := NewWatermillEventBus(pub, sub, slog.Default())
	t.Cleanup(func() { _ = bus.Close() })

	return bus
}

func TestWatermillEventBus_PublishAndHandle(t *testing.T) {
	bus := newBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan *events.WorkflowWaiting, 1)

	require.NoError(t, bus.Handle(events.WorkflowWaitingEvent, func(_ context.Context, event any) error {
		received <- event.(*events.WorkflowWaiting)

		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx))

	require.NoError(t, bus.Publish(ctx, "exec-1", &events.WorkflowCompleted{
		BaseEvent: events.NewBaseEvent(events.WorkflowCompletedEvent, "wf-1", "exec-1"),
	}))
	require.NoError(t, bus.Publish(ctx, "exec-1", &events.WorkflowWaiting{
		BaseEvent: events.NewBaseEvent(events.WorkflowWaitingEvent, "wf-1", "exec-1"),
		NodeID:    "wait",
		WaitingOn: "timer",
	}))

	select {
	case event := <-received:
		assert.Equal(t, "wait", event.NodeID)
		assert.Equal(t, "exec-1", event.ExecutionID)
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestWatermillEventBus_HandlerErrorRedelivers(t *testing.T) {
	bus := newBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32

	attempts := make(chan struct{}, 10)

	require.NoError(t, bus.Handle(events.WebhookRequestedEvent, func(context.Context, any) error {
		attempts <- struct{}{}
		if calls.Add(1) == 1 {
			return errors.New("transient")
		}

		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx))

	require.NoError(t, bus.Publish(ctx, "doc-1", &events.WebhookRequested{
		BaseEvent: events.NewBaseEvent(events.WebhookRequestedEvent, "", ""),
		Event:     "document.processed",
	}))

	for range 2 {
		select {
		case <-attempts:
		case <-time.After(2 * time.Second):
			t.Fatal("event was not redelivered after nack")
		}
	}
}
