package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukex/docflow/pkg/eventbus"
	"github.com/dukex/docflow/pkg/events"
)

// SignatureHeader carries the hex HMAC-SHA256 of the body when a secret is set.
const SignatureHeader = "X-Docflow-Signature"

// HTTPError is a non-2xx answer from an endpoint.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Deliverer POSTs WebhookRequested events to every endpoint.
type Deliverer struct {
	endpoints []string
	secret    string
	client    *http.Client
	attempts  int
	delay     time.Duration
	logger    *slog.Logger
}

// DelivererConfig configures a Deliverer.
type DelivererConfig struct {
	Endpoints []string
	Secret    string
	Timeout   time.Duration
	Attempts  int
	Delay     time.Duration
}

func NewDeliverer(config DelivererConfig, logger *slog.Logger) *Deliverer {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}

	if config.Attempts <= 0 {
		config.Attempts = 3
	}

	return &Deliverer{
		endpoints: config.Endpoints,
		secret:    config.Secret,
		client:    &http.Client{Timeout: config.Timeout},
		attempts:  config.Attempts,
		delay:     config.Delay,
		logger:    logger.With("module", "webhook_deliverer"),
	}
}

// Register subscribes the deliverer to webhook requests on bus.
func (d *Deliverer) Register(bus eventbus.EventSubscriber) error {
	return bus.Handle(events.WebhookRequestedEvent, d.Handle)
}

// Handle delivers one webhook request. Delivery failures are logged and
// swallowed so the bus does not redeliver to endpoints that already got it.
func (d *Deliverer) Handle(ctx context.Context, event any) error {
	request, ok := event.(*events.WebhookRequested)
	if !ok {
		return fmt.Errorf("unexpected event %T", event)
	}

	body, err := json.Marshal(map[string]any{
		"id":        request.ID,
		"event":     request.Event,
		"timestamp": request.Timestamp,
		"data":      request.Data,
	})
	if err != nil {
		return fmt.Errorf("failed to encode webhook %s: %w", request.Event, err)
	}

	for _, endpoint := range d.endpoints {
		err := d.deliver(ctx, endpoint, request.Event, body)
		if err != nil {
			d.logger.ErrorContext(ctx, "Webhook delivery failed", "event", request.Event, "endpoint", endpoint, "error", err)
		}
	}

	return nil
}

func (d *Deliverer) deliver(ctx context.Context, endpoint, event string, body []byte) error {
	var lastErr error

	for attempt := 1; attempt <= d.attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.delay * time.Duration(attempt-1)):
			}
		}

		lastErr = d.post(ctx, endpoint, event, body)
		if lastErr == nil {
			return nil
		}

		// 4xx answers are not retried
		httpErr := &HTTPError{}
		if errors.As(lastErr, &httpErr) && httpErr.StatusCode < http.StatusInternalServerError {
			break
		}
	}

	return lastErr
}

func (d *Deliverer) post(ctx context.Context, endpoint, event string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Docflow-Event", event)

	if d.secret != "" {
		req.Header.Set(SignatureHeader, Sign(d.secret, body))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		message, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

		return &HTTPError{StatusCode: resp.StatusCode, Message: string(message)}
	}

	return nil
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)

	return hex.EncodeToString(mac.Sum(nil))
}
