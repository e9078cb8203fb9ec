// Package actuator notifies the hardware layer (matrix switcher / tuner
// control) when a binding becomes active. The ledger is the source of truth;
// a failed notification is surfaced to the caller but never reverts state.
package actuator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"

	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub014/internal/models"
	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub014/pkg/clients"
)

// APIError is returned when the actuator endpoint answers with a non-2xx
// status.
type APIError struct {
	StatusCode int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("actuator returned status: %d", e.StatusCode)
}

// Client is an HTTP client for the hardware actuator endpoint. Requests are
// retried through a failsafe executor; the downstream is assumed idempotent,
// so at-least-once delivery is safe.
type Client struct {
	baseURL      string
	client       *http.Client
	httpExecutor failsafe.Executor[*http.Response]
}

// Option customizes the client.
type Option func(*Client)

// NewClient creates an actuator client for the given base URL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:      baseURL,
		client:       &http.Client{Timeout: 10 * time.Second},
		httpExecutor: clients.NewHTTPExecutor(clients.DefaultHTTPExecutorConfig()),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.client = httpClient
		}
	}
}

// WithHTTPExecutorConfig overrides the retry behaviour.
func WithHTTPExecutorConfig(cfg clients.HTTPExecutorConfig) Option {
	return func(c *Client) {
		c.httpExecutor = clients.NewHTTPExecutor(cfg)
	}
}

// Apply asks the hardware layer to tune the input source to the channel and
// route it to the TV outputs.
func (c *Client) Apply(ctx context.Context, req models.ActuatorRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal actuator request: %w", err)
	}

	resp, err := clients.ExecuteHTTP(ctx, c.httpExecutor, func() (*http.Response, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/matrix/route", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		return c.client.Do(httpReq)
	})
	if err != nil {
		return fmt.Errorf("actuator request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode}
	}
	return nil
}

// Noop is used when no actuator endpoint is configured; logical state still
// commits, physical routing is reconciled elsewhere.
type Noop struct{}

// Apply does nothing and reports success.
func (Noop) Apply(context.Context, models.ActuatorRequest) error {
	return nil
}
