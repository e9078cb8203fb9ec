package actuator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub014/internal/models"
	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub014/pkg/clients"
)

// noRetry keeps unit tests fast and deterministic.
func noRetry() clients.HTTPExecutorConfig {
	cfg := clients.DefaultHTTPExecutorConfig()
	cfg.MaxRetries = 0
	cfg.WithCircuitBreaker = false
	cfg.ShouldRetry = func(*http.Response, error) bool { return false }
	return cfg
}

func TestClientApply(t *testing.T) {
	var got models.ActuatorRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/matrix/route" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %s", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL, WithHTTPExecutorConfig(noRetry()))
	err := client.Apply(context.Background(), models.ActuatorRequest{
		InputSourceID: "src-1",
		ChannelNumber: "206",
		TVOutputIDs:   []string{"tv-1", "tv-2"},
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if got.InputSourceID != "src-1" || got.ChannelNumber != "206" || len(got.TVOutputIDs) != 2 {
		t.Fatalf("unexpected request received: %+v", got)
	}
}

func TestClientApply_NonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL, WithHTTPExecutorConfig(noRetry()))
	err := client.Apply(context.Background(), models.ActuatorRequest{InputSourceID: "src-1"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", apiErr.StatusCode)
	}
}

func TestClientApply_ConnectionRefused(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", WithHTTPExecutorConfig(noRetry()))
	if err := client.Apply(context.Background(), models.ActuatorRequest{InputSourceID: "src-1"}); err == nil {
		t.Fatalf("expected connection error")
	}
}

func TestNoopApply(t *testing.T) {
	if err := (Noop{}).Apply(context.Background(), models.ActuatorRequest{}); err != nil {
		t.Fatalf("Noop.Apply returned error: %v", err)
	}
}
