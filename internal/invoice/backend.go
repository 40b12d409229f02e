package invoice

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Backend accepts extracted invoices
type Backend interface {
	Submit(ctx context.Context, payload Payload) (Ack, error)
}

// HTTPBackend posts payloads as JSON to an ingestion endpoint
type HTTPBackend struct {
	client   *resty.Client
	endpoint string
}

// NewHTTPBackend creates an HTTPBackend for endpoint
func NewHTTPBackend(endpoint string, timeout time.Duration) *HTTPBackend {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &HTTPBackend{client: client, endpoint: endpoint}
}

// Submit posts the payload once and returns the response body as the ack.
// Non-JSON bodies are returned as a JSON string.
func (b *HTTPBackend) Submit(ctx context.Context, payload Payload) (Ack, error) {
	resp, err := b.client.R().
		SetContext(ctx).
		SetBody(payload).
		Post(b.endpoint)
	if err != nil {
		return nil, fmt.Errorf("posting invoice: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("backend returned status %d: %s", resp.StatusCode(), resp.String())
	}

	body := resp.Body()
	switch {
	case len(body) == 0:
		return Ack("null"), nil
	case json.Valid(body):
		return Ack(body), nil
	}
	quoted, err := json.Marshal(string(body))
	if err != nil {
		return nil, fmt.Errorf("encoding ack: %w", err)
	}
	return Ack(quoted), nil
}
