package scanning

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Fetcher downloads an image referenced by URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (data []byte, contentType string, err error)
}

// HTTPFetcher implements Fetcher over HTTP
type HTTPFetcher struct {
	client *resty.Client
}

// NewHTTPFetcher creates an HTTPFetcher with the given request timeout
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return NewHTTPFetcherWithClient(resty.New().
		SetTimeout(timeout).
		SetHeader("Accept", "image/*, application/pdf"))
}

// NewHTTPFetcherWithClient creates an HTTPFetcher using a custom client
func NewHTTPFetcherWithClient(client *resty.Client) *HTTPFetcher {
	return &HTTPFetcher{client: client}
}

// Fetch downloads url and returns its body and media type.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	resp, err := f.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, "", fmt.Errorf("fetching image: %w", err)
	}
	if resp.IsError() {
		return nil, "", fmt.Errorf("fetching image: status %d", resp.StatusCode())
	}

	contentType, _, _ := strings.Cut(resp.Header().Get("Content-Type"), ";")
	return resp.Body(), strings.TrimSpace(contentType), nil
}
