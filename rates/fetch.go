package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultURL serves a USD-based rate table in the Snapshot JSON shape.
const DefaultURL = "https://api.vatcomply.com/rates?base=USD"

// Fetcher retrieves a snapshot from a remote source.
type Fetcher interface {
	Fetch(ctx context.Context) (*Snapshot, error)
}

// HTTPFetcher fetches a snapshot with a plain GET.
type HTTPFetcher struct {
	URL     string
	Timeout time.Duration
	Client  *http.Client
}

// HTTPOption configures an HTTPFetcher.
type HTTPOption func(*HTTPFetcher)

// WithURL sets the endpoint.
func WithURL(url string) HTTPOption {
	return func(f *HTTPFetcher) { f.URL = url }
}

// WithTimeout sets the request timeout.
func WithTimeout(timeout time.Duration) HTTPOption {
	return func(f *HTTPFetcher) { f.Timeout = timeout }
}

// WithClient sets the HTTP client.
func WithClient(c *http.Client) HTTPOption {
	return func(f *HTTPFetcher) { f.Client = c }
}

// NewHTTPFetcher creates a fetcher for DefaultURL unless overridden.
func NewHTTPFetcher(opts ...HTTPOption) *HTTPFetcher {
	f := &HTTPFetcher{
		URL:     DefaultURL,
		Timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.Client == nil {
		f.Client = &http.Client{Timeout: f.Timeout}
	}
	return f
}

// Fetch performs the request and decodes the body.
func (f *HTTPFetcher) Fetch(ctx context.Context) (*Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("rate source returned %s: %s", resp.Status, string(body))
	}

	var s Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decoding rate response: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}
