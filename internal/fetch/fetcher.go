// Package fetch retrieves raw page content over HTTP. The browser-based
// crawler that feeds production ingestion lives behind the same Fetcher
// interface; this package only defines the boundary and a plain HTTP
// implementation.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const userAgent = "SpacePedia-AI-Bot/1.0"

// maxBodyBytes caps how much of a response body is read (32 MiB).
const maxBodyBytes = 32 << 20

// Result holds the raw outcome of fetching a URL.
type Result struct {
	Status      int
	ContentType string
	Body        []byte
}

// Error reports a network failure, timeout, or HTTP status >= 400.
type Error struct {
	URL    string
	Status int // 0 when the request never produced a response
	Err    error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Fetcher retrieves the raw content of a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Result, error)
}

// Compile-time check that HTTPFetcher implements Fetcher.
var _ Fetcher = (*HTTPFetcher)(nil)

// HTTPFetcher fetches pages with a plain HTTP client.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher creates an HTTPFetcher. If timeout is <= 0 it defaults to 30s.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPFetcher{client: &http.Client{Timeout: timeout}}
}

// Fetch downloads the URL and returns its status, content type, and body.
// Network errors and HTTP >= 400 are returned as *Error.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &Error{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &Error{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &Error{URL: url, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &Error{URL: url, Err: fmt.Errorf("reading body: %w", err)}
	}

	return &Result{
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

// IsPDF reports whether the result's content type indicates a PDF document.
func (r *Result) IsPDF() bool {
	return strings.Contains(r.ContentType, "application/pdf")
}
