package fetchhttp

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/andybalholm/brotli"
)

// StatusError carries a non-2xx HTTP status. 5xx responses are transient and
// retried by the download pool; 4xx responses are terminal.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d for %s", e.Code, e.URL)
}

// Client is the shared HTTP client for all source traffic. One instance per
// run; the underlying connection pool is reused across workers.
type Client struct {
	httpClient *http.Client
	userAgent  string
}

// NewClient creates a client with the given per-request timeout and a
// descriptive User-Agent.
func NewClient(timeout time.Duration, userAgent string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  userAgent,
	}
}

// UserAgent returns the User-Agent sent with every request.
func (c *Client) UserAgent() string {
	return c.userAgent
}

// Get fetches url and returns the decompressed body. Non-2xx statuses return
// a *StatusError; the body is still drained so the connection can be reused.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	// We decompress ourselves so the raw bytes can be inspected on failure
	req.Header.Set("Accept-Encoding", "gzip, br")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, URL: url}
	}

	decompressed, wasCompressed, err := DecompressBody(body, resp.Header.Get("Content-Encoding"))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress response: %w", err)
	}
	if wasCompressed {
		log.Printf("[HTTPClient] Decompressed %s: %d bytes -> %d bytes", url, len(body), len(decompressed))
	}

	return decompressed, nil
}

// GetString is Get with a string result, for HTML pages.
func (c *Client) GetString(ctx context.Context, url string) (string, error) {
	body, err := c.Get(ctx, url)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// DecompressBody detects gzip or Brotli compression and returns the
// decompressed bytes. Detection uses magic bytes first and falls back to the
// Content-Encoding header, since some servers mislabel either.
func DecompressBody(body []byte, contentEncoding string) ([]byte, bool, error) {
	if len(body) == 0 {
		return body, false, nil
	}

	// gzip magic bytes: 1f 8b
	if len(body) >= 2 && body[0] == 0x1f && body[1] == 0x8b {
		reader, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, false, err
		}
		defer reader.Close()

		decompressed, err := io.ReadAll(reader)
		if err != nil {
			return nil, false, err
		}
		return decompressed, true, nil
	}

	if contentEncoding == "br" {
		decompressed, err := io.ReadAll(brotli.NewReader(bytes.NewReader(body)))
		if err != nil {
			// Mislabeled; treat as uncompressed
			return body, false, nil
		}
		return decompressed, true, nil
	}

	return body, false, nil
}
