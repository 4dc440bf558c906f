package storage

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "go-pricetag-viewer/internal/errors"
)

// maxBodySize caps any single backend response
const maxBodySize = 64 << 20

// StatusError is a non-200 reply from the backend
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	switch {
	case e.StatusCode >= 500:
		return fmt.Sprintf("server error: status code %d", e.StatusCode)
	case e.StatusCode >= 400:
		return fmt.Sprintf("client error: status code %d", e.StatusCode)
	default:
		return fmt.Sprintf("unexpected status code %d", e.StatusCode)
	}
}

// IsStatus reports whether err carries the given backend status code
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

// BackendClient talks to the price-tag backend. GETs are retried on
// transport errors and 5xx responses; POSTs are sent once.
type BackendClient struct {
	client   *http.Client
	baseURL  string
	attempts int
	backoff  time.Duration
}

// ClientOption customizes a BackendClient
type ClientOption func(*BackendClient)

// WithAttempts sets how many times a GET is tried
func WithAttempts(n int) ClientOption {
	return func(c *BackendClient) {
		if n > 0 {
			c.attempts = n
		}
	}
}

// WithBackoff sets the base delay between attempts; attempt n waits n*d
func WithBackoff(d time.Duration) ClientOption {
	return func(c *BackendClient) {
		c.backoff = d
	}
}

// WithTimeout sets the overall per-request timeout and the response
// header timeout
func WithTimeout(d time.Duration) ClientOption {
	return func(c *BackendClient) {
		if d > 0 {
			c.client.Timeout = d
			if t, ok := c.client.Transport.(*http.Transport); ok {
				t.ResponseHeaderTimeout = d
			}
		}
	}
}

// WithoutTimeout removes the client-wide timeouts; requests are bounded
// only by their context
func WithoutTimeout() ClientOption {
	return func(c *BackendClient) {
		c.client.Timeout = 0
		if t, ok := c.client.Transport.(*http.Transport); ok {
			t.ResponseHeaderTimeout = 0
		}
	}
}

// NewBackendClient creates a client rooted at baseURL
func NewBackendClient(baseURL string, opts ...ClientOption) *BackendClient {
	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     30 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		MaxResponseHeaderBytes: 4096,
		TLSClientConfig:        &tls.Config{MinVersion: tls.VersionTLS12},
	}

	c := &BackendClient{
		client: &http.Client{
			Transport: transport,
			Timeout:   30 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("too many redirects (limit: 3)")
				}
				return nil
			},
		},
		baseURL:  strings.TrimRight(baseURL, "/"),
		attempts: 3,
		backoff:  time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend root without a trailing slash
func (c *BackendClient) BaseURL() string {
	return c.baseURL
}

// URL joins escaped path segments onto the base address
func (c *BackendClient) URL(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return c.baseURL + "/" + strings.Join(escaped, "/")
}

// Get fetches the body at rawURL. Failures are returned as FetchErrors.
func (c *BackendClient) Get(ctx context.Context, rawURL, accept string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt < c.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, apperrors.NewFetchError("request canceled", ctx.Err())
			case <-time.After(time.Duration(attempt) * c.backoff):
			}
		}

		body, retryable, err := c.getOnce(ctx, rawURL, accept)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable || ctx.Err() != nil {
			break
		}
	}

	return nil, apperrors.NewFetchError(
		fmt.Sprintf("failed to fetch %s after %d attempts", rawURL, c.attempts), lastErr)
}

func (c *BackendClient) getOnce(ctx context.Context, rawURL, accept string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("invalid URL: %w", err)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	req.Header.Set("User-Agent", "go-pricetag-viewer/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode >= 500, &StatusError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, true, fmt.Errorf("failed to read body: %w", err)
	}
	return body, false, nil
}

// GetJSON fetches rawURL and decodes it into out
func (c *BackendClient) GetJSON(ctx context.Context, rawURL string, out any) error {
	body, err := c.Get(ctx, rawURL, "application/json")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return apperrors.NewFetchError("malformed response from "+rawURL, err)
	}
	return nil
}

// PostJSON sends in as JSON and decodes the reply into out. It is never
// retried. Non-2xx replies carry the backend message in Details.
func (c *BackendClient) PostJSON(ctx context.Context, rawURL string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return apperrors.NewInternalError("failed to encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(payload))
	if err != nil {
		return apperrors.NewInternalError("invalid URL", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "go-pricetag-viewer/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return apperrors.NewAnalysisError("request to "+rawURL+" failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return apperrors.NewAnalysisError("failed to read response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperrors.NewAnalysisError(
			fmt.Sprintf("backend returned status code %d", resp.StatusCode), nil).
			WithDetails(strings.TrimSpace(string(body)))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return apperrors.NewAnalysisError("malformed response from "+rawURL, err)
	}
	return nil
}

// HTTPImageStore serves the image list and image bytes from the backend
type HTTPImageStore struct {
	client *BackendClient
}

// NewHTTPImageStore creates an image store over the backend client
func NewHTTPImageStore(client *BackendClient) *HTTPImageStore {
	return &HTTPImageStore{client: client}
}

// List returns the backend's ordered filename list
func (s *HTTPImageStore) List(ctx context.Context) ([]string, error) {
	var names []string
	if err := s.client.GetJSON(ctx, s.client.URL("images"), &names); err != nil {
		return nil, err
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

// Open downloads and decodes one image
func (s *HTTPImageStore) Open(ctx context.Context, filename string) (image.Image, error) {
	body, err := s.client.Get(ctx, s.client.URL("static", "images", filename),
		"image/jpeg, image/png, image/webp, image/bmp, */*")
	if err != nil {
		return nil, err
	}
	return Decode(bytes.NewReader(body))
}

// ReadRaw returns the undecoded image bytes
func (s *HTTPImageStore) ReadRaw(ctx context.Context, filename string) ([]byte, error) {
	return s.client.Get(ctx, s.client.URL("static", "images", filename), "*/*")
}
