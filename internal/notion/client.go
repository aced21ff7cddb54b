// Package notion is a thin HTTP wrapper over the hosted page database API:
// page create/update, database query, and the three-step resumable file
// upload protocol.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/chenyqthu/mailagent/internal/logging"
	"github.com/chenyqthu/mailagent/internal/retry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	baseURL        = "https://api.notion.com/v1"
	apiVersion     = "2022-06-28" // opaque contract string, never parsed
	maxAttempts    = 5
	requestTimeout = 120 * time.Second
)

// ErrClientError marks a non-retryable 4xx response (anything but 429).
var ErrClientError = errors.New("notion: client error")

// ErrMaxAttempts marks a request that exhausted its retry budget.
var ErrMaxAttempts = errors.New("notion: exceeded retry budget")

// testBaseURL overrides baseURL in tests, so they can point the client at
// an httptest.Server instead of the real API.
var testBaseURL string

func effectiveBaseURL() string {
	if testBaseURL != "" {
		return testBaseURL
	}
	return baseURL
}

// Client talks to the remote page API. One Client is shared across the
// whole daemon; *http.Client already pools and keeps-alive connections, so
// there is no need for a separate connection-per-call pattern here.
type Client struct {
	httpClient *http.Client
	token      string
	backoff    retry.Backoff
	log        zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBackoff overrides the retry policy (used in tests to shrink delays).
func WithBackoff(b retry.Backoff) Option {
	return func(c *Client) { c.backoff = b }
}

// WithHTTPClient overrides the underlying *http.Client (used in tests to
// point at an httptest.Server).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient returns a Client authenticated with the given integration
// token.
func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		token:      token,
		backoff: &retry.ExponentialBackoff{
			Interval: time.Second,
			Base:     2,
			MaxRetry: maxAttempts,
		},
		log: logging.WithComponent("notion"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// apiError is returned for non-2xx responses that are not retried.
type apiError struct {
	StatusCode int
	Body       string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("notion: status %d: %s", e.StatusCode, e.Body)
}

// do executes method/path with an optional JSON body, retrying on 429,
// 5xx, and network-level errors per the documented budget. A 4xx other
// than 429 fails fast and is wrapped in ErrClientError.
func (c *Client) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("notion: marshal request: %w", err)
		}
	}

	// requestID correlates every attempt of one logical call across the
	// retry loop in logs, since a single call can span several HTTP
	// round-trips.
	requestID := uuid.NewString()

	var lastErr error
	honoredRetryAfter := false
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 && !honoredRetryAfter {
			delay := c.backoff.Duration(attempt - 1)
			c.log.Debug().Str("request_id", requestID).Int("attempt", attempt).Dur("delay", delay).Str("path", path).Msg("Retrying request")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
		honoredRetryAfter = false

		req, err := http.NewRequestWithContext(ctx, method, effectiveBaseURL()+path, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("notion: build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Notion-Version", apiVersion)
		req.Header.Set("X-Request-ID", requestID)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("notion: transport error: %w", err)
			c.log.Warn().Err(err).Str("path", path).Msg("Request failed, will retry")
			continue
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = fmt.Errorf("notion: reading response body: %w", readErr)
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return respBody, nil
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = &apiError{StatusCode: resp.StatusCode, Body: string(respBody)}
			if wait, ok := retryAfter(resp.Header.Get("Retry-After")); ok {
				c.log.Warn().Dur("retry_after", wait).Str("path", path).Msg("Rate limited, honouring Retry-After")
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(wait):
				}
				honoredRetryAfter = true
				continue
			}
			continue
		}

		if resp.StatusCode >= 500 {
			lastErr = &apiError{StatusCode: resp.StatusCode, Body: string(respBody)}
			continue
		}

		return nil, fmt.Errorf("%w: %s", ErrClientError, (&apiError{StatusCode: resp.StatusCode, Body: string(respBody)}).Error())
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrMaxAttempts, lastErr)
	}
	return nil, ErrMaxAttempts
}

// retryAfter parses a Retry-After header value expressed in seconds (the
// remote API never sends the HTTP-date form for this endpoint).
func retryAfter(header string) (time.Duration, bool) {
	if header == "" {
		return 0, false
	}
	var seconds int
	if _, err := fmt.Sscanf(header, "%d", &seconds); err != nil || seconds < 0 {
		return 0, false
	}
	return time.Duration(seconds) * time.Second, true
}
