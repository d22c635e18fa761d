package announce

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

const (
	// DefaultTimeout is the per-request timeout
	DefaultTimeout = 5 * time.Second

	// DefaultMaxRetries is the number of retries after the first attempt
	DefaultMaxRetries = 3

	// DefaultRetryDelay is the initial delay between attempts
	DefaultRetryDelay = 500 * time.Millisecond

	// DefaultMaxRetryDelay caps the exponential backoff
	DefaultMaxRetryDelay = 5 * time.Second
)

// StatusError is returned when an appliance answers with a non-200 status.
// Only 5xx responses are retried.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.StatusCode)
}

func retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500
	}
	return true
}

// Client reads the status endpoint of discovered appliances.
type Client struct {
	HTTPClient *http.Client

	// MaxRetries is the maximum number of retries after the first attempt
	MaxRetries int

	// RetryDelay is the delay before the first retry; it doubles after each
	RetryDelay time.Duration

	// MaxRetryDelay caps the backoff
	MaxRetryDelay time.Duration
}

// NewClient creates a client with default retry settings.
func NewClient() *Client {
	return &Client{
		HTTPClient:    &http.Client{Timeout: DefaultTimeout},
		MaxRetries:    DefaultMaxRetries,
		RetryDelay:    DefaultRetryDelay,
		MaxRetryDelay: DefaultMaxRetryDelay,
	}
}

// FetchStatus retrieves GET /status from the appliance, retrying network
// failures and 5xx answers with exponential backoff.
func (c *Client) FetchStatus(ctx context.Context, a *Appliance) (*Status, error) {
	var lastErr error
	delay := c.RetryDelay

	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > c.MaxRetryDelay {
				delay = c.MaxRetryDelay
			}
		}

		st, err := c.fetchOnce(ctx, a.BaseURL()+StatusPath)
		if err == nil {
			return st, nil
		}
		lastErr = err

		if !retryable(err) || ctx.Err() != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("%s: giving up after %d attempts: %w", a.Instance, c.MaxRetries+1, lastErr)
}

func (c *Client) fetchOnce(ctx context.Context, url string) (*Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	var st Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, fmt.Errorf("failed to parse status: %w", err)
	}
	return &st, nil
}
