package crawler

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// RetryPolicy configures retry behavior for failed fetches. The zero value
// makes exactly one attempt; re-running the mirror is the usual way to pick
// up resources that failed.
type RetryPolicy struct {
	MaxRetries int           // Maximum number of retries (2 = 3 total attempts)
	BaseDelay  time.Duration // Initial backoff delay
	MaxDelay   time.Duration // Maximum backoff cap
}

// DefaultRetryPolicy returns a policy with no retries and a 1s/30s backoff
// ready for callers that raise MaxRetries.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 0,
		BaseDelay:  1 * time.Second,
		MaxDelay:   30 * time.Second,
	}
}

// fetchWithRetry wraps fetchOnce with exponential backoff. It retries on
// transient failures (network errors, 5xx, 429) but not on permanent ones
// (other 4xx, robots.txt refusals, cancellation).
func (f *Fetcher) fetchWithRetry(ctx context.Context, rawURL string) (*Response, error) {
	backoff := f.retry.BaseDelay
	var lastErr error

	for attempt := 0; attempt <= f.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			f.logger.Debug("retrying fetch", "url", rawURL, "attempt", attempt+1, "backoff", backoff)
			select {
			case <-ctx.Done():
				return nil, newFetchError(rawURL, 0, ctx.Err())
			case <-time.After(backoff):
				backoff = min(backoff*2, f.retry.MaxDelay)
			}
		}

		resp, err := f.fetchOnce(ctx, rawURL)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if ctx.Err() != nil || !shouldRetry(err) {
			return nil, err
		}
	}

	if f.retry.MaxRetries > 0 {
		var fe *FetchError
		if errors.As(lastErr, &fe) {
			fe.Err = fmt.Errorf("%w (after %d attempts)", fe.Err, f.retry.MaxRetries+1)
		}
	}
	return nil, lastErr
}

// shouldRetry reports whether a failed fetch is worth another attempt.
func shouldRetry(err error) bool {
	var fe *FetchError
	if !errors.As(err, &fe) {
		return false
	}

	switch {
	case fe.StatusCode == http.StatusTooManyRequests:
		return true
	case fe.StatusCode >= 500:
		return true
	case fe.StatusCode >= 400:
		return false
	}

	if errors.Is(fe.Err, ErrDisallowed) || errors.Is(fe.Err, errRedirectLoop) {
		return false
	}
	return isRetryableError(fe.Err)
}

// isRetryableError checks if a transport error is transient.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}
