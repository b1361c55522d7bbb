package embed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

type retryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

var defaultRetryPolicy = retryPolicy{
	MaxRetries: 3,
	BaseDelay:  500 * time.Millisecond,
	MaxDelay:   30 * time.Second,
}

// parseRetryAfter reads a Retry-After header given in seconds or as an HTTP
// date. It returns 0 when the header is missing or unparseable.
func parseRetryAfter(retryAfter string) time.Duration {
	if retryAfter == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(retryAfter); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(retryAfter); err == nil {
		return time.Until(t)
	}
	return 0
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable
}

// doWithRetry sends the request built by newReq and returns the body of the
// first 200 response. 429 and 503 responses are retried, honouring
// Retry-After and otherwise backing off exponentially.
func doWithRetry(ctx context.Context, client *http.Client, policy retryPolicy, logger zerolog.Logger, newReq func(context.Context) (*http.Request, error)) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		req, err := newReq(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("request cancelled: %w", ctx.Err())
			}
			return nil, fmt.Errorf("request failed: %w", err)
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}

		if resp.StatusCode == http.StatusOK {
			return body, nil
		}
		if !retryable(resp.StatusCode) || attempt >= policy.MaxRetries {
			return nil, fmt.Errorf("unexpected status %d after %d attempts: %s", resp.StatusCode, attempt+1, truncate(body, 200))
		}

		delay := parseRetryAfter(resp.Header.Get("Retry-After"))
		if delay <= 0 {
			delay = policy.BaseDelay * time.Duration(1<<attempt)
		}
		delay = min(delay, policy.MaxDelay)

		logger.Warn().
			Int("status", resp.StatusCode).
			Int("attempt", attempt+1).
			Dur("retry_in", delay).
			Msg("embedding backend throttled, retrying")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("request cancelled: %w", ctx.Err())
		case <-timer.C:
		}
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
